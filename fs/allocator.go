package fs

import "github.com/boljen/go-bitmap"

// freeClusterCache mirrors the FAT's free/in-use state for every cluster in
// a bitmap, so the allocator can answer "is this cluster free" and "scan
// forward for a free cluster" without walking the FAT array linearly.
// It is kept in sync by the Filesystem on every allocate/free operation.
type freeClusterCache struct {
	bits bitmap.Bitmap
	size int
}

// newFreeClusterCache builds a cache with one bit per entry of fat,
// seeded from the current contents of fat. Clusters 0 and 1 are reserved
// and never considered free.
func newFreeClusterCache(fat []uint32) *freeClusterCache {
	c := &freeClusterCache{
		bits: bitmap.New(len(fat)),
		size: len(fat),
	}
	for i, entry := range fat {
		if i < 2 {
			c.bits.Set(i, true)
			continue
		}
		c.bits.Set(i, entry != 0)
	}
	return c
}

// markUsed records cluster as allocated.
func (c *freeClusterCache) markUsed(cluster uint32) {
	if int(cluster) < c.size {
		c.bits.Set(int(cluster), true)
	}
}

// markFree records cluster as available.
func (c *freeClusterCache) markFree(cluster uint32) {
	if int(cluster) < c.size {
		c.bits.Set(int(cluster), false)
	}
}

// isFree reports whether cluster is currently marked available.
func (c *freeClusterCache) isFree(cluster uint32) bool {
	if int(cluster) >= c.size {
		return false
	}
	return !c.bits.Get(int(cluster))
}

// findFreeFrom scans forward from start (inclusive, wrapping to cluster 2 at
// the end) for the first free cluster. Returns false if none are free.
func (c *freeClusterCache) findFreeFrom(start uint32) (uint32, bool) {
	if c.size <= 2 {
		return 0, false
	}
	if start < 2 {
		start = 2
	}
	for i := 0; i < c.size-2; i++ {
		idx := 2 + (int(start)-2+i)%(c.size-2)
		if !c.bits.Get(idx) {
			return uint32(idx), true
		}
	}
	return 0, false
}
