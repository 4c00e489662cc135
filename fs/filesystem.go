// Package fs implements the cluster-chain filesystem core: FAT table
// management, cluster allocation, cluster-chain file I/O, and the
// in-memory directory/file node tree built on top of it.
package fs

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/kestrelfs/ccfs/cursor"
	"github.com/kestrelfs/ccfs/layout"
	"github.com/kestrelfs/ccfs/sector"
)

// Filesystem is a mounted instance of the cluster-chain filesystem. It owns
// the sector manager, the decoded boot/fs-info sectors, the in-memory FAT,
// and the root of the directory tree. Unlike the single-process global this
// engine was modeled on, a Filesystem is created by Init and passed around
// explicitly so a process can mount more than one volume at a time.
type Filesystem struct {
	sectorManager *sector.Manager

	mu           sync.RWMutex
	bootSector   layout.BootSector
	fsInfoSector layout.FSInfoSector

	fatMu sync.RWMutex
	fat   []uint32
	free  *freeClusterCache

	root *DirNode
}

// Init mounts the filesystem described by dev: it reads the boot sector and
// fs-info sector, loads the FAT into memory, and builds the in-memory root
// directory node by walking the root directory's cluster chain.
func Init(dev block.Device) (*Filesystem, error) {
	mgr := sector.NewManager(cursor.New(dev))

	fsys := &Filesystem{sectorManager: mgr}
	if err := fsys.readBootSector(); err != nil {
		return nil, err
	}
	if err := fsys.readFSInfoSector(); err != nil {
		return nil, err
	}
	if err := fsys.initFATTable(); err != nil {
		return nil, fmt.Errorf("init fat table: %w", err)
	}
	if err := fsys.initRoot(); err != nil {
		return nil, fmt.Errorf("init root: %w", err)
	}
	return fsys, nil
}

func (f *Filesystem) readBootSector() error {
	f.sectorManager.SetPosition(0)
	var err error
	read := func(step func() error) {
		if err == nil {
			err = step()
		}
	}

	var b layout.BootSector
	read(func() (e error) { b.BytesPerSector, e = f.sectorManager.Read16Seq(); return })
	read(func() (e error) { b.SectorsPerCluster, e = f.sectorManager.Read8Seq(); return })
	read(func() (e error) { b.ReservedSectorsCount, e = f.sectorManager.Read16Seq(); return })
	read(func() (e error) { b.TotalSectors32, e = f.sectorManager.Read32Seq(); return })
	read(func() (e error) { b.FatCount, e = f.sectorManager.Read8Seq(); return })
	read(func() (e error) { b.SectorsPerFat32, e = f.sectorManager.Read32Seq(); return })
	read(func() (e error) { b.RootCluster, e = f.sectorManager.Read32Seq(); return })
	read(func() (e error) { b.RootDirSectorsCount, e = f.sectorManager.Read32Seq(); return })
	read(func() (e error) { b.FSInfoSector, e = f.sectorManager.Read16Seq(); return })
	if err != nil {
		return fmt.Errorf("read boot sector: %w", err)
	}

	f.mu.Lock()
	f.bootSector = b
	f.mu.Unlock()
	return nil
}

func (f *Filesystem) readFSInfoSector() error {
	f.sectorManager.SetPosition(uint64(f.bootSectorSnapshot().BytesPerSector))
	freeCount, err := f.sectorManager.Read32Seq()
	if err != nil {
		return fmt.Errorf("read fs-info free cluster count: %w", err)
	}
	nextFree, err := f.sectorManager.Read32Seq()
	if err != nil {
		return fmt.Errorf("read fs-info next free cluster: %w", err)
	}
	f.mu.Lock()
	f.fsInfoSector = layout.NewFSInfoSector(freeCount, nextFree)
	f.mu.Unlock()
	return nil
}

func (f *Filesystem) bootSectorSnapshot() layout.BootSector {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bootSector
}

func (f *Filesystem) fsInfoSnapshot() layout.FSInfoSector {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fsInfoSector
}

// BytesPerCluster returns the size in bytes of one cluster on this volume.
func (f *Filesystem) BytesPerCluster() uint32 {
	return f.bootSectorSnapshot().BytesPerCluster()
}

// GetNextFreeCluster returns the fs-info hint for the next cluster to try
// when allocating.
func (f *Filesystem) GetNextFreeCluster() uint32 {
	return f.fsInfoSnapshot().NextFreeCluster
}

// FreeClusterCount returns the fs-info count of unallocated clusters.
func (f *Filesystem) FreeClusterCount() uint32 {
	return f.fsInfoSnapshot().FreeClusterCount
}

func (f *Filesystem) initFATTable() error {
	b := f.bootSectorSnapshot()
	fatSectorsCount := uint64(b.FatSectorsCount())
	fatStartSector := uint64(b.FatStartSector())
	sectorSize := uint64(f.sectorManager.SectorSize())

	f.sectorManager.SetPosition(fatStartSector * sectorSize)
	fatData := make([]byte, 0, fatSectorsCount*sectorSize)
	for i := uint64(0); i < fatSectorsCount; i++ {
		sectorData, err := f.sectorManager.ReadSectorSeq()
		if err != nil {
			return err
		}
		fatData = append(fatData, sectorData...)
	}

	entriesCount := len(fatData) / 4
	fat := make([]uint32, entriesCount)
	for i := range fat {
		fat[i] = uint32(fatData[i*4]) | uint32(fatData[i*4+1])<<8 |
			uint32(fatData[i*4+2])<<16 | uint32(fatData[i*4+3])<<24
	}

	f.fatMu.Lock()
	f.fat = fat
	f.free = newFreeClusterCache(fat)
	f.fatMu.Unlock()
	return nil
}

func (f *Filesystem) initRoot() error {
	b := f.bootSectorSnapshot()
	rootDirStartSector := uint64(b.RootDirStartSector())
	rootDirSectorCount := uint64(b.RootDirSectorsCount)
	rootFirstCluster := b.SectorToCluster(uint32(rootDirStartSector))
	rootLastCluster := b.SectorToCluster(uint32(rootDirStartSector) + uint32(rootDirSectorCount) - 1)

	f.fatMu.Lock()
	for cluster := rootFirstCluster; cluster <= rootLastCluster; cluster++ {
		if cluster == rootLastCluster {
			f.fat[cluster] = layout.FatMarker{Kind: layout.FatEndOfChain}.Value()
		} else {
			f.fat[cluster] = cluster + 1
		}
		f.free.markUsed(cluster)
	}
	f.fatMu.Unlock()

	f.sectorManager.SetPosition(rootDirStartSector * uint64(f.sectorManager.SectorSize()))
	raw := make([]byte, 0, rootDirSectorCount*uint64(f.sectorManager.SectorSize()))
	for i := uint64(0); i < rootDirSectorCount; i++ {
		sectorData, err := f.sectorManager.ReadSectorSeq()
		if err != nil {
			return err
		}
		raw = append(raw, sectorData...)
	}

	var entries []layout.DirEntry
	for i := 0; i+layout.DirEntrySize <= len(raw); i += layout.DirEntrySize {
		entry := layout.NewDirEntry(raw[i : i+layout.DirEntrySize])
		if entry.IsEndMarker() {
			break
		}
		entries = append(entries, entry)
	}

	root := newDirNode(f, newRootDirectory(rootFirstCluster, entries), "/", nil)
	if err := root.updateChildren(); err != nil {
		return err
	}
	f.root = root
	return nil
}

// RootDirNode returns the in-memory root directory node.
func (f *Filesystem) RootDirNode() *DirNode {
	return f.root
}

// GetFatEntry returns the raw FAT entry for clusterID.
func (f *Filesystem) GetFatEntry(clusterID uint32) (uint32, error) {
	f.fatMu.RLock()
	defer f.fatMu.RUnlock()
	if clusterID >= uint32(len(f.fat)) || clusterID < 2 {
		return 0, ccfserr.ErrInvalidArgument.WithMessage("cluster %d out of range", clusterID)
	}
	return f.fat[clusterID], nil
}

// IsEnd reports whether value marks the end of a cluster chain.
func (f *Filesystem) IsEnd(value uint32) bool {
	return layout.FatMarkerFromValue(value).Kind == layout.FatEndOfChain
}

// IsBadCluster reports whether value marks a bad cluster.
func (f *Filesystem) IsBadCluster(value uint32) bool {
	return layout.FatMarkerFromValue(value).Kind == layout.FatBadCluster
}

// ReadCluster reads the full contents of clusterID into a freshly allocated
// buffer.
func (f *Filesystem) ReadCluster(clusterID uint32) ([]byte, error) {
	b := f.bootSectorSnapshot()
	clusterStartSector := uint64(b.ClusterToSector(clusterID)) * uint64(f.sectorManager.SectorSize())
	f.sectorManager.SetPosition(clusterStartSector)

	cluster := make([]byte, 0, b.BytesPerCluster())
	for i := uint32(0); i < uint32(b.SectorsPerCluster); i++ {
		sectorData, err := f.sectorManager.ReadSectorSeq()
		if err != nil {
			return nil, err
		}
		cluster = append(cluster, sectorData...)
	}
	return cluster, nil
}

// WriteCluster writes data as the full contents of clusterID. len(data)
// must equal BytesPerCluster().
func (f *Filesystem) WriteCluster(clusterID uint32, data []byte) error {
	b := f.bootSectorSnapshot()
	sectorSize := f.sectorManager.SectorSize()
	clusterStartSector := uint64(b.ClusterToSector(clusterID)) * uint64(sectorSize)
	f.sectorManager.SetPosition(clusterStartSector)

	for i := uint32(0); i < uint32(b.SectorsPerCluster); i++ {
		chunk := data[int(i)*sectorSize : int(i+1)*sectorSize]
		if err := f.sectorManager.WriteSectorSeq(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filesystem) updateFreeClusterCountLocked() {
	count := uint32(0)
	for i, entry := range f.fat {
		if i < 2 {
			continue
		}
		if entry == 0 {
			count++
		}
	}
	f.mu.Lock()
	f.fsInfoSector.FreeClusterCount = count
	f.mu.Unlock()
}

// findNextFreeClusterLocked requires fatMu to be held (read or write).
func (f *Filesystem) findNextFreeClusterLocked() (uint32, bool) {
	if f.fsInfoSnapshot().FreeClusterCount == 0 {
		return 0, false
	}
	hint := f.fsInfoSnapshot().NextFreeCluster
	if hint < uint32(len(f.fat)) && f.fat[hint] == 0 && f.free.isFree(hint) {
		return hint, true
	}
	return f.free.findFreeFrom(hint)
}

func (f *Filesystem) updateNextFreeClusterLocked() error {
	for i, entry := range f.fat {
		if i < 2 {
			continue
		}
		if entry == 0 {
			f.mu.Lock()
			f.fsInfoSector.NextFreeCluster = uint32(i)
			f.mu.Unlock()
			return nil
		}
	}
	return ccfserr.ErrNoSpace.WithMessage("no free clusters remain")
}

// FlushFSInfoSector recomputes the free cluster count and writes the
// fs-info sector back to disk.
func (f *Filesystem) FlushFSInfoSector() error {
	f.fatMu.RLock()
	f.updateFreeClusterCountLocked()
	f.fatMu.RUnlock()

	f.sectorManager.SetPosition(uint64(f.bootSectorSnapshot().BytesPerSector))
	info := f.fsInfoSnapshot()
	if err := f.sectorManager.Write32Seq(info.FreeClusterCount); err != nil {
		return err
	}
	return f.sectorManager.Write32Seq(info.NextFreeCluster)
}

// Flush persists the fs-info sector and the whole in-memory FAT table back
// to disk, aggregating any failures instead of stopping at the first one.
// The original engine never flushes the FAT at all; every mutation to fat
// entries below is already applied in memory; this method is what makes
// those mutations durable.
func (f *Filesystem) Flush() error {
	var result error
	if err := f.FlushFSInfoSector(); err != nil {
		result = multierror.Append(result, fmt.Errorf("flush fs-info sector: %w", err))
	}
	if err := f.flushFATTable(); err != nil {
		result = multierror.Append(result, fmt.Errorf("flush fat table: %w", err))
	}
	return result
}

func (f *Filesystem) flushFATTable() error {
	f.fatMu.RLock()
	fat := make([]uint32, len(f.fat))
	copy(fat, f.fat)
	f.fatMu.RUnlock()

	b := f.bootSectorSnapshot()
	sectorSize := f.sectorManager.SectorSize()
	entriesPerSector := sectorSize / 4
	fatStartSector := uint64(b.FatStartSector())

	var result error
	for copyIdx := uint32(0); copyIdx < uint32(b.FatCount); copyIdx++ {
		base := fatStartSector + uint64(copyIdx)*uint64(b.FatSectorsCount())
		for s := uint32(0); s < b.FatSectorsCount(); s++ {
			buf := make([]byte, sectorSize)
			for i := 0; i < entriesPerSector; i++ {
				idx := int(s)*entriesPerSector + i
				var v uint32
				if idx < len(fat) {
					v = fat[idx]
				}
				buf[i*4] = byte(v)
				buf[i*4+1] = byte(v >> 8)
				buf[i*4+2] = byte(v >> 16)
				buf[i*4+3] = byte(v >> 24)
			}
			if err := func() error {
				f.sectorManager.SetPosition((base + uint64(s)) * uint64(sectorSize))
				return f.sectorManager.WriteSectorSeq(buf)
			}(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result
}

// AllocateClusterAtMiddle allocates a free cluster and splices it into the
// chain between currClusterID and nextClusterID.
func (f *Filesystem) AllocateClusterAtMiddle(currClusterID, nextClusterID uint32) (uint32, error) {
	f.fatMu.Lock()
	defer f.fatMu.Unlock()

	next, ok := f.findNextFreeClusterLocked()
	if !ok {
		return 0, ccfserr.ErrNoSpace
	}
	f.fat[next] = nextClusterID
	f.fat[currClusterID] = next
	f.free.markUsed(next)
	f.mu.Lock()
	f.fsInfoSector.FreeClusterCount--
	f.mu.Unlock()
	if err := f.updateNextFreeClusterLocked(); err != nil {
		return 0, err
	}
	return next, nil
}

// AllocateClusterAtEnd allocates a free cluster and appends it to the chain
// after currClusterID.
func (f *Filesystem) AllocateClusterAtEnd(currClusterID uint32) (uint32, error) {
	f.fatMu.Lock()
	defer f.fatMu.Unlock()

	next, ok := f.findNextFreeClusterLocked()
	if !ok {
		return 0, ccfserr.ErrNoSpace
	}
	f.fat[next] = layout.FatMarker{Kind: layout.FatEndOfChain}.Value()
	f.fat[currClusterID] = next
	f.free.markUsed(next)
	f.mu.Lock()
	f.fsInfoSector.FreeClusterCount--
	f.mu.Unlock()
	if err := f.updateNextFreeClusterLocked(); err != nil {
		return 0, err
	}
	return next, nil
}

// AllocateClusterAtStart allocates a single free cluster to seed a new
// chain, marking it as the end of the (one-cluster) chain.
func (f *Filesystem) AllocateClusterAtStart() (uint32, error) {
	f.fatMu.Lock()
	defer f.fatMu.Unlock()

	next, ok := f.findNextFreeClusterLocked()
	if !ok {
		return 0, ccfserr.ErrNoSpace
	}
	f.fat[next] = layout.FatMarker{Kind: layout.FatEndOfChain}.Value()
	f.free.markUsed(next)
	f.mu.Lock()
	f.fsInfoSector.FreeClusterCount--
	f.mu.Unlock()
	if err := f.updateNextFreeClusterLocked(); err != nil {
		return 0, err
	}
	return next, nil
}

// LinkToEnd marks currClusterID as the last cluster in its chain.
func (f *Filesystem) LinkToEnd(currClusterID uint32) error {
	f.fatMu.Lock()
	f.fat[currClusterID] = layout.FatMarker{Kind: layout.FatEndOfChain}.Value()
	f.fatMu.Unlock()

	f.fatMu.RLock()
	defer f.fatMu.RUnlock()
	return f.updateNextFreeClusterLocked()
}

// FreeCluster releases clusterID back to the free pool.
func (f *Filesystem) FreeCluster(clusterID uint32) error {
	f.fatMu.Lock()
	f.fat[clusterID] = 0
	f.free.markFree(clusterID)
	f.fatMu.Unlock()

	f.mu.Lock()
	f.fsInfoSector.FreeClusterCount++
	f.fsInfoSector.NextFreeCluster = clusterID
	f.mu.Unlock()
	return nil
}
