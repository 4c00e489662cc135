package fs_test

import (
	"bytes"
	"testing"

	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/kestrelfs/ccfs/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVolume(t *testing.T) *fs.Filesystem {
	t.Helper()
	dev := block.NewMemDevice(512, 2048)
	fsys, err := fs.Format(dev, fs.Geometry{})
	require.NoError(t, err)
	return fsys
}

func TestFormatAndMountEmptyRoot(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NotNil(t, root)
	assert.Empty(t, root.ReadDir())
	assert.Equal(t, fs.NodeTypeDir, root.GetAttr().Type)
}

func TestCreateAndWriteReadFile(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()

	require.NoError(t, root.Create("hello.txt", fs.NodeTypeFile))

	node, err := root.Lookup("hello.txt")
	require.NoError(t, err)
	require.False(t, node.IsDir())

	payload := []byte("hello, cluster-chain filesystem")
	n, err := node.File.WriteAt(0, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.EqualValues(t, len(payload), node.File.Size())

	out := make([]byte, len(payload))
	n, err = node.File.ReadAt(0, out)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)

	all, err := node.File.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestWriteSpanningMultipleClusters(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("big.bin", fs.NodeTypeFile))
	node, err := root.Lookup("big.bin")
	require.NoError(t, err)

	bytesPerCluster := fsys.BytesPerCluster()
	payload := make([]byte, bytesPerCluster*3+17)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	n, err := node.File.WriteAt(0, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out, err := node.File.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestTruncateGrowAndShrink(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("f.bin", fs.NodeTypeFile))
	node, err := root.Lookup("f.bin")
	require.NoError(t, err)

	payload := make([]byte, 100)
	_, err = node.File.WriteAt(0, payload)
	require.NoError(t, err)

	require.NoError(t, node.File.Truncate(10))
	assert.EqualValues(t, 10, node.File.Size())

	require.NoError(t, node.File.Truncate(uint64(fsys.BytesPerCluster())*2))
	assert.EqualValues(t, fsys.BytesPerCluster()*2, node.File.Size())
}

func TestNestedDirectoriesAndAutoVivification(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()

	require.NoError(t, root.Create("a/b/c.txt", fs.NodeTypeFile))

	node, err := root.Lookup("a")
	require.NoError(t, err)
	require.True(t, node.IsDir())

	node, err = root.Lookup("a/b")
	require.NoError(t, err)
	require.True(t, node.IsDir())

	node, err = root.Lookup("a/b/c.txt")
	require.NoError(t, err)
	require.False(t, node.IsDir())
}

func TestLookupDotAndDotDot(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("sub", fs.NodeTypeDir))

	sub, err := root.Lookup("sub")
	require.NoError(t, err)

	self, err := sub.Dir.Lookup(".")
	require.NoError(t, err)
	assert.Equal(t, sub.Dir, self.Dir)

	parent, err := sub.Dir.Lookup("..")
	require.NoError(t, err)
	assert.Equal(t, root, parent.Dir)
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("sub/child.txt", fs.NodeTypeFile))

	err := root.Remove("sub")
	assert.ErrorIs(t, err, fs.ErrDirectoryNotEmpty)

	require.NoError(t, root.Remove("sub/child.txt"))
	require.NoError(t, root.Remove("sub"))

	_, err = root.Lookup("sub")
	assert.ErrorIs(t, err, fs.ErrNotFound)
}

func TestRenameFileChild(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("old.txt", fs.NodeTypeFile))

	require.NoError(t, root.Rename("old.txt", "new.txt"))

	_, err := root.Lookup("old.txt")
	assert.ErrorIs(t, err, fs.ErrNotFound)

	node, err := root.Lookup("new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", node.File.Name())
}

// Walks a short file through a boundary-crossing write and a truncation,
// watching the allocator hint move with the chain.
func TestClusterBoundaryWriteAndTruncate(t *testing.T) {
	dev := block.NewMemDevice(512, 4096)
	fsys, err := fs.Format(dev, fs.Geometry{})
	require.NoError(t, err)
	root := fsys.RootDirNode()

	require.NoError(t, root.Create("test.txt", fs.NodeTypeFile))
	node, err := root.Lookup("test.txt")
	require.NoError(t, err)
	file := node.File

	ones := bytes.Repeat([]byte{1}, 7)
	n, err := file.WriteAt(0, ones)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	assert.EqualValues(t, 7, file.Size())

	out := make([]byte, 7)
	_, err = file.ReadAt(0, out)
	require.NoError(t, err)
	assert.Equal(t, ones, out)

	hint := fsys.GetNextFreeCluster()

	// 5+521 = 526 bytes crosses the 512-byte cluster boundary, so the chain
	// grows by one cluster and the hint moves past it.
	twos := bytes.Repeat([]byte{2}, 521)
	n, err = file.WriteAt(5, twos)
	require.NoError(t, err)
	require.Equal(t, 521, n)
	assert.EqualValues(t, 526, file.Size())
	assert.Equal(t, hint+1, fsys.GetNextFreeCluster())

	all, err := file.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 526)
	assert.Equal(t, append(bytes.Repeat([]byte{1}, 5), twos...), all)

	// Shrinking back under one cluster frees the extension cluster, and the
	// hint snaps back to it.
	require.NoError(t, file.Truncate(10))
	assert.EqualValues(t, 10, file.Size())
	assert.Equal(t, hint, fsys.GetNextFreeCluster())

	all, err = file.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 2, 2, 2, 2, 2}, all)
}

func TestReadAtEndOfFileReturnsZero(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("f.txt", fs.NodeTypeFile))
	node, err := root.Lookup("f.txt")
	require.NoError(t, err)

	_, err = node.File.WriteAt(0, []byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := node.File.ReadAt(node.File.Size(), buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteAtPastEndFails(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("f.txt", fs.NodeTypeFile))
	node, err := root.Lookup("f.txt")
	require.NoError(t, err)

	_, err = node.File.WriteAt(0, []byte("abc"))
	require.NoError(t, err)

	_, err = node.File.WriteAt(node.File.Size()+1, []byte("x"))
	assert.Error(t, err)
}

func TestAllocatorExhaustion(t *testing.T) {
	// 64 blocks: 32 reserved, 1 FAT sector per copy, 1 root dir sector,
	// leaving 30 clusters of which the root holds one.
	dev := block.NewMemDevice(512, 64)
	fsys, err := fs.Format(dev, fs.Geometry{})
	require.NoError(t, err)

	allocated := 0
	for {
		_, err := fsys.AllocateClusterAtStart()
		if err != nil {
			assert.ErrorIs(t, err, ccfserr.ErrNoSpace)
			break
		}
		allocated++
		require.Less(t, allocated, 64, "allocator never reported exhaustion")
	}
	assert.Equal(t, 28, allocated)
}

func TestRenameDirKeepsChildrenResolvable(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("dir1/inner.txt", fs.NodeTypeFile))

	require.NoError(t, root.Rename("dir1", "dir2"))

	_, err := root.Lookup("dir1")
	assert.ErrorIs(t, err, fs.ErrNotFound)

	node, err := root.Lookup("dir2")
	require.NoError(t, err)
	assert.Equal(t, "dir2", node.Dir.Name())

	_, err = root.Lookup("dir2/inner.txt")
	require.NoError(t, err)

	// Renaming back restores the original namespace.
	require.NoError(t, root.Rename("dir2", "dir1"))
	_, err = root.Lookup("dir1/inner.txt")
	require.NoError(t, err)
}

func TestCreateThenRemoveIsNamespaceNoop(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()

	before := root.ReadDir()
	require.NoError(t, root.Create("ephemeral.txt", fs.NodeTypeFile))
	require.NoError(t, root.Remove("ephemeral.txt"))
	assert.Equal(t, before, root.ReadDir())

	_, err := root.Lookup("ephemeral.txt")
	assert.ErrorIs(t, err, fs.ErrNotFound)
}

func TestTruncateIsIdempotent(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("f.bin", fs.NodeTypeFile))
	node, err := root.Lookup("f.bin")
	require.NoError(t, err)

	_, err = node.File.WriteAt(0, make([]byte, 700))
	require.NoError(t, err)

	require.NoError(t, node.File.Truncate(100))
	hint := fsys.GetNextFreeCluster()
	require.NoError(t, node.File.Truncate(100))
	assert.EqualValues(t, 100, node.File.Size())
	assert.Equal(t, hint, fsys.GetNextFreeCluster())
}

func TestTruncateToZeroKeepsFirstCluster(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("f.bin", fs.NodeTypeFile))
	node, err := root.Lookup("f.bin")
	require.NoError(t, err)

	free := fsys.FreeClusterCount()
	_, err = node.File.WriteAt(0, make([]byte, 700))
	require.NoError(t, err)
	assert.Equal(t, free-1, fsys.FreeClusterCount())

	// Truncating to zero frees the extension cluster but never the chain
	// head, so the counters return to their pre-write values and the file
	// stays writable.
	require.NoError(t, node.File.Truncate(0))
	assert.Zero(t, node.File.Size())
	assert.Equal(t, free, fsys.FreeClusterCount())

	payload := []byte("still writable")
	_, err = node.File.WriteAt(0, payload)
	require.NoError(t, err)
	all, err := node.File.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestFlushAndRemountPreservesTree(t *testing.T) {
	dev := block.NewMemDevice(512, 2048)
	fsys, err := fs.Format(dev, fs.Geometry{})
	require.NoError(t, err)
	root := fsys.RootDirNode()

	require.NoError(t, root.Create("docs", fs.NodeTypeDir))
	require.NoError(t, root.Create("docs/readme.txt", fs.NodeTypeFile))

	node, err := root.Lookup("docs/readme.txt")
	require.NoError(t, err)
	payload := []byte("persisted across a remount")
	_, err = node.File.WriteAt(0, payload)
	require.NoError(t, err)

	require.NoError(t, root.FlushTree())
	require.NoError(t, fsys.Flush())

	remounted, err := fs.Init(dev)
	require.NoError(t, err)

	node, err = remounted.RootDirNode().Lookup("docs/readme.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), node.File.Size())

	all, err := node.File.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestReadDirListsChildren(t *testing.T) {
	fsys := newTestVolume(t)
	root := fsys.RootDirNode()
	require.NoError(t, root.Create("a.txt", fs.NodeTypeFile))
	require.NoError(t, root.Create("b", fs.NodeTypeDir))

	entries := root.ReadDir()
	names := map[string]fs.NodeType{}
	for _, e := range entries {
		names[e.Name] = e.Type
	}
	assert.Equal(t, fs.NodeTypeFile, names["a.txt"])
	assert.Equal(t, fs.NodeTypeDir, names["b"])
}
