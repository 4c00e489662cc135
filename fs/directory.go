package fs

import (
	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/kestrelfs/ccfs/layout"
)

// directoryMaxEntries bounds how large a single directory's entry vector
// may grow, whether backed by one cluster or a chain of them.
const directoryMaxEntries = 512

// directory holds the decoded entry vector of one directory, mirroring
// exactly what's packed across its cluster chain on disk. Index 0 is
// always "." and index 1 is always ".." for every directory except the
// root, which carries neither and stores its children starting at index 0.
type directory struct {
	entries      []layout.DirEntry
	firstCluster uint32
	isRoot       bool
}

// newRootDirectory builds the root directory's entry vector from the
// entries already decoded off disk. The root has no "." entry of its own,
// so its first cluster is recorded explicitly rather than read from the
// entry vector.
func newRootDirectory(firstCluster uint32, entries []layout.DirEntry) *directory {
	cp := make([]layout.DirEntry, len(entries))
	copy(cp, entries)
	return &directory{entries: cp, firstCluster: firstCluster, isRoot: true}
}

// newDirectory builds a non-root directory's entry vector, seeding the
// conventional "." and ".." entries pointing at firstCluster and
// parentFirstCluster respectively.
func newDirectory(firstCluster, parentFirstCluster uint32) *directory {
	dotName, _ := layout.EncodeName(".")
	dotDotName, _ := layout.EncodeName("..")
	return &directory{
		entries: []layout.DirEntry{
			{Name: dotName, Attr: layout.AttrDirectory, FirstCluster: firstCluster},
			{Name: dotDotName, Attr: layout.AttrDirectory, FirstCluster: parentFirstCluster},
		},
		firstCluster: firstCluster,
		isRoot:       false,
	}
}

func (d *directory) startIndex() int {
	if d.isRoot {
		return 0
	}
	return 2
}

// size sums the recorded file size of every valid entry.
func (d *directory) size() uint32 {
	var total uint32
	for _, e := range d.entries {
		if e.IsValid() {
			total += e.FileSize
		}
	}
	return total
}

// selfFirstCluster returns the first cluster of this directory itself (the
// cluster holding its own entry vector).
func (d *directory) selfFirstCluster() uint32 {
	return d.firstCluster
}

// findNextFreeEntry finds the index of the first invalid (deleted or
// never-used) entry past the reserved "."/".." slots.
func (d *directory) findNextFreeEntry() (int, bool) {
	for i := d.startIndex(); i < len(d.entries); i++ {
		if !d.entries[i].IsValid() {
			return i, true
		}
	}
	return 0, false
}

// entryByName returns the index of the entry named name, if any.
func (d *directory) entryByName(name string) (int, bool) {
	for i, e := range d.entries {
		decoded, ok := e.DecodedName()
		if ok && decoded == name {
			return i, true
		}
	}
	return 0, false
}

func (d *directory) setEntries(entries []layout.DirEntry) {
	d.entries = entries
}

// updateFileSize sets the recorded file size of the entry named fileName.
func (d *directory) updateFileSize(fileName string, fileSize uint32) error {
	for i := d.startIndex(); i < len(d.entries); i++ {
		decoded, ok := d.entries[i].DecodedName()
		if ok && decoded == fileName {
			d.entries[i].FileSize = fileSize
			return nil
		}
	}
	return ccfserr.ErrNotFound.WithMessage("no entry named %q", fileName)
}

// updateEntriesFromDisk walks this directory's own cluster chain and
// replaces entries with whatever is packed on disk.
func (d *directory) updateEntriesFromDisk(fsys *Filesystem) error {
	var newEntries []layout.DirEntry
	currCluster := d.selfFirstCluster()

	for !fsys.IsEnd(currCluster) {
		if fsys.IsBadCluster(currCluster) {
			return ccfserr.ErrIO.WithMessage("bad cluster %d in directory chain", currCluster)
		}
		clusterData, err := fsys.ReadCluster(currCluster)
		if err != nil {
			return err
		}
		for i := 0; i+layout.DirEntrySize <= len(clusterData); i += layout.DirEntrySize {
			newEntries = append(newEntries, layout.NewDirEntry(clusterData[i:i+layout.DirEntrySize]))
		}
		next, err := fsys.GetFatEntry(currCluster)
		if err != nil {
			return err
		}
		currCluster = next
	}
	d.setEntries(newEntries)
	return nil
}

// writeEntriesToDisk packs entries back across this directory's own
// cluster chain, advancing by one batch of entries (bytesPerCluster /
// DirEntrySize) per cluster.
func (d *directory) writeEntriesToDisk(fsys *Filesystem) error {
	currCluster := d.selfFirstCluster()
	entriesPerCluster := int(fsys.BytesPerCluster()) / layout.DirEntrySize
	entriesIdx := 0

	for !fsys.IsEnd(currCluster) {
		if fsys.IsBadCluster(currCluster) {
			return ccfserr.ErrIO.WithMessage("bad cluster %d in directory chain", currCluster)
		}
		clusterData, err := fsys.ReadCluster(currCluster)
		if err != nil {
			return err
		}
		for i := 0; i < entriesPerCluster && entriesIdx < len(d.entries); i++ {
			copy(clusterData[i*layout.DirEntrySize:(i+1)*layout.DirEntrySize], d.entries[entriesIdx].AsBytes())
			entriesIdx++
		}
		if err := fsys.WriteCluster(currCluster, clusterData); err != nil {
			return err
		}
		next, err := fsys.GetFatEntry(currCluster)
		if err != nil {
			return err
		}
		currCluster = next
	}
	if entriesIdx < len(d.entries) {
		return ccfserr.ErrUnsupported.WithMessage(
			"directory chain holds %d of %d entries; growing the chain here is not supported",
			entriesIdx, len(d.entries))
	}
	return nil
}

// addEntry places entry in the first free slot, or appends a new slot if
// none is free and the directory hasn't hit its entry cap.
func (d *directory) addEntry(entry layout.DirEntry) error {
	if idx, ok := d.findNextFreeEntry(); ok {
		d.entries[idx] = entry
		return nil
	}
	if len(d.entries) >= directoryMaxEntries {
		return ccfserr.ErrNoSpace.WithMessage("directory has reached its %d entry limit", directoryMaxEntries)
	}
	d.entries = append(d.entries, entry)
	return nil
}

// deleteEntry marks the entry named name as deleted and frees its cluster
// chain.
func (d *directory) deleteEntry(fsys *Filesystem, name string) error {
	idx, ok := d.entryByName(name)
	if !ok {
		return ccfserr.ErrNotFound.WithMessage("no entry named %q", name)
	}
	d.entries[idx].Name[0] = 0xE5

	currCluster := d.entries[idx].FirstCluster
	for !fsys.IsEnd(currCluster) {
		if fsys.IsBadCluster(currCluster) {
			return ccfserr.ErrIO.WithMessage("bad cluster %d while freeing %q", currCluster, name)
		}
		next, err := fsys.GetFatEntry(currCluster)
		if err != nil {
			return err
		}
		if err := fsys.FreeCluster(currCluster); err != nil {
			return err
		}
		currCluster = next
	}
	return nil
}

// isEntryDir reports whether the entry named name is a directory.
func (d *directory) isEntryDir(name string) (bool, error) {
	idx, ok := d.entryByName(name)
	if !ok {
		return false, ccfserr.ErrNotFound.WithMessage("no entry named %q", name)
	}
	return d.entries[idx].IsDir(), nil
}

// updateEntryName renames the entry currently called originalName to
// targetName.
func (d *directory) updateEntryName(originalName, targetName string) error {
	idx, ok := d.entryByName(originalName)
	if !ok {
		return ccfserr.ErrNotFound.WithMessage("no entry named %q", originalName)
	}
	newName, ok := layout.EncodeName(targetName)
	if !ok {
		return ccfserr.ErrInvalidArgument.WithMessage("name %q too long", targetName)
	}
	d.entries[idx].Name = newName
	return nil
}
