package fs

import (
	"sort"
	"sync"

	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/kestrelfs/ccfs/layout"
)

// DirNode is the VFS-facing handle for a directory: its packed entry
// vector, its name, its parent, and the live child nodes built from that
// entry vector. As with FileNode, the parent link is a plain pointer —
// there is no weak-reference dance here because Go's collector handles the
// resulting cycle.
type DirNode struct {
	fsys   *Filesystem
	mu     sync.RWMutex
	dir    *directory
	name   string
	parent *DirNode

	fileChildren map[string]*FileNode
	dirChildren  map[string]*DirNode
}

func newDirNode(fsys *Filesystem, dir *directory, name string, parent *DirNode) *DirNode {
	return &DirNode{
		fsys:         fsys,
		dir:          dir,
		name:         name,
		parent:       parent,
		fileChildren: make(map[string]*FileNode),
		dirChildren:  make(map[string]*DirNode),
	}
}

// Name returns the directory's current name.
func (n *DirNode) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// GetTotalSize sums the recorded size of every valid entry in this
// directory.
func (n *DirNode) GetTotalSize() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dir.size()
}

// updateChildFileSize updates the directory-entry-level file size recorded
// for childFileName.
func (n *DirNode) updateChildFileSize(childFileName string, fileSize uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dir.updateFileSize(childFileName, fileSize)
}

// IsEmpty reports whether this directory has no children at all.
func (n *DirNode) IsEmpty() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.fileChildren) == 0 && len(n.dirChildren) == 0
}

func (n *DirNode) isDirChildEmpty(name string) (bool, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	child, ok := n.dirChildren[name]
	if !ok {
		return false, false
	}
	return child.IsEmpty(), true
}

func (n *DirNode) isFileChildEmpty(name string) (bool, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	child, ok := n.fileChildren[name]
	if !ok {
		return false, false
	}
	return child.IsEmpty(), true
}

// IsChildEmpty reports whether the child named name (file or directory) is
// empty, and whether a child by that name exists at all.
func (n *DirNode) IsChildEmpty(name string) (bool, bool) {
	if empty, ok := n.isDirChildEmpty(name); ok {
		return empty, true
	}
	if empty, ok := n.isFileChildEmpty(name); ok {
		return empty, true
	}
	return false, false
}

// selfRename renames this node in place, without touching its parent's
// directory entries — callers coordinate that separately.
func (n *DirNode) selfRename(targetName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = targetName
}

// updateChildren walks this directory's entry vector and materializes a
// child DirNode or FileNode for each valid entry. Directory children are
// loaded from their own cluster chains and populated recursively, so a
// single call on the root rebuilds the whole tree at mount time.
func (n *DirNode) updateChildren() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.dir.entries) > directoryMaxEntries {
		return ccfserr.ErrInvalidArgument.WithMessage("directory entry vector exceeds %d entries", directoryMaxEntries)
	}

	for i := n.dir.startIndex(); i < len(n.dir.entries); i++ {
		entry := n.dir.entries[i]
		if !entry.IsValid() {
			continue
		}
		name, ok := entry.DecodedName()
		if !ok {
			continue
		}
		if entry.IsDir() {
			child := newDirNode(n.fsys, newDirectory(entry.FirstCluster, n.dir.selfFirstCluster()), name, n)
			if err := child.dir.updateEntriesFromDisk(n.fsys); err != nil {
				return err
			}
			if err := child.updateChildren(); err != nil {
				return err
			}
			n.dirChildren[name] = child
		} else {
			child := newFileNode(n.fsys, entry.FirstCluster, name, n)
			child.file.size = entry.FileSize
			n.fileChildren[name] = child
		}
	}
	return nil
}

// addDirChild registers child as a live directory child of n.
func (n *DirNode) addDirChild(name string, child *DirNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dirChildren[name] = child
}

// addFileChild registers child as a live file child of n.
func (n *DirNode) addFileChild(name string, child *FileNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fileChildren[name] = child
}

// createDirChild allocates a new cluster, adds a directory entry for name,
// and materializes the corresponding child DirNode.
func (n *DirNode) createDirChild(name string) error {
	encodedName, ok := layout.EncodeName(name)
	if !ok {
		return ccfserr.ErrInvalidArgument.WithMessage("name %q too long", name)
	}
	firstCluster, err := n.fsys.AllocateClusterAtStart()
	if err != nil {
		return err
	}
	entry := layout.DirEntry{Name: encodedName, Attr: layout.AttrDirectory, FirstCluster: firstCluster}

	n.mu.Lock()
	if err := n.dir.addEntry(entry); err != nil {
		n.mu.Unlock()
		return err
	}
	parentFirstCluster := n.dir.selfFirstCluster()
	n.mu.Unlock()

	child := newDirNode(n.fsys, newDirectory(firstCluster, parentFirstCluster), name, n)
	n.addDirChild(name, child)
	return nil
}

// createFileChild allocates a new cluster, adds a directory entry for
// name, and materializes the corresponding child FileNode.
func (n *DirNode) createFileChild(name string) error {
	encodedName, ok := layout.EncodeName(name)
	if !ok {
		return ccfserr.ErrInvalidArgument.WithMessage("name %q too long", name)
	}
	firstCluster, err := n.fsys.AllocateClusterAtStart()
	if err != nil {
		return err
	}
	entry := layout.DirEntry{Name: encodedName, Attr: layout.AttrArchive, FirstCluster: firstCluster}

	n.mu.Lock()
	if err := n.dir.addEntry(entry); err != nil {
		n.mu.Unlock()
		return err
	}
	n.mu.Unlock()

	child := newFileNode(n.fsys, firstCluster, name, n)
	n.addFileChild(name, child)
	return nil
}

// removeFileChild deletes name's directory entry and drops its live node.
func (n *DirNode) removeFileChild(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.dir.deleteEntry(n.fsys, name); err != nil {
		return err
	}
	delete(n.fileChildren, name)
	return nil
}

// removeDirChild deletes name's directory entry and drops its live node.
func (n *DirNode) removeDirChild(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.dir.deleteEntry(n.fsys, name); err != nil {
		return err
	}
	delete(n.dirChildren, name)
	return nil
}

func (n *DirNode) renameFileChild(originalName, targetName string) error {
	n.mu.Lock()
	if err := n.dir.updateEntryName(originalName, targetName); err != nil {
		n.mu.Unlock()
		return err
	}
	child, ok := n.fileChildren[originalName]
	if !ok {
		n.mu.Unlock()
		return ccfserr.ErrNotFound.WithMessage("no live file child named %q", originalName)
	}
	delete(n.fileChildren, originalName)
	n.fileChildren[targetName] = child
	n.mu.Unlock()

	child.selfRename(targetName)
	return nil
}

func (n *DirNode) renameDirChild(originalName, targetName string) error {
	n.mu.Lock()
	if err := n.dir.updateEntryName(originalName, targetName); err != nil {
		n.mu.Unlock()
		return err
	}
	child, ok := n.dirChildren[originalName]
	if !ok {
		n.mu.Unlock()
		return ccfserr.ErrNotFound.WithMessage("no live directory child named %q", originalName)
	}
	delete(n.dirChildren, originalName)
	n.dirChildren[targetName] = child
	n.mu.Unlock()

	child.selfRename(targetName)
	return nil
}

// renameChild renames the child named originalName to targetName, whether
// it is a file or a directory.
func (n *DirNode) renameChild(originalName, targetName string) error {
	n.mu.RLock()
	isDir, err := n.dir.isEntryDir(originalName)
	n.mu.RUnlock()
	if err != nil {
		return err
	}
	if isDir {
		return n.renameDirChild(originalName, targetName)
	}
	return n.renameFileChild(originalName, targetName)
}

// Parent returns this directory's parent, or nil for the root.
func (n *DirNode) Parent() *DirNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

func (n *DirNode) findDirChild(name string) (*DirNode, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	child, ok := n.dirChildren[name]
	return child, ok
}

func (n *DirNode) findFileChild(name string) (*FileNode, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	child, ok := n.fileChildren[name]
	return child, ok
}

// GetAttr returns this directory's VFS-facing attributes.
func (n *DirNode) GetAttr() Attr {
	return Attr{Type: NodeTypeDir, Mode: 0o755, Size: 512, Blocks: 0}
}

// Node is either a *DirNode or a *FileNode, returned by Lookup.
type Node struct {
	Dir  *DirNode
	File *FileNode
}

// IsDir reports whether this Node is a directory.
func (n Node) IsDir() bool { return n.Dir != nil }

// Lookup resolves path relative to n, recursing into child directories.
// "." resolves to n itself; ".." resolves to n's parent.
func (n *DirNode) Lookup(path string) (Node, error) {
	name, rest, hasRest := splitPath(path)

	var node Node
	switch name {
	case "", ".":
		node = Node{Dir: n}
	case "..":
		parent := n.Parent()
		if parent == nil {
			return Node{}, ErrNotFound
		}
		node = Node{Dir: parent}
	default:
		if file, ok := n.findFileChild(name); ok {
			node = Node{File: file}
		} else if dir, ok := n.findDirChild(name); ok {
			node = Node{Dir: dir}
		} else {
			return Node{}, ErrNotFound
		}
	}

	if !hasRest {
		return node, nil
	}
	if !node.IsDir() {
		return Node{}, ErrInvalidInput
	}
	return node.Dir.Lookup(rest)
}

// DirEntryInfo is one entry returned by ReadDir.
type DirEntryInfo struct {
	Name string
	Type NodeType
}

// ReadDir lists this directory's entries, synthesizing "." and ".." for
// every directory except the root, which has no such entries of its own.
func (n *DirNode) ReadDir() []DirEntryInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var out []DirEntryInfo
	if !n.dir.isRoot {
		out = append(out, DirEntryInfo{Name: ".", Type: NodeTypeDir})
		out = append(out, DirEntryInfo{Name: "..", Type: NodeTypeDir})
	}

	names := make([]string, 0, len(n.dirChildren)+len(n.fileChildren))
	for name := range n.dirChildren {
		names = append(names, name)
	}
	for name := range n.fileChildren {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := n.dirChildren[name]; ok {
			out = append(out, DirEntryInfo{Name: name, Type: NodeTypeDir})
		} else {
			out = append(out, DirEntryInfo{Name: name, Type: NodeTypeFile})
		}
	}
	return out
}

// Create makes path relative to n, creating a node of type ty at the final
// component. Intermediate directories that don't yet exist are created
// along the way — this mirrors the storage engine this was built from,
// which materializes missing parents rather than rejecting the call.
func (n *DirNode) Create(path string, ty NodeType) error {
	name, rest, hasRest := splitPath(path)

	if hasRest {
		switch name {
		case "", ".":
			return n.Create(rest, ty)
		case "..":
			parent := n.Parent()
			if parent == nil {
				return ErrNotFound
			}
			return parent.Create(rest, ty)
		default:
			subdir, ok := n.findDirChild(name)
			if !ok {
				if _, ok := n.findFileChild(name); ok {
					return ErrInvalidInput
				}
				if err := n.createDirChild(name); err != nil {
					return translateError(err)
				}
				subdir, ok = n.findDirChild(name)
				if !ok {
					return ErrUnsupported
				}
			}
			return subdir.Create(rest, ty)
		}
	}

	if name == "" || name == "." || name == ".." {
		return nil
	}

	var err error
	switch ty {
	case NodeTypeFile:
		err = n.createFileChild(name)
	case NodeTypeDir:
		err = n.createDirChild(name)
	default:
		return ErrUnsupported
	}
	return translateError(err)
}

// Remove removes path relative to n. Removing a non-empty directory fails
// with ErrDirectoryNotEmpty.
func (n *DirNode) Remove(path string) error {
	name, rest, hasRest := splitPath(path)

	if hasRest {
		switch name {
		case "", ".":
			return n.Remove(rest)
		case "..":
			parent := n.Parent()
			if parent == nil {
				return ErrNotFound
			}
			return parent.Remove(rest)
		default:
			subdir, ok := n.findDirChild(name)
			if !ok {
				return ErrNotFound
			}
			return subdir.Remove(rest)
		}
	}

	if name == "" || name == "." || name == ".." {
		return ErrInvalidInput
	}

	n.mu.RLock()
	isDir, err := n.dir.isEntryDir(name)
	n.mu.RUnlock()
	if err != nil {
		return ErrNotFound
	}

	if isDir {
		empty, ok := n.isDirChildEmpty(name)
		if !ok || !empty {
			return ErrDirectoryNotEmpty
		}
		return translateError(n.removeDirChild(name))
	}
	return translateError(n.removeFileChild(name))
}

// Rename renames a child of n named originalName to targetName.
func (n *DirNode) Rename(originalName, targetName string) error {
	return translateError(n.renameChild(originalName, targetName))
}

// Flush writes this directory's entry vector back to its own cluster
// chain on disk.
func (n *DirNode) Flush() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dir.writeEntriesToDisk(n.fsys)
}

// FlushTree writes this directory's entry vector and every descendant
// directory's entry vector back to disk, for callers (cmd/ccfsctl) that
// want to persist a whole subtree of mutations in one call rather than
// tracking which individual directories changed.
func (n *DirNode) FlushTree() error {
	if err := n.Flush(); err != nil {
		return err
	}
	n.mu.RLock()
	children := make([]*DirNode, 0, len(n.dirChildren))
	for _, child := range n.dirChildren {
		children = append(children, child)
	}
	n.mu.RUnlock()
	for _, child := range children {
		if err := child.FlushTree(); err != nil {
			return err
		}
	}
	return nil
}

// Reload replaces this directory's in-memory entry vector with whatever is
// currently packed on disk, without touching live child nodes.
func (n *DirNode) Reload() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dir.updateEntriesFromDisk(n.fsys)
}
