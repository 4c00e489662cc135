package fs

import (
	"github.com/kestrelfs/ccfs/ccfserr"
)

// file is a cursor over one file's cluster chain: its recorded size, first
// cluster, and the cluster/offset the cursor is currently parked at.
type file struct {
	fsys           *Filesystem
	size           uint32
	firstCluster   uint32
	currentCluster uint32
	offset         uint32
}

func newFile(fsys *Filesystem, firstCluster uint32) *file {
	return &file{fsys: fsys, firstCluster: firstCluster, currentCluster: firstCluster}
}

func (f *file) fileSize() uint64 {
	return uint64(f.size)
}

// logicalPosition returns the cursor's byte offset from the start of the
// file, counting chain links from firstCluster up to the cached
// currentCluster.
func (f *file) logicalPosition() (uint64, error) {
	cluster := f.firstCluster
	var index uint64
	for cluster != f.currentCluster {
		if f.fsys.IsEnd(cluster) {
			return 0, ccfserr.ErrIO.WithMessage("cluster %d not on file chain", f.currentCluster)
		}
		next, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		cluster = next
		index++
	}
	return index*uint64(f.fsys.BytesPerCluster()) + uint64(f.offset), nil
}

// readAll reads the file's entire contents by walking its whole cluster
// chain, then trims the result down to the recorded file size.
func (f *file) readAll() ([]byte, error) {
	var clusters []uint32
	curr := f.firstCluster
	for !f.fsys.IsEnd(curr) {
		if f.fsys.IsBadCluster(curr) {
			return nil, ccfserr.ErrIO.WithMessage("bad cluster %d in file chain", curr)
		}
		clusters = append(clusters, curr)
		next, err := f.fsys.GetFatEntry(curr)
		if err != nil {
			return nil, err
		}
		curr = next
	}

	data := make([]byte, 0, len(clusters)*int(f.fsys.BytesPerCluster()))
	for _, c := range clusters {
		chunk, err := f.fsys.ReadCluster(c)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}
	if uint64(len(data)) > f.fileSize() {
		data = data[:f.fileSize()]
	}
	return data, nil
}

// readAt reads into buf starting at byteOffset, returning the number of
// bytes actually read, and leaves the cursor parked at the cluster/offset
// reached.
func (f *file) readAt(byteOffset uint64, buf []byte) (int, error) {
	if byteOffset >= f.fileSize() {
		return 0, nil
	}

	bytesPerCluster := uint64(f.fsys.BytesPerCluster())
	fileSize := f.fileSize()
	offset := byteOffset % bytesPerCluster
	clustersNum := byteOffset / bytesPerCluster

	cluster := f.firstCluster
	for i := uint64(0); i < clustersNum; i++ {
		next, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		cluster = next
	}

	bufOffset := 0
	prevCluster := cluster
	for bufOffset < len(buf) && !f.fsys.IsEnd(cluster) {
		clusterData, err := f.fsys.ReadCluster(cluster)
		if err != nil {
			return 0, err
		}
		remainingData := fileSize - (byteOffset + uint64(bufOffset))
		remainingSpaceInBuf := uint64(len(buf) - bufOffset)
		readSize := minU64(remainingData, bytesPerCluster-offset, remainingSpaceInBuf)

		copy(buf[bufOffset:bufOffset+int(readSize)], clusterData[offset:offset+readSize])
		bufOffset += int(readSize)

		if readSize == bytesPerCluster-offset {
			offset = 0
		} else {
			offset += readSize
		}
		prevCluster = cluster
		next, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		cluster = next
	}

	f.currentCluster = prevCluster
	f.offset = uint32(offset)
	return bufOffset, nil
}

// readSeq reads the remainder of the current cluster starting at the
// cursor's offset, then advances the cursor to the next cluster.
func (f *file) readSeq() ([]byte, error) {
	clusterData, err := f.fsys.ReadCluster(f.currentCluster)
	if err != nil {
		return nil, err
	}
	readSize := f.fsys.BytesPerCluster() - f.offset
	data := make([]byte, readSize)
	copy(data, clusterData[f.offset:f.offset+readSize])

	f.offset = 0
	next, err := f.fsys.GetFatEntry(f.currentCluster)
	if err != nil {
		return nil, err
	}
	f.currentCluster = next
	return data, nil
}

// writeAt writes buf starting at byteOffset, which must not be past the
// current end of the file, allocating new clusters at the end of the chain
// as needed, and updates the recorded file size.
func (f *file) writeAt(byteOffset uint64, buf []byte) (int, error) {
	if byteOffset > f.fileSize() || (f.fileSize() == 0 && byteOffset != 0) {
		return 0, ccfserr.ErrInvalidArgument.WithMessage("write offset %d beyond file size %d", byteOffset, f.fileSize())
	}

	bytesPerCluster := uint64(f.fsys.BytesPerCluster())
	oldSize := f.fileSize()
	offset := byteOffset % bytesPerCluster
	clustersNum := byteOffset / bytesPerCluster

	cluster := f.firstCluster
	for i := uint64(0); i < clustersNum; i++ {
		next, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		cluster = next
	}

	bufOffset := 0
	for bufOffset < len(buf) {
		clusterData, err := f.fsys.ReadCluster(cluster)
		if err != nil {
			return 0, err
		}
		remainingSpace := bytesPerCluster - offset
		writeSize := minU64(uint64(len(buf)-bufOffset), remainingSpace)
		copy(clusterData[offset:offset+writeSize], buf[bufOffset:bufOffset+int(writeSize)])
		bufOffset += int(writeSize)
		offset += writeSize
		if err := f.fsys.WriteCluster(cluster, clusterData); err != nil {
			return 0, err
		}

		nextCluster, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		if bufOffset < len(buf) {
			if f.fsys.IsEnd(nextCluster) {
				allocated, err := f.fsys.AllocateClusterAtEnd(cluster)
				if err != nil {
					return 0, err
				}
				cluster = allocated
			} else {
				cluster = nextCluster
			}
			offset = 0
		}
	}

	f.currentCluster = cluster
	f.offset = uint32(offset)
	f.updateFileSize(uint32(maxU64(oldSize, byteOffset+uint64(len(buf)))))
	return bufOffset, nil
}

// writeSeq writes buf starting at the cursor's current cluster/offset,
// allocating new clusters at the end of the chain as needed.
func (f *file) writeSeq(buf []byte) (int, error) {
	bytesPerCluster := uint64(f.fsys.BytesPerCluster())
	cluster := f.currentCluster
	offset := uint64(f.offset)
	oldSize := f.fileSize()
	startPos, err := f.logicalPosition()
	if err != nil {
		return 0, err
	}

	bufOffset := 0
	for bufOffset < len(buf) {
		clusterData, err := f.fsys.ReadCluster(cluster)
		if err != nil {
			return 0, err
		}
		remainingSpace := bytesPerCluster - offset
		writeSize := minU64(uint64(len(buf)-bufOffset), remainingSpace)
		copy(clusterData[offset:offset+writeSize], buf[bufOffset:bufOffset+int(writeSize)])
		bufOffset += int(writeSize)
		offset += writeSize
		if err := f.fsys.WriteCluster(cluster, clusterData); err != nil {
			return 0, err
		}

		nextCluster, err := f.fsys.GetFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		if bufOffset < len(buf) {
			if f.fsys.IsEnd(nextCluster) {
				allocated, err := f.fsys.AllocateClusterAtEnd(cluster)
				if err != nil {
					return 0, err
				}
				cluster = allocated
			} else {
				cluster = nextCluster
			}
			offset = 0
		}
	}

	f.currentCluster = cluster
	f.offset = uint32(offset)
	f.updateFileSize(uint32(maxU64(oldSize, startPos+uint64(len(buf)))))
	return bufOffset, nil
}

// seekFromStart parks the cursor at pos bytes from the start of the file.
// pos must be strictly less than the file's current size; this mirrors the
// storage engine this was built from, which rejects pos == size rather
// than treating it as a valid end-of-file cursor position.
func (f *file) seekFromStart(pos uint64) error {
	if pos >= f.fileSize() {
		return ccfserr.ErrInvalidArgument.WithMessage("seek position %d not before file size %d", pos, f.fileSize())
	}
	bytesPerCluster := uint64(f.fsys.BytesPerCluster())
	clustersNum := pos / bytesPerCluster

	currCluster := f.firstCluster
	for i := uint64(0); i < clustersNum; i++ {
		next, err := f.fsys.GetFatEntry(currCluster)
		if err != nil {
			return err
		}
		currCluster = next
	}
	f.currentCluster = currCluster
	f.offset = uint32(pos % bytesPerCluster)
	return nil
}

func (f *file) seekFromEnd(off int64) error {
	newPos, ok := addSigned(f.fileSize(), off)
	if !ok {
		return ccfserr.ErrInvalidArgument.WithMessage("seek before start of file")
	}
	return f.seekFromStart(newPos)
}

func (f *file) seekFromCurrent(off int64) error {
	pos, err := f.logicalPosition()
	if err != nil {
		return err
	}
	newPos, ok := addSigned(pos, off)
	if !ok {
		return ccfserr.ErrInvalidArgument.WithMessage("seek before start of file")
	}
	return f.seekFromStart(newPos)
}

// truncate resizes the file to size, freeing superfluous clusters when
// shrinking or allocating new ones when growing.
func (f *file) truncate(size uint64) error {
	currentSize := f.fileSize()
	clusterSize := uint64(f.fsys.BytesPerCluster())

	if size == currentSize {
		return nil
	}

	if size < currentSize {
		newClusterCount := (size + clusterSize - 1) / clusterSize
		// A file always keeps its first cluster, even at size zero, so the
		// free loop below never touches the head of the chain.
		if newClusterCount == 0 {
			newClusterCount = 1
		}
		currCluster := f.firstCluster
		prevCluster := currCluster
		for i := uint64(0); i < newClusterCount; i++ {
			prevCluster = currCluster
			next, err := f.fsys.GetFatEntry(currCluster)
			if err != nil {
				return err
			}
			currCluster = next
		}
		clusterToFree := currCluster
		for !f.fsys.IsEnd(clusterToFree) {
			nextCluster, err := f.fsys.GetFatEntry(clusterToFree)
			if err != nil {
				return err
			}
			if err := f.fsys.FreeCluster(clusterToFree); err != nil {
				return err
			}
			if f.fsys.IsEnd(nextCluster) {
				break
			}
			clusterToFree = nextCluster
		}
		if err := f.fsys.LinkToEnd(prevCluster); err != nil {
			return err
		}
	} else {
		additionalClusters := (size - currentSize + clusterSize - 1) / clusterSize
		lastCluster := f.firstCluster
		for {
			next, err := f.fsys.GetFatEntry(lastCluster)
			if err != nil {
				return err
			}
			if f.fsys.IsEnd(next) {
				break
			}
			lastCluster = next
		}
		for i := uint64(0); i < additionalClusters; i++ {
			allocated, err := f.fsys.AllocateClusterAtEnd(lastCluster)
			if err != nil {
				return err
			}
			lastCluster = allocated
		}
	}

	f.updateFileSize(uint32(size))
	f.currentCluster = f.firstCluster
	f.offset = 0
	return nil
}

func (f *file) updateFileSize(size uint32) {
	f.size = size
}

func minU64(values ...uint64) uint64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func addSigned(base uint64, off int64) (uint64, bool) {
	result := int64(base) + off
	if result < 0 {
		return 0, false
	}
	return uint64(result), true
}
