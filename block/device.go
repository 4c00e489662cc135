// Package block defines the block-device contract the storage engine is
// built on (spec's external collaborator, referenced only by interface) and
// provides one in-memory reference implementation for tests and tooling.
package block

import (
	"fmt"
	"io"

	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/xaionaro-go/bytesextra"
)

// Device offers fixed-size block read/write of equal-sized blocks. All
// blocks are the same size; all failures surface as a single opaque error.
type Device interface {
	// BlockSize returns the size in bytes of one block. Typically 512.
	BlockSize() int
	// NumBlocks returns the total number of blocks on the device.
	NumBlocks() uint64
	// ReadBlock transfers exactly BlockSize() bytes from block id into buf.
	ReadBlock(id uint64, buf []byte) error
	// WriteBlock transfers exactly BlockSize() bytes from buf into block id.
	WriteBlock(id uint64, buf []byte) error
}

// MemDevice is a Device backed by an in-memory byte slice. It is the
// reference implementation used by tests, ccfstest, and cmd/ccfsctl's
// in-memory workflows.
type MemDevice struct {
	blockSize int
	data      []byte
	stream    io.ReadWriteSeeker
	numBlocks uint64
}

// NewMemDevice creates a MemDevice of numBlocks blocks of blockSize bytes
// each, zero-filled.
func NewMemDevice(blockSize int, numBlocks uint64) *MemDevice {
	buf := make([]byte, uint64(blockSize)*numBlocks)
	return WrapBytes(blockSize, buf)
}

// WrapBytes wraps an existing byte slice as a MemDevice. len(data) must be
// an exact multiple of blockSize.
func WrapBytes(blockSize int, data []byte) *MemDevice {
	return &MemDevice{
		blockSize: blockSize,
		data:      data,
		stream:    bytesextra.NewReadWriteSeeker(data),
		numBlocks: uint64(len(data)) / uint64(blockSize),
	}
}

func (d *MemDevice) BlockSize() int    { return d.blockSize }
func (d *MemDevice) NumBlocks() uint64 { return d.numBlocks }

func (d *MemDevice) checkBounds(id uint64, bufLen int) error {
	if id >= d.numBlocks {
		return ccfserr.ErrInvalidArgument.WithMessage(
			"block id %d out of range [0, %d)", id, d.numBlocks)
	}
	if bufLen != d.blockSize {
		return ccfserr.ErrInvalidArgument.WithMessage(
			"buffer length %d does not match block size %d", bufLen, d.blockSize)
	}
	return nil
}

func (d *MemDevice) ReadBlock(id uint64, buf []byte) error {
	if err := d.checkBounds(id, len(buf)); err != nil {
		return err
	}
	offset := int64(id) * int64(d.blockSize)
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return ccfserr.ErrIO.WithMessage("seek to block %d: %s", id, err)
	}
	n, err := d.stream.Read(buf)
	if err != nil || n != d.blockSize {
		return ccfserr.ErrIO.WithMessage("read block %d: %s", id, err)
	}
	return nil
}

func (d *MemDevice) WriteBlock(id uint64, buf []byte) error {
	if err := d.checkBounds(id, len(buf)); err != nil {
		return err
	}
	offset := int64(id) * int64(d.blockSize)
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return ccfserr.ErrIO.WithMessage("seek to block %d: %s", id, err)
	}
	n, err := d.stream.Write(buf)
	if err != nil || n != d.blockSize {
		return ccfserr.ErrIO.WithMessage("write block %d: %s", id, err)
	}
	return nil
}

// Bytes returns the raw backing storage, for tools that want to persist or
// inspect the whole image (e.g. cmd/ccfsctl).
func (d *MemDevice) Bytes() []byte {
	return d.data
}

func (d *MemDevice) String() string {
	return fmt.Sprintf("MemDevice(blockSize=%d, numBlocks=%d)", d.blockSize, d.numBlocks)
}
