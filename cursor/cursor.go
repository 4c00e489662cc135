// Package cursor provides byte-granular, position-tracking I/O over a
// block.Device: the lowest layer of the storage engine, translating
// arbitrary-length reads and writes into the fixed-size block operations
// the device contract offers.
package cursor

import (
	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/ccfserr"
)

// Whence selects the reference point for Seek.
type Whence int

const (
	// SeekStart seeks relative to byte 0.
	SeekStart Whence = iota
	// SeekCurrent seeks relative to the current position.
	SeekCurrent
	// SeekEnd seeks relative to the end of the device.
	SeekEnd
)

// Cursor tracks a byte position over a block.Device and turns it into
// whole-device reads and writes, straddling block boundaries as needed.
// A Cursor is not safe for concurrent use; callers needing that guarantee
// should go through sector.Manager instead.
type Cursor struct {
	dev     block.Device
	blockID uint64
	offset  int
}

// New wraps dev with a cursor positioned at byte 0.
func New(dev block.Device) *Cursor {
	return &Cursor{dev: dev}
}

// Size returns the total addressable size of the underlying device, in bytes.
func (c *Cursor) Size() uint64 {
	return c.dev.NumBlocks() * uint64(c.dev.BlockSize())
}

// BlockSize returns the size in bytes of one block on the underlying device.
func (c *Cursor) BlockSize() int {
	return c.dev.BlockSize()
}

// Position returns the cursor's current byte offset from the start of the
// device.
func (c *Cursor) Position() uint64 {
	return c.blockID*uint64(c.dev.BlockSize()) + uint64(c.offset)
}

// SetPosition moves the cursor to an absolute byte offset without bounds
// checking; out-of-range positions surface as errors on the next I/O.
func (c *Cursor) SetPosition(pos uint64) {
	blockSize := uint64(c.dev.BlockSize())
	c.blockID = pos / blockSize
	c.offset = int(pos % blockSize)
}

// readOne reads within a single block, returning the number of bytes read.
func (c *Cursor) readOne(buf []byte) (int, error) {
	blockSize := c.dev.BlockSize()
	if c.offset == 0 && len(buf) >= blockSize {
		if err := c.dev.ReadBlock(c.blockID, buf[:blockSize]); err != nil {
			return 0, err
		}
		c.blockID++
		return blockSize, nil
	}

	data := make([]byte, blockSize)
	start := c.offset
	count := len(buf)
	if remaining := blockSize - c.offset; count > remaining {
		count = remaining
	}

	if err := c.dev.ReadBlock(c.blockID, data); err != nil {
		return 0, err
	}
	copy(buf[:count], data[start:start+count])

	c.offset += count
	if c.offset >= blockSize {
		c.blockID++
		c.offset -= blockSize
	}
	return count, nil
}

// writeOne writes within a single block, returning the number of bytes
// written.
func (c *Cursor) writeOne(buf []byte) (int, error) {
	blockSize := c.dev.BlockSize()
	if c.offset == 0 && len(buf) >= blockSize {
		if err := c.dev.WriteBlock(c.blockID, buf[:blockSize]); err != nil {
			return 0, err
		}
		c.blockID++
		return blockSize, nil
	}

	data := make([]byte, blockSize)
	start := c.offset
	count := len(buf)
	if remaining := blockSize - c.offset; count > remaining {
		count = remaining
	}

	if err := c.dev.ReadBlock(c.blockID, data); err != nil {
		return 0, err
	}
	copy(data[start:start+count], buf[:count])
	if err := c.dev.WriteBlock(c.blockID, data); err != nil {
		return 0, err
	}

	c.offset += count
	if c.offset >= blockSize {
		c.blockID++
		c.offset -= blockSize
	}
	return count, nil
}

// Read fills buf completely from the current position, advancing the
// cursor, straddling as many blocks as necessary.
func (c *Cursor) Read(buf []byte) (int, error) {
	read := 0
	for len(buf) > 0 {
		n, err := c.readOne(buf)
		if err != nil {
			return read, err
		}
		if n == 0 {
			break
		}
		buf = buf[n:]
		read += n
	}
	return read, nil
}

// Write pushes all of buf out from the current position, advancing the
// cursor, straddling as many blocks as necessary.
func (c *Cursor) Write(buf []byte) (int, error) {
	written := 0
	for len(buf) > 0 {
		n, err := c.writeOne(buf)
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		buf = buf[n:]
		written += n
	}
	return written, nil
}

// Seek moves the cursor according to whence and offset, returning the new
// absolute position. It rejects any position beyond the device's size.
func (c *Cursor) Seek(whence Whence, offset int64) (uint64, error) {
	size := c.Size()
	var newPos uint64
	switch whence {
	case SeekStart:
		if offset < 0 {
			return 0, ccfserr.ErrInvalidArgument.WithMessage("negative seek-from-start offset %d", offset)
		}
		newPos = uint64(offset)
	case SeekCurrent:
		signed := int64(c.Position()) + offset
		if signed < 0 {
			return 0, ccfserr.ErrInvalidArgument.WithMessage("seek before start of device")
		}
		newPos = uint64(signed)
	case SeekEnd:
		signed := int64(size) + offset
		if signed < 0 {
			return 0, ccfserr.ErrInvalidArgument.WithMessage("seek before start of device")
		}
		newPos = uint64(signed)
	default:
		return 0, ccfserr.ErrInvalidArgument.WithMessage("unknown seek whence %d", whence)
	}
	if newPos > size {
		return 0, ccfserr.ErrInvalidArgument.WithMessage("seek position %d beyond device size %d", newPos, size)
	}
	c.SetPosition(newPos)
	return newPos, nil
}

// ReadAt reads len(buf) bytes starting at globalOffset without disturbing
// the cursor's position for subsequent sequential reads.
func (c *Cursor) ReadAt(globalOffset uint64, buf []byte) (int, error) {
	saved := c.Position()
	if _, err := c.Seek(SeekStart, int64(globalOffset)); err != nil {
		return 0, err
	}
	n, err := c.Read(buf)
	if _, seekErr := c.Seek(SeekStart, int64(saved)); seekErr != nil && err == nil {
		err = seekErr
	}
	return n, err
}

// WriteAt writes buf starting at globalOffset without disturbing the
// cursor's position for subsequent sequential writes.
func (c *Cursor) WriteAt(globalOffset uint64, buf []byte) (int, error) {
	saved := c.Position()
	if _, err := c.Seek(SeekStart, int64(globalOffset)); err != nil {
		return 0, err
	}
	n, err := c.Write(buf)
	if _, seekErr := c.Seek(SeekStart, int64(saved)); seekErr != nil && err == nil {
		err = seekErr
	}
	return n, err
}
