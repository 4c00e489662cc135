package compression

import (
	"bufio"
	"errors"
	"io"
	"math"
)

// ByteRun is a single run of one repeated byte value.
type ByteRun struct {
	// Byte is the value that repeats.
	Byte byte
	// RunLength is how many times Byte repeats consecutively.
	//
	// A valid run always has this 1 or greater. Anything less signals EOF or
	// an error; see InvalidRLERun.
	RunLength int
}

// InvalidRLERun is returned alongside a non-nil error from
// [RLEGrouper.GetNextRun].
var InvalidRLERun = ByteRun{0, 0}

// RLEGrouper turns a stream of bytes into a stream of [ByteRun] values, the
// way the `uniq` command line utility groups adjacent duplicate lines.
type RLEGrouper struct {
	source io.ByteScanner
}

// NewRLEGrouperFromReader wraps an [io.Reader] that may not support
// unreading a byte.
func NewRLEGrouperFromReader(r io.Reader) RLEGrouper {
	return NewRLEGrouperFromByteScanner(bufio.NewReader(r))
}

// NewRLEGrouperFromByteScanner wraps an [io.ByteScanner] directly, skipping
// the bufio.Reader allocation NewRLEGrouperFromReader needs.
func NewRLEGrouperFromByteScanner(source io.ByteScanner) RLEGrouper {
	return RLEGrouper{source: source}
}

// GetNextRun reads the next run of identical bytes from the stream.
//
// The returned error mirrors [io.Reader.Read]: a non-zero RunLength pairs
// with either a nil error or io.EOF; a zero RunLength (InvalidRLERun) pairs
// with io.EOF or some other non-nil error.
func (grouper RLEGrouper) GetNextRun() (ByteRun, error) {
	first, err := grouper.source.ReadByte()
	if err != nil {
		return InvalidRLERun, err
	}

	length := 1
	for ; length < math.MaxInt; length++ {
		next, err := grouper.source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// EOF ends the run; no byte was read, so nothing to unread.
				return ByteRun{Byte: first, RunLength: length}, io.EOF
			}
			return InvalidRLERun, err
		}

		if next != first {
			grouper.source.UnreadByte()
			return ByteRun{Byte: first, RunLength: length}, nil
		}
	}

	// math.MaxInt bytes of the same value in a row is implausible, but stop
	// here rather than overflow length.
	return ByteRun{Byte: first, RunLength: length}, nil
}
