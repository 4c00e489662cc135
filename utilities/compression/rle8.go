package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// CompressRLE8 run-length encodes input into output using the BMP RLE8
// convention (a repeated byte is written twice, followed by a count of how
// many additional times it repeats), until input is exhausted. The returned
// int64 is the number of bytes written, valid only when err is nil.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRLEGrouperFromReader(input)

	var written int64
	for {
		run, runErr := grouper.GetNextRun()
		if runErr != nil && !errors.Is(runErr, io.EOF) {
			return written, runErr
		}

		for run.RunLength >= 2 {
			extra := run.RunLength - 2
			if run.RunLength > 257 {
				extra = 255
			}
			n, err := output.Write([]byte{run.Byte, run.Byte, byte(extra)})
			written += int64(n)
			if err != nil {
				return written, err
			}
			run.RunLength -= extra + 2
		}
		if run.RunLength == 1 {
			n, err := output.Write([]byte{run.Byte})
			written += int64(n)
			if err != nil {
				return written, err
			}
		}

		if runErr != nil {
			// Reaching here with a non-nil runErr means it was io.EOF --
			// the only other case returns above -- so the whole input has
			// been consumed and encoded cleanly.
			return written, nil
		}
	}
}

// DecompressRLE8 reverses CompressRLE8: two identical consecutive bytes
// followed by a count byte expand back into a run; any other byte passes
// through unchanged.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	const noPendingByte = -1
	pending := noPendingByte
	var written int64

	for {
		b, err := source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read input: %w", err)
		}

		var chunk []byte
		if int(b) == pending {
			extra, err := source.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%w: missing repeat count after two %#02x bytes", io.ErrUnexpectedEOF, uint(pending))
				}
				return written, fmt.Errorf("read repeat count: %w", err)
			}
			// extra+1, not extra+2: the previous loop iteration already
			// emitted one copy of this byte.
			chunk = bytes.Repeat([]byte{b}, int(extra)+1)
			// Clear the pending marker so a run of 258+ bytes (split
			// across more than one repeat group) isn't decoded with
			// extra bytes inserted between groups.
			pending = noPendingByte
		} else {
			pending = int(b)
			chunk = []byte{b}
		}

		n, err := output.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write to output: %w", err)
		}
	}
}
