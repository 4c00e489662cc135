package compression

import (
	"bytes"
	"io"
)

// RLE90Reader decompresses a stream encoded with the 0x90-sentinel RLE
// scheme used by several legacy disk-image formats: a run of identical
// bytes is written as one copy of the byte, then 0x90, then a repeat count
// (0 meaning "the literal byte 0x90" rather than a run).
type RLE90Reader struct {
	io.ReadCloser
	stream         io.ByteReader
	lastByte       byte
	pendingRepeats int
}

// RLE90Writer is the inverse of RLE90Reader: it buffers a run of identical
// bytes and flushes it as a 0x90-escaped sequence once the run breaks.
type RLE90Writer struct {
	io.WriteCloser
	stream   io.Writer
	lastByte int
	runLen   int
}

// NewRLE90Reader wraps rd for RLE90 decoding.
func NewRLE90Reader(rd io.ByteReader) (RLE90Reader, error) {
	return RLE90Reader{stream: rd}, nil
}

// Read decompresses into p, returning the number of bytes written.
//
// BUG: a stream starting with 0x90 followed by a non-zero byte before any
// preceding byte is read should be rejected; it currently is not.
func (reader *RLE90Reader) Read(p []byte) (int, error) {
	read := 0

	if reader.pendingRepeats > 0 {
		chunkSize := reader.pendingRepeats
		if chunkSize > len(p) {
			chunkSize = len(p)
		}
		copy(p, bytes.Repeat([]byte{reader.lastByte}, chunkSize))
		read += chunkSize
		reader.pendingRepeats -= chunkSize
	}

	for read < len(p) {
		next, err := reader.stream.ReadByte()
		if err == io.EOF {
			// EOF here (not right after a 0x90 sentinel) just means the
			// stream is exhausted, not a malformed encoding.
			return read, io.EOF
		} else if err != nil {
			return read, err
		}

		if next != '\x90' {
			reader.lastByte = next
			p[read] = next
			read++
			continue
		}

		repeatCountByte, err := reader.stream.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}

		repeatCount := int(repeatCountByte)
		if repeatCount == 0 {
			// 0x90 0x00 is the escape for a literal 0x90 byte.
			p[read] = '\x90'
			reader.lastByte = '\x90'
			read++
			continue
		}

		space := len(p) - read
		chunkSize := repeatCount
		if space < repeatCount {
			chunkSize = space
		}
		reader.pendingRepeats = repeatCount - chunkSize
		copy(p[read:read+chunkSize], bytes.Repeat([]byte{reader.lastByte}, chunkSize))
		read += chunkSize
	}

	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// ReadAll unpacks everything remaining in the reader into a byte slice.
func (reader *RLE90Reader) ReadAll() ([]byte, error) {
	var out bytes.Buffer
	var chunk [512]byte

	for {
		n, err := reader.Read(chunk[:])
		out.Write(chunk[:n])
		if err != nil {
			return out.Bytes(), err
		}
		if n < len(chunk) {
			return out.Bytes(), nil
		}
	}
}

func (reader *RLE90Reader) Close() error {
	return nil
}

// NewRLE90Writer wraps stream for RLE90 encoding.
func NewRLE90Writer(stream io.Writer) (RLE90Writer, error) {
	return RLE90Writer{stream: stream, lastByte: -1}, nil
}

// Write encodes p, buffering the tail run until it breaks or Close/Flush is
// called.
func (writer *RLE90Writer) Write(p []byte) (int, error) {
	for _, b := range p {
		switch {
		case int(b) == writer.lastByte:
			writer.runLen++
		case writer.runLen >= 1:
			if err := writer.Flush(); err != nil {
				return 0, err
			}
			writer.lastByte = int(b)
		default:
			writer.lastByte = int(b)
			if _, err := writer.stream.Write([]byte{b}); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

func (writer *RLE90Writer) writeRun(value byte, count int) error {
	for count > 3 {
		chunk := count
		if chunk > 254 {
			chunk = 254
		}
		if _, err := writer.stream.Write([]byte{0x90, byte(chunk + 1)}); err != nil {
			return err
		}
		count -= chunk
	}
	if count > 0 {
		_, err := writer.stream.Write(bytes.Repeat([]byte{value}, count))
		return err
	}
	return nil
}

// Flush writes out any buffered run without waiting for it to break.
func (writer *RLE90Writer) Flush() error {
	if err := writer.writeRun(byte(writer.lastByte), writer.runLen+1); err != nil {
		return err
	}
	writer.lastByte = -1
	writer.runLen = 0
	return nil
}

func (writer *RLE90Writer) Close() error {
	return writer.Flush()
}

// CompressBytes RLE90-encodes unpacked in memory.
func CompressBytes(unpacked []byte) ([]byte, error) {
	var out bytes.Buffer
	writer, err := NewRLE90Writer(&out)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(unpacked); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecompressBytes reverses CompressBytes.
func DecompressBytes(packed []byte) ([]byte, error) {
	reader, err := NewRLE90Reader(bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	return reader.ReadAll()
}
