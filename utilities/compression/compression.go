package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressImage run-length encodes input with RLE8, then gzips the result
// into output at the highest compression level.
//
// The returned int64 is the number of bytes written to output. On error its
// value is undefined.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	counter := &byteCountingWriter{dest: output}

	gzWriter, err := gzip.NewWriterLevel(counter, gzip.BestCompression)
	if err != nil {
		return 0, fmt.Errorf("create gzip writer: %w", err)
	}

	_, rleErr := CompressRLE8(input, gzWriter)
	closeErr := gzWriter.Close()
	switch {
	case rleErr != nil:
		return counter.written, fmt.Errorf("rle8 compress: %w", rleErr)
	case closeErr != nil:
		return counter.written, fmt.Errorf("gzip flush: %w", closeErr)
	}
	return counter.written, nil
}

// DecompressImage reverses CompressImage: gunzip input, then undo the RLE8
// encoding into output.
//
// The returned int64 is the number of decompressed bytes written to output.
// On error its value is undefined.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes decompresses input the same way DecompressImage
// does, but returns the result as a byte slice instead of writing through an
// io.Writer. Used to materialize embedded golden test images in memory.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := DecompressImage(input, &buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// byteCountingWriter forwards writes to dest while tallying how many bytes
// were actually accepted, since io.Writer alone doesn't expose a running
// total.
type byteCountingWriter struct {
	dest    io.Writer
	written int64
}

func (w *byteCountingWriter) Write(b []byte) (int, error) {
	n, err := w.dest.Write(b)
	w.written += int64(n)
	return n, err
}
