// Package ccfstest provides shared fixtures for exercising the filesystem
// engine in tests: random and formatted in-memory volumes, and helpers for
// loading compressed golden images, filling the role testing/images.go and
// testing/blockcache.go play for the engine this was built from.
package ccfstest

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/fs"
	"github.com/kestrelfs/ccfs/utilities/compression"
	"github.com/stretchr/testify/require"
)

// NewRandomDevice builds a blockSize*numBlocks MemDevice filled with random
// bytes, useful for exercising code paths that must tolerate pre-existing
// garbage on disk before a volume is formatted onto it.
func NewRandomDevice(t *testing.T, blockSize int, numBlocks uint64) *block.MemDevice {
	t.Helper()
	data := make([]byte, uint64(blockSize)*numBlocks)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to fill %d blocks of size %d with random bytes", numBlocks, blockSize)
	return block.WrapBytes(blockSize, data)
}

// NewFormattedVolume formats a fresh MemDevice of numBlocks 512-byte blocks
// with geometry, and mounts it, failing the test on any error.
func NewFormattedVolume(t *testing.T, numBlocks uint64, geometry fs.Geometry) (*block.MemDevice, *fs.Filesystem) {
	t.Helper()
	dev := block.NewMemDevice(512, numBlocks)
	fsys, err := fs.Format(dev, geometry)
	require.NoError(t, err, "failed to format test volume")
	return dev, fsys
}

// LoadCompressedImage decompresses a gzip+RLE8-encoded golden image (as
// produced by utilities/compression.CompressImage) and wraps it as a
// MemDevice, failing the test if the decompressed size doesn't match
// blockSize*numBlocks.
func LoadCompressedImage(t *testing.T, compressed []byte, blockSize int, numBlocks uint64) *block.MemDevice {
	t.Helper()
	require.NotEmpty(t, compressed, "compressed image fixture is empty")

	data, err := compression.DecompressImageToBytes(bytes.NewReader(compressed))
	require.NoError(t, err, "failed to decompress image fixture")
	require.EqualValues(t, blockSize*int(numBlocks), len(data), "decompressed image is the wrong size")

	return block.WrapBytes(blockSize, data)
}
