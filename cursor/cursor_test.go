package cursor_test

import (
	"testing"

	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/cursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) block.Device {
	t.Helper()
	return block.NewMemDevice(512, 4)
}

func TestCursorSequentialWriteReadRoundTrip(t *testing.T) {
	dev := newTestDevice(t)
	c := cursor.New(dev)

	payload := make([]byte, 700) // straddles two blocks
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := c.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.EqualValues(t, 700, c.Position())

	_, err = c.Seek(cursor.SeekStart, 0)
	require.NoError(t, err)

	out := make([]byte, len(payload))
	n, err = c.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
}

func TestCursorSeekVariants(t *testing.T) {
	dev := newTestDevice(t)
	c := cursor.New(dev)

	pos, err := c.Seek(cursor.SeekStart, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, pos)

	pos, err = c.Seek(cursor.SeekCurrent, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 150, pos)

	pos, err = c.Seek(cursor.SeekEnd, 0)
	require.NoError(t, err)
	assert.Equal(t, c.Size(), pos)

	_, err = c.Seek(cursor.SeekStart, int64(c.Size())+1)
	assert.Error(t, err)
}

func TestCursorReadAtWriteAtPreservePosition(t *testing.T) {
	dev := newTestDevice(t)
	c := cursor.New(dev)

	_, err := c.Seek(cursor.SeekStart, 10)
	require.NoError(t, err)

	payload := []byte("hello, cluster chain")
	n, err := c.WriteAt(300, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.EqualValues(t, 10, c.Position())

	out := make([]byte, len(payload))
	n, err = c.ReadAt(300, out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
	assert.EqualValues(t, 10, c.Position())
}
