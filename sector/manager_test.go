package sector_test

import (
	"testing"

	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/cursor"
	"github.com/kestrelfs/ccfs/sector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *sector.Manager {
	t.Helper()
	dev := block.NewMemDevice(512, 4)
	return sector.NewManager(cursor.New(dev))
}

func TestManagerTypedAtOffset(t *testing.T) {
	m := newManager(t)

	require.NoError(t, m.Write8(0, 0x42))
	v8, err := m.Read8(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), v8)

	require.NoError(t, m.Write16(8, 0xBEEF))
	v16, err := m.Read16(8)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)

	require.NoError(t, m.Write32(16, 0xDEADBEEF))
	v32, err := m.Read32(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)
}

func TestManagerSequentialAccessors(t *testing.T) {
	m := newManager(t)
	m.SetPosition(0)

	require.NoError(t, m.Write32Seq(1))
	require.NoError(t, m.Write32Seq(2))
	require.NoError(t, m.Write16Seq(3))
	require.NoError(t, m.Write8Seq(4))

	m.SetPosition(0)
	a, err := m.Read32Seq()
	require.NoError(t, err)
	b, err := m.Read32Seq()
	require.NoError(t, err)
	c, err := m.Read16Seq()
	require.NoError(t, err)
	d, err := m.Read8Seq()
	require.NoError(t, err)

	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)
	assert.Equal(t, uint16(3), c)
	assert.Equal(t, uint8(4), d)
}

func TestManagerSectorSizeAndCount(t *testing.T) {
	m := newManager(t)
	assert.Equal(t, 512, m.SectorSize())
	assert.EqualValues(t, 512*4, m.SectorCount())
}

func TestManagerReadWriteSectorSeq(t *testing.T) {
	m := newManager(t)
	payload := make([]byte, m.SectorSize())
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, m.WriteSectorSeq(payload))

	m.SetPosition(0)
	out, err := m.ReadSectorSeq()
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
