package volumes_test

import (
	"testing"

	"github.com/kestrelfs/ccfs/volumes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownPreset(t *testing.T) {
	preset, err := volumes.Get("tiny")
	require.NoError(t, err)
	assert.Equal(t, "tiny", preset.Slug)
	assert.EqualValues(t, 1048576, preset.TotalSizeBytes)
	assert.EqualValues(t, 2048, preset.NumBlocks())
}

func TestGetUnknownPresetFails(t *testing.T) {
	_, err := volumes.Get("does-not-exist")
	assert.Error(t, err)
}

func TestListReturnsAllPresets(t *testing.T) {
	all := volumes.List()
	assert.GreaterOrEqual(t, len(all), 5)
}

func TestPresetGeometryRoundTrip(t *testing.T) {
	preset, err := volumes.Get("small")
	require.NoError(t, err)
	geometry := preset.Geometry()
	assert.Equal(t, preset.SectorsPerCluster, geometry.SectorsPerCluster)
	assert.Equal(t, preset.FatCount, geometry.FatCount)
	assert.Equal(t, preset.RootDirSectors, geometry.RootDirSectors)
}
