package memsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapNewRegionSizedAndZeroed(t *testing.T) {
	var src Heap
	region, err := src.NewRegion(4096)
	require.NoError(t, err)
	assert.Len(t, region, 4096)
	for _, b := range region {
		assert.Zero(t, b)
	}
	assert.NoError(t, src.Release(region))
}

func TestMmapNewRegionSizedAndReleasable(t *testing.T) {
	var src Mmap
	region, err := src.NewRegion(4096)
	require.NoError(t, err)
	assert.Len(t, region, 4096)

	region[0] = 0xFF
	region[4095] = 0xAA
	assert.Equal(t, byte(0xFF), region[0])

	assert.NoError(t, src.Release(region))
}
