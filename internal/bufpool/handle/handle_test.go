package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRun(t *testing.T) {
	h := EncodeRun(1)
	assert.False(t, h.IsSubpage())
	assert.EqualValues(t, 1, h.MemoryMapIdx())
	assert.EqualValues(t, 0, h.BitmapIdx())
}

func TestEncodeSubpageZeroBitmapIdx(t *testing.T) {
	// The marker bit is what disambiguates a subpage cell at bitmapIdx==0
	// from a pure run handle on the same memoryMapIdx (spec.md §4.4).
	h := EncodeSubpage(2048, 0)
	require.True(t, h.IsSubpage())
	assert.EqualValues(t, 2048, h.MemoryMapIdx())
	assert.EqualValues(t, 0, h.BitmapIdx())

	run := EncodeRun(2048)
	assert.NotEqual(t, h, run, "subpage cell 0 must not collide with the pure-run encoding")
}

func TestEncodeSubpageRoundTrip(t *testing.T) {
	cases := []struct {
		memoryMapIdx uint32
		bitmapIdx    uint32
	}{
		{0, 0},
		{2048, 511},
		{4095, 1<<30 - 1},
		{1, 1},
	}
	for _, c := range cases {
		h := EncodeSubpage(c.memoryMapIdx, c.bitmapIdx)
		assert.True(t, h.IsSubpage())
		assert.EqualValues(t, c.memoryMapIdx, h.MemoryMapIdx())
		assert.EqualValues(t, c.bitmapIdx, h.BitmapIdx())
	}
}

func TestBitmapIdxMasksToThirtyBits(t *testing.T) {
	// Only the low 30 bits of bitmapIdx survive encoding.
	h := EncodeSubpage(0, 0xFFFFFFFF)
	assert.EqualValues(t, bitmapIdxMask, h.BitmapIdx())
}
