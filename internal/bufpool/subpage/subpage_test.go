package subpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 8192

func newTestSubpage(head *Subpage, elemSize uint32) *Subpage {
	return New(head, 2048, 0, testPageSize, 16, elemSize)
}

func TestInitSetsUpFreshSubpage(t *testing.T) {
	head := NewHead()
	sp := newTestSubpage(head, 16)

	assert.EqualValues(t, 512, sp.MaxNumElems) // 8192/16
	assert.EqualValues(t, 512, sp.NumAvail, "freshly initialized subpage has every cell free")
	assert.True(t, sp.DoNotDestroy)
	assert.True(t, sp.InPool())
}

func TestAllocateConsumesCellsSequentially(t *testing.T) {
	head := NewHead()
	sp := newTestSubpage(head, 16)
	sp.Init(head, 16) // re-init to get a clean 512-avail state for this test

	require.EqualValues(t, 512, sp.NumAvail)

	idx0, ok := sp.Allocate()
	require.True(t, ok)
	assert.EqualValues(t, 0, idx0)
	assert.EqualValues(t, 511, sp.NumAvail)

	idx1, ok := sp.Allocate()
	require.True(t, ok)
	assert.EqualValues(t, 1, idx1)
}

func TestAllocateExhaustsAndUnlinks(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 16)
	sp.Init(head, 16)

	for i := 0; i < int(sp.MaxNumElems); i++ {
		_, ok := sp.Allocate()
		require.True(t, ok, "cell %d should be available", i)
	}
	assert.EqualValues(t, 0, sp.NumAvail)
	_, ok := sp.Allocate()
	assert.False(t, ok, "exhausted subpage must refuse further allocation")
	assert.False(t, sp.InPool(), "exhausted subpage unlinks from its pool")
}

func TestFreeRelinksExhaustedSubpage(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 16)
	sp.Init(head, 16)

	var allocated []uint32
	for i := 0; i < int(sp.MaxNumElems); i++ {
		idx, ok := sp.Allocate()
		require.True(t, ok)
		allocated = append(allocated, idx)
	}
	require.False(t, sp.InPool())

	stillInUse := sp.Free(head, allocated[0])
	assert.True(t, stillInUse)
	assert.True(t, sp.InPool(), "first free after exhaustion relinks into the pool")
}

func TestFreeAllRetainsSingleMemberPool(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 32)
	sp.Init(head, 32)

	var allocated []uint32
	for i := 0; i < int(sp.MaxNumElems); i++ {
		idx, ok := sp.Allocate()
		require.True(t, ok)
		allocated = append(allocated, idx)
	}

	var lastResult bool
	for _, idx := range allocated {
		lastResult = sp.Free(head, idx)
	}

	assert.True(t, lastResult, "fully-free, sole pool member must stay linked (spec.md §4.2 step 4)")
	assert.True(t, sp.InPool())
	assert.EqualValues(t, sp.MaxNumElems, sp.NumAvail)
	assert.True(t, sp.DoNotDestroy)
}

func TestFreeAllUnlinksWhenAnotherSubpageSharesThePool(t *testing.T) {
	head := NewHead()
	sp1 := New(head, 2048, 0, testPageSize, 16, 32)
	sp1.Init(head, 32)
	sp2 := New(head, 2049, int64(testPageSize), testPageSize, 16, 32)
	sp2.Init(head, 32)

	var allocated []uint32
	for i := 0; i < int(sp1.MaxNumElems); i++ {
		idx, ok := sp1.Allocate()
		require.True(t, ok)
		allocated = append(allocated, idx)
	}

	var lastResult bool
	for _, idx := range allocated {
		lastResult = sp1.Free(head, idx)
	}

	assert.False(t, lastResult, "fully-free subpage with siblings in the pool must be retired")
	assert.False(t, sp1.InPool())
	assert.False(t, sp1.DoNotDestroy)
}

func TestPopCountMatchesInvariant(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 16)
	sp.Init(head, 16)

	for i := 0; i < 10; i++ {
		_, ok := sp.Allocate()
		require.True(t, ok)
	}
	assert.EqualValues(t, sp.MaxNumElems, sp.PopCount()+sp.NumAvail)
}

func TestMultiWordBitmapScan(t *testing.T) {
	// 8192/16 = 512 cells > 64, exercises multi-word bitmap (spec.md §8
	// boundary behavior).
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 16)
	sp.Init(head, 16)
	require.Greater(t, sp.bitmapLength, 1)

	// fill the first word exactly, then allocate one more: must land in
	// word index 1, bit 0.
	for i := 0; i < 64; i++ {
		_, ok := sp.Allocate()
		require.True(t, ok)
	}
	idx, ok := sp.Allocate()
	require.True(t, ok)
	assert.EqualValues(t, 64, idx)
}

func TestStringFormat(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 16)
	sp.Init(head, 16)
	_, _ = sp.Allocate()

	s := sp.String()
	assert.Contains(t, s, "(2048:")
	assert.Contains(t, s, "1/512")
	assert.Contains(t, s, "elemSize: 16")
}

func TestNotInUseString(t *testing.T) {
	head := NewHead()
	sp := New(head, 2048, 0, testPageSize, 16, 32)
	var allocated []uint32
	for i := 0; i < int(sp.MaxNumElems); i++ {
		idx, ok := sp.Allocate()
		require.True(t, ok)
		allocated = append(allocated, idx)
	}
	other := New(head, 2049, int64(testPageSize), testPageSize, 16, 32)
	other.Init(head, 32)
	for _, idx := range allocated {
		sp.Free(head, idx)
	}
	require.False(t, sp.DoNotDestroy)
	assert.Equal(t, "(2048: not in use)", sp.String())
}
