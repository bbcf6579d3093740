// Package chunk implements the buddy-tree allocator over one
// contiguous memory region (spec.md §3, §4.1) and the facade that
// dispatches a normalized request to either the buddy tree directly
// (page-or-larger requests) or a per-leaf subpage bitmap allocator
// (spec.md §4.3).
//
// The buddy tree is a complete binary tree encoded in a flat,
// 1-indexed array (memoryMap/depthMap), exactly as spec.md §9
// prescribes: "it is not a language accident, it is the data
// structure." The traversal shape (descend toward the shallowest free
// child, propagate min() back to the root) is grounded on
// achilleasa-gopher-os/kernel/mem/physical/allocator.go's
// reserveFreePage/updateLowerOrderBitmaps/updateHigherOrderBitmaps,
// translated from that file's per-order bitmap scheme into spec.md's
// single min-heap-over-depth scheme.
package chunk

import (
	"fmt"

	"github.com/govetachun/bufpool/internal/bufpool/bufassert"
	"github.com/govetachun/bufpool/internal/bufpool/handle"
	"github.com/govetachun/bufpool/internal/bufpool/poolconfig"
	"github.com/govetachun/bufpool/internal/bufpool/subpage"
)

// PoolHeadLookup returns the size-class sentinel subpage for a given
// normalized capacity, the one callback spec.md §4.3/§6 requires the
// arena to supply ("subpagePoolHead(normCapacity) -> head").
type PoolHeadLookup func(normCapacity uint32) *subpage.Subpage

// Chunk is one contiguous preallocated memory region, subdivided by
// the buddy tree into runs of pages and, below page granularity, by
// per-leaf Subpages.
type Chunk struct {
	cfg poolconfig.Config

	// Memory is the backing region; opaque to this package beyond
	// length and indexing (spec.md §3's "memory: the backing region").
	Memory []byte
	// BaseOffset is added to every computed in-chunk offset, letting a
	// caller place several chunks inside one larger addressable space
	// if desired; 0 for a chunk that owns its own Memory outright.
	BaseOffset int64

	// memoryMap/depthMap are 1-indexed, length 2*2^maxOrder.
	memoryMap []uint8
	depthMap  []uint8

	// subpages holds one slot per leaf page, lazily populated and
	// reused (spec.md §3).
	subpages []*subpage.Subpage

	freeBytes int64

	unusable            uint8
	subpageOverflowMask uint32

	numPages uint32 // 2^maxOrder

	// cachedBuffers is the bounded, chunk-local LIFO cache of reusable
	// user buffers (spec.md §4.3 step 4 / §9 open question), resolved
	// in SPEC_FULL.md §4.8 as chunk-owned rather than arena-owned. The
	// element type is left as `any` here so this package stays
	// independent of pkg/pooledbuf; callers populate/drain it directly.
	cachedBuffers []any
	maxCached     int
}

// New builds a fresh, fully-free chunk of cfg.ChunkSize() bytes backed
// by the given memory region (len(memory) must equal cfg.ChunkSize()).
func New(cfg poolconfig.Config, memory []byte, baseOffset int64) *Chunk {
	bufassert.Assert(uint32(len(memory)) == cfg.ChunkSize(), "chunk: memory length must equal ChunkSize")

	numPages := uint32(1) << cfg.MaxOrder
	size := 2 * numPages

	c := &Chunk{
		cfg:                 cfg,
		Memory:              memory,
		BaseOffset:          baseOffset,
		memoryMap:           make([]uint8, size),
		depthMap:            make([]uint8, size),
		subpages:            make([]*subpage.Subpage, numPages),
		freeBytes:           int64(cfg.ChunkSize()),
		unusable:            uint8(cfg.MaxOrder) + 1,
		subpageOverflowMask: cfg.SubpageOverflowMask(),
		numPages:            numPages,
		maxCached:           cfg.MaxCachedBuffersPerChunk,
	}
	for id := uint32(1); id < size; id++ {
		d := depthOf(id)
		c.memoryMap[id] = d
		c.depthMap[id] = d
	}
	return c
}

// FreeBytes returns the chunk's currently unallocated byte count
// (spec.md §3's freeBytes, §8 property 2).
func (c *Chunk) FreeBytes() int64 { return c.freeBytes }

// ChunkSize returns the total capacity of this chunk.
func (c *Chunk) ChunkSize() int64 { return int64(c.cfg.ChunkSize()) }

// Usage returns the percent-full metric from spec.md §6: 100 only when
// fully allocated, 99 when close but nonzero free bytes remain.
func (c *Chunk) Usage() int {
	freePercentage := int(c.freeBytes * 100 / c.ChunkSize())
	usage := 100 - freePercentage
	if usage == 100 && c.freeBytes != 0 {
		// fully allocated per the truncated percentage, but bytes
		// remain: report 99, reserve 100 for truly full.
		return 99
	}
	return usage
}

// Allocation is what Allocate populates: the pieces an external
// caller needs to locate and bound the allocated bytes (spec.md §6
// "outputs": offset, length, maxLength, plus the handle and the
// elemSize actually backing it, 0 for a run allocation).
type Allocation struct {
	Handle    handle.Handle
	Offset    int64
	Length    int64
	MaxLength int64
	ElemSize  uint32
}

// Allocate satisfies a normalized request. Page-or-larger requests go
// straight to the buddy tree (AllocateRun); smaller requests go
// through AllocateSubpage. ok is false if this chunk cannot currently
// satisfy the request (spec.md §7 kind 1 — non-fatal, caller tries
// another chunk).
func (c *Chunk) Allocate(normCapacity uint32, poolHead PoolHeadLookup) (Allocation, bool) {
	if normCapacity&c.subpageOverflowMask != 0 {
		return c.allocateRun(normCapacity)
	}
	return c.allocateSubpage(normCapacity, poolHead)
}

// allocateRun reserves a run of pages at the depth normCapacity maps
// to (spec.md §4.1 allocateRun).
func (c *Chunk) allocateRun(normCapacity uint32) (Allocation, bool) {
	depth := c.cfg.SizeClassDepth(normCapacity)
	id, ok := c.allocateNode(uint8(depth))
	if !ok {
		return Allocation{}, false
	}
	length := c.runLength(id)
	c.freeBytes -= length
	return Allocation{
		Handle:    handle.EncodeRun(id),
		Offset:    c.runOffset(id) + c.BaseOffset,
		Length:    length,
		MaxLength: length,
	}, true
}

// AllocateFromSubpage reserves one cell from a subpage the caller
// already knows has room (the arena-owned size-class pool, checked
// before any chunk is touched — spec.md's introduction scopes "subpage
// pools by size class" to the arena, not the chunk facade). sp must
// belong to this chunk. No buddy-tree or freeBytes change: the leaf
// backing sp was already reserved from the tree when sp was first
// created, and freeBytes only tracks whole-page reservations, not
// individual cell occupancy within an already-reserved page.
func (c *Chunk) AllocateFromSubpage(sp *subpage.Subpage, normCapacity uint32) (Allocation, bool) {
	bitmapIdx, ok := sp.Allocate()
	if !ok {
		return Allocation{}, false
	}
	return Allocation{
		Handle:    handle.EncodeSubpage(sp.MemoryMapIdx, bitmapIdx),
		Offset:    sp.RunOffset + int64(bitmapIdx)*int64(normCapacity) + c.BaseOffset,
		Length:    int64(normCapacity),
		MaxLength: int64(normCapacity),
		ElemSize:  normCapacity,
	}, true
}

// allocateSubpage implements spec.md §4.3's allocateSubpage: reserve a
// fresh leaf, get-or-create its Subpage at the requested elemSize, and
// delegate to the subpage's own bitmap allocator. Reached only once
// the caller (the arena) has already found the size class's pool
// empty — AllocateFromSubpage is the fast path for a pool that still
// has room. If the leaf reservation succeeds but the subpage (which is
// freshly initialized and therefore guaranteed at least one free
// cell) were somehow unable to allocate, the leaf reservation is
// rolled back — spec.md §7's "no operation is partial" guarantee,
// implemented defensively even though unreachable under the stated
// invariants.
func (c *Chunk) allocateSubpage(normCapacity uint32, poolHead PoolHeadLookup) (Allocation, bool) {
	head := poolHead(normCapacity)

	leafID, ok := c.allocateNode(uint8(c.cfg.MaxOrder))
	if !ok {
		return Allocation{}, false
	}
	c.freeBytes -= int64(c.cfg.PageSize)

	subpageIdx := leafID ^ (uint32(1) << c.cfg.MaxOrder)
	sp := c.subpages[subpageIdx]
	runOff := c.runOffset(leafID)
	if sp == nil {
		sp = subpage.New(head, leafID, runOff, c.cfg.PageSize, c.cfg.MinSubpageSize, normCapacity)
		sp.Owner = c
		c.subpages[subpageIdx] = sp
	} else {
		sp.Init(head, normCapacity)
	}

	bitmapIdx, allocated := sp.Allocate()
	if !allocated {
		// Unreachable under the documented invariants (a freshly
		// initialized subpage always has >=1 free cell), but rolled
		// back rather than leaving a leaf reserved with no handle to
		// show for it (spec.md §7).
		c.freeNode(leafID)
		c.freeBytes += int64(c.cfg.PageSize)
		return Allocation{}, false
	}

	return Allocation{
		Handle:    handle.EncodeSubpage(leafID, bitmapIdx),
		Offset:    runOff + int64(bitmapIdx)*int64(normCapacity) + c.BaseOffset,
		Length:    int64(normCapacity),
		MaxLength: int64(normCapacity),
		ElemSize:  normCapacity,
	}, true
}

// Free releases a previously allocated handle. poolHead is consulted
// only for subpage handles, to find the size-class sentinel the
// subpage should relink into.
func (c *Chunk) Free(h handle.Handle, poolHead PoolHeadLookup) {
	memoryMapIdx := h.MemoryMapIdx()
	if !h.IsSubpage() {
		length := c.runLength(memoryMapIdx)
		c.freeNode(memoryMapIdx)
		c.freeBytes += length
		return
	}

	subpageIdx := memoryMapIdx ^ (uint32(1) << c.cfg.MaxOrder)
	sp := c.subpages[subpageIdx]
	bufassert.Assert(sp != nil, "chunk: free of subpage handle with no backing subpage")

	head := poolHead(sp.ElemSize)
	stillInUse := sp.Free(head, h.BitmapIdx())
	if stillInUse {
		return
	}

	// Subpage fully drained and retired: release the leaf page itself.
	c.freeNode(memoryMapIdx)
	c.freeBytes += int64(c.cfg.PageSize)
}

// PushCachedBuffer appends buf to this chunk's bounded LIFO cache,
// dropping the oldest entry if already at capacity (spec.md §4.3 step
// 4 / §9 open question).
func (c *Chunk) PushCachedBuffer(buf any) {
	if c.maxCached <= 0 {
		return
	}
	if len(c.cachedBuffers) >= c.maxCached {
		c.cachedBuffers = c.cachedBuffers[1:]
	}
	c.cachedBuffers = append(c.cachedBuffers, buf)
}

// PopCachedBuffer removes and returns the most recently pushed buffer,
// or nil if the cache is empty (LIFO).
func (c *Chunk) PopCachedBuffer() any {
	n := len(c.cachedBuffers)
	if n == 0 {
		return nil
	}
	buf := c.cachedBuffers[n-1]
	c.cachedBuffers = c.cachedBuffers[:n-1]
	return buf
}

// Subpage returns the subpage backing the leaf at memoryMapIdx, or nil
// if that leaf has never hosted a subpage allocation. Exposed for
// diagnostics and testing invariants.
func (c *Chunk) Subpage(memoryMapIdx uint32) *subpage.Subpage {
	idx := memoryMapIdx ^ (uint32(1) << c.cfg.MaxOrder)
	if idx >= uint32(len(c.subpages)) {
		return nil
	}
	return c.subpages[idx]
}

// MemoryMapValue exposes memoryMap[id] for invariant testing
// (spec.md §8 property 1).
func (c *Chunk) MemoryMapValue(id uint32) uint8 { return c.memoryMap[id] }

// DepthMapValue exposes depthMap[id] for invariant testing.
func (c *Chunk) DepthMapValue(id uint32) uint8 { return c.depthMap[id] }

// Unusable is the sentinel value marking a fully-allocated subtree.
func (c *Chunk) Unusable() uint8 { return c.unusable }

func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk(usage: %d%%, free: %d/%d)", c.Usage(), c.freeBytes, c.ChunkSize())
}
