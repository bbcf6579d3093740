// Package poolconfig holds the tunable parameters shared by every
// layer of the allocator (page size, max buddy-tree order, minimum
// subpage cell size) and the capacity-normalization helper spec.md
// assumes has already run before a request reaches the chunk facade.
package poolconfig

import (
	"math/bits"

	"github.com/govetachun/bufpool/pkg/bufpoolerr"
)

// Config is the set of parameters a Chunk/Arena is built from.
// Defaults (PageSize=8192, MaxOrder=11) match spec.md §3's typical
// parameters: a 16 MiB chunk split into 2048 leaf pages.
type Config struct {
	// PageSize is the size in bytes of one buddy-tree leaf. Must be a
	// power of two.
	PageSize uint32
	// MaxOrder is the depth of the buddy tree; ChunkSize = PageSize << MaxOrder.
	MaxOrder uint32
	// MinSubpageSize is the smallest normalized capacity the subpage
	// layer will serve. Must be a power of two, >= 16.
	MinSubpageSize uint32
	// MaxCachedBuffersPerChunk bounds the chunk-local LIFO cache of
	// reusable user buffers (spec.md §4.3 step 4 / §9 open question).
	MaxCachedBuffersPerChunk int
}

// Default returns the conventional parameters cited throughout spec.md:
// 8 KiB pages, order 11 (2048 pages, 16 MiB chunks), 16 B minimum cell.
func Default() Config {
	return Config{
		PageSize:                 8192,
		MaxOrder:                 11,
		MinSubpageSize:           16,
		MaxCachedBuffersPerChunk: 32,
	}
}

// ChunkSize is PageSize * 2^MaxOrder.
func (c Config) ChunkSize() uint32 {
	return c.PageSize << c.MaxOrder
}

// SubpageOverflowMask is ~(PageSize-1): testing normCapacity&mask != 0
// decides "page-or-larger" versus "subpage" routing (spec.md §3).
func (c Config) SubpageOverflowMask() uint32 {
	return ^(c.PageSize - 1)
}

// Validate checks the config's internal consistency: power-of-two page
// size and minimum cell size, minimum cell size not larger than the
// page, and a sane order.
func (c Config) Validate() error {
	if c.PageSize == 0 || !isPowerOfTwo(c.PageSize) {
		return bufpoolerr.NewPrecondition("PageSize must be a power of two")
	}
	if c.MinSubpageSize == 0 || !isPowerOfTwo(c.MinSubpageSize) {
		return bufpoolerr.NewPrecondition("MinSubpageSize must be a power of two")
	}
	if c.MinSubpageSize > c.PageSize {
		return bufpoolerr.NewPrecondition("MinSubpageSize must not exceed PageSize")
	}
	if c.MaxOrder == 0 || c.MaxOrder > 30 {
		return bufpoolerr.NewPrecondition("MaxOrder out of range")
	}
	return nil
}

// NormalizeCapacity rounds reqCapacity up to the nearest power of two
// no smaller than MinSubpageSize, reporting failure if the result would
// exceed ChunkSize. This is the "capacity normalization" spec.md §1
// assumes is pre-applied before a request reaches the chunk facade.
func (c Config) NormalizeCapacity(reqCapacity int) (normCapacity uint32, ok bool) {
	if reqCapacity <= 0 {
		return 0, false
	}
	req := uint32(reqCapacity)
	if req <= c.MinSubpageSize {
		return c.MinSubpageSize, true
	}
	norm := nextPowerOfTwo(req)
	if norm > c.ChunkSize() {
		return 0, false
	}
	return norm, true
}

// SizeClassDepth returns the buddy-tree depth at which a run of
// normCapacity bytes is allocated: maxOrder - (log2(normCapacity) - log2(PageSize)).
// Only meaningful for normCapacity >= PageSize.
func (c Config) SizeClassDepth(normCapacity uint32) uint32 {
	return c.MaxOrder - (log2(normCapacity) - log2(c.PageSize))
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func nextPowerOfTwo(v uint32) uint32 {
	if isPowerOfTwo(v) {
		return v
	}
	return 1 << bits.Len32(v)
}

func log2(v uint32) uint32 {
	return uint32(bits.Len32(v) - 1)
}
