// Package arena owns the pool of chunks a single size-class family
// draws from: it picks which chunk services a request, grows the pool
// when every existing chunk is full, and hands each size class its
// stable subpage sentinel (spec.md §4.5).
//
// The chunk selection heap is grounded on
// concurrent-reader-writer/define.go's ReaderList — a container/heap.Interface
// over a slice of pointers, each tracking its own heap index for
// O(log n) Fix after a field it's ordered by changes. Here the
// ordering key is usage (least-full first) instead of reader version.
package arena

import (
	"container/heap"
	"sync"

	"github.com/govetachun/bufpool/internal/bufpool/chunk"
	"github.com/govetachun/bufpool/internal/bufpool/handle"
	"github.com/govetachun/bufpool/internal/bufpool/lockring"
	"github.com/govetachun/bufpool/internal/bufpool/memsource"
	"github.com/govetachun/bufpool/internal/bufpool/poolconfig"
	"github.com/govetachun/bufpool/internal/bufpool/subpage"
	"github.com/govetachun/bufpool/pkg/bufpoolerr"
)

// entry wraps one chunk with its position in the selection heap.
type entry struct {
	c     *chunk.Chunk
	index int
}

// chunkHeap orders entries by ascending usage: the least-full chunk is
// always tried first (spec.md §4.5 "try each chunk in heap order").
type chunkHeap []*entry

func (h chunkHeap) Len() int            { return len(h) }
func (h chunkHeap) Less(i, j int) bool  { return h[i].c.Usage() < h[j].c.Usage() }
func (h chunkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *chunkHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *chunkHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	e.index = -1
	*h = old[:n-1]
	return e
}

// Arena is one pool of same-shaped chunks, growing on demand.
type Arena struct {
	mu sync.Mutex

	cfg   poolconfig.Config
	src   memsource.Source
	heap  chunkHeap
	locks *lockring.Registry

	headsMu sync.Mutex
	heads   map[uint32]*subpage.Subpage
}

// New builds an empty arena: no chunks until the first Allocate call
// triggers growth.
func New(cfg poolconfig.Config, src memsource.Source) *Arena {
	return &Arena{
		cfg:   cfg,
		src:   src,
		locks: lockring.NewRegistry(),
	}
}

// Allocation is what Arena.Allocate hands back: enough to locate the
// bytes and, later, free them.
type Allocation struct {
	Chunk     *chunk.Chunk
	Handle    handle.Handle
	Offset    int64
	Length    int64
	MaxLength int64
	ElemSize  uint32
}

// Allocate normalizes reqCapacity and satisfies it from the
// least-full existing chunk, growing the pool by one chunk if none
// can (spec.md §4.5).
func (a *Arena) Allocate(reqCapacity int) (Allocation, error) {
	normCapacity, ok := a.cfg.NormalizeCapacity(reqCapacity)
	if !ok {
		return Allocation{}, bufpoolerr.NewPrecondition("requested capacity must be positive and must not exceed chunk size")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if alloc, ok := a.allocateFromHeap(normCapacity); ok {
		return alloc, nil
	}

	if err := a.grow(); err != nil {
		return Allocation{}, err
	}

	if alloc, ok := a.allocateFromHeap(normCapacity); ok {
		return alloc, nil
	}
	return Allocation{}, bufpoolerr.NewCapacityUnavailable(reqCapacity)
}

// allocateFromHeap is the arena-level dispatch point: for a sub-page
// request, first try the size class's existing pool (spec.md's
// introduction: the arena "holds... subpage pools by size class") so
// that many small requests pack into one leaf's bitmap instead of each
// claiming a fresh leaf; only on a pool miss does it fall through to
// trying every chunk in usage order, which reserves a new leaf. Must
// be called with a.mu held.
func (a *Arena) allocateFromHeap(normCapacity uint32) (Allocation, bool) {
	if normCapacity < a.cfg.PageSize {
		if alloc, ok := a.allocateFromExistingSubpage(normCapacity); ok {
			return alloc, true
		}
	}

	for i, e := range a.heap {
		var lock *lockring.Lock
		if normCapacity < a.cfg.PageSize {
			lock = a.locks.Get(normCapacity)
			lock.Acquire()
		}
		result, ok := e.c.Allocate(normCapacity, a.subpagePoolHead)
		if lock != nil {
			lock.Release()
		}
		if !ok {
			continue
		}
		heap.Fix(&a.heap, i)
		return Allocation{
			Chunk:     e.c,
			Handle:    result.Handle,
			Offset:    result.Offset,
			Length:    result.Length,
			MaxLength: result.MaxLength,
			ElemSize:  result.ElemSize,
		}, true
	}
	return Allocation{}, false
}

// allocateFromExistingSubpage tries the size class's pool head: if any
// subpage is already linked in (has spare cells), reserve a cell from
// it directly rather than reserving a fresh leaf. Returns ok=false on
// an empty pool (head self-looping) so the caller falls through to the
// per-chunk path.
func (a *Arena) allocateFromExistingSubpage(normCapacity uint32) (Allocation, bool) {
	head := a.subpagePoolHead(normCapacity)

	lock := a.locks.Get(normCapacity)
	lock.Acquire()
	defer lock.Release()

	if head.Next == head {
		return Allocation{}, false
	}
	sp := head.Next
	ownerChunk, _ := sp.Owner.(*chunk.Chunk)
	if ownerChunk == nil {
		return Allocation{}, false
	}

	result, ok := ownerChunk.AllocateFromSubpage(sp, normCapacity)
	if !ok {
		return Allocation{}, false
	}

	for i, e := range a.heap {
		if e.c == ownerChunk {
			heap.Fix(&a.heap, i)
			break
		}
	}
	return Allocation{
		Chunk:     ownerChunk,
		Handle:    result.Handle,
		Offset:    result.Offset,
		Length:    result.Length,
		MaxLength: result.MaxLength,
		ElemSize:  result.ElemSize,
	}, true
}

// grow allocates one fresh chunk from the memory source and pushes it
// into the selection heap. Must be called with a.mu held.
func (a *Arena) grow() error {
	region, err := a.src.NewRegion(int(a.cfg.ChunkSize()))
	if err != nil {
		return err
	}
	c := chunk.New(a.cfg, region, 0)
	heap.Push(&a.heap, &entry{c: c})
	return nil
}

// Free releases a previously returned allocation back to its chunk.
func (a *Arena) Free(c *chunk.Chunk, h handle.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var lock *lockring.Lock
	if h.IsSubpage() {
		if sp := c.Subpage(h.MemoryMapIdx()); sp != nil {
			lock = a.locks.Get(sp.ElemSize)
			lock.Acquire()
		}
	}
	c.Free(h, a.subpagePoolHead)
	if lock != nil {
		lock.Release()
	}

	for i, e := range a.heap {
		if e.c == c {
			heap.Fix(&a.heap, i)
			break
		}
	}
}

// subpagePoolHead looks up (creating lazily) the size-class sentinel
// for normCapacity. There is exactly one sentinel per size class for
// the arena's lifetime, shared across every chunk (spec.md §4.2).
func (a *Arena) subpagePoolHead(normCapacity uint32) *subpage.Subpage {
	a.locks.Get(normCapacity) // establish the lock entry too
	a.headsMu.Lock()
	defer a.headsMu.Unlock()
	if a.heads == nil {
		a.heads = make(map[uint32]*subpage.Subpage)
	}
	h, ok := a.heads[normCapacity]
	if !ok {
		h = subpage.NewHead()
		a.heads[normCapacity] = h
	}
	return h
}

// ArenaStats summarizes the arena's chunks for diagnostics (spec.md §4.5).
type ArenaStats struct {
	ChunkCount  int
	TotalBytes  int64
	FreeBytes   int64
	SizeClasses []uint32
}

// Stats reports the chunk count, the total and free bytes summed across
// every chunk, and the size classes seen so far. It reports no usage
// percentage.
func (a *Arena) Stats() ArenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := ArenaStats{ChunkCount: len(a.heap), SizeClasses: a.locks.SizeClasses()}
	for _, e := range a.heap {
		s.TotalBytes += e.c.ChunkSize()
		s.FreeBytes += e.c.FreeBytes()
	}
	return s
}
