// Package memsource supplies the raw memory regions chunks are carved
// from (spec.md §9's "memory: the backing region"). Two sources are
// provided, a portable heap-backed one and an anonymous-mmap one.
//
// Grounded on the teacher's btree/disk.go mmapInit/extendMmap, which
// obtains pages via syscall.Mmap over an on-disk file; Mmap here
// generalizes that to an anonymous, private mapping (no file backing
// it, since a buffer pool has nothing to persist) and upgrades from
// the bare syscall package to golang.org/x/sys/unix, the ecosystem
// wrapper the rest of the example pack favors for raw mmap access.
package memsource

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Source obtains and releases fixed-size memory regions for new
// chunks (spec.md §4.5's growth hook: "src.NewRegion(cfg.ChunkSize)").
type Source interface {
	NewRegion(size int) ([]byte, error)
	Release(region []byte) error
}

// Heap allocates regions on the Go heap. Portable, GC-managed, the
// default for tests and for callers with no reason to bypass the
// runtime allocator.
type Heap struct{}

// NewRegion returns a freshly zeroed, GC-owned byte slice of size.
func (Heap) NewRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Release is a no-op: the region is reclaimed by the garbage
// collector once unreferenced.
func (Heap) Release(region []byte) error {
	return nil
}

// Mmap allocates regions via an anonymous, private mmap, bypassing the
// Go heap entirely. Useful for very large pools where keeping chunk
// memory off the GC-scanned heap avoids scan overhead.
type Mmap struct{}

// NewRegion maps size bytes of anonymous, private, read-write memory.
func (Mmap) NewRegion(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("memsource: mmap %d bytes: %w", size, err)
	}
	return region, nil
}

// Release unmaps a region previously returned by NewRegion. Passing
// any other slice is undefined behavior, mirroring unix.Munmap itself.
func (Mmap) Release(region []byte) error {
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("memsource: munmap: %w", err)
	}
	return nil
}
