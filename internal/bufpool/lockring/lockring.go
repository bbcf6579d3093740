// Package lockring is the size-class lock registry: one mutex-backed
// lock per normalized capacity, stable for the arena's lifetime,
// guarding that size class's subpage sentinel (spec.md §5 "size-class
// head mutex").
//
// Grounded on the teacher's refactor_code/internal/concurrency/rwlock.go
// LockManager/LockStats pattern — a map of named locks plus
// acquisition counters — simplified from RWMutex+condvars down to a
// plain sync.Mutex, since a size-class lock has no reader/writer
// distinction to preserve.
package lockring

import "sync"

// Lock is one size class's mutex, with a running acquisition count for
// diagnostics (read through Acquisitions; Arena.Stats does not report it).
type Lock struct {
	mu           sync.Mutex
	acquisitions int64
}

// Acquire blocks until the lock is held and records the acquisition.
func (l *Lock) Acquire() {
	l.mu.Lock()
	l.acquisitions++
}

// Release releases a lock held via Acquire.
func (l *Lock) Release() {
	l.mu.Unlock()
}

// Acquisitions returns the number of times this lock has been acquired.
func (l *Lock) Acquisitions() int64 {
	return l.acquisitions
}

// Registry hands out one *Lock per size class, creating it lazily the
// first time that class is touched (spec.md §4.5 subpagePoolHead).
type Registry struct {
	mu    sync.Mutex
	locks map[uint32]*Lock
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[uint32]*Lock)}
}

// Get returns the lock for normCapacity, creating it if this is the
// first time the size class has been requested.
func (r *Registry) Get(normCapacity uint32) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.locks[normCapacity]; ok {
		return l
	}
	l := &Lock{}
	r.locks[normCapacity] = l
	return l
}

// SizeClasses returns the normalized capacities that have an
// established lock, for diagnostics.
func (r *Registry) SizeClasses() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	classes := make([]uint32, 0, len(r.locks))
	for c := range r.locks {
		classes = append(classes, c)
	}
	return classes
}
