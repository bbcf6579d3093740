// Package bufassert holds the assertion helpers used across the
// allocator core for invariant checks that must never fire in
// production traffic (spec.md §7 kind 2: double-free, corrupted tree
// nodes, freeing into a dead subpage).
package bufassert

import "fmt"

// Assert panics with message if condition is false.
func Assert(condition bool, message string) {
	if !condition {
		panic(message)
	}
}

// Assertf panics with a formatted message if condition is false.
func Assertf(condition bool, format string, args ...any) {
	if !condition {
		panic(fmt.Sprintf(format, args...))
	}
}
