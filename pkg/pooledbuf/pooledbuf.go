// Package pooledbuf wraps one allocator slot in a Netty-style ByteBuf
// interface: independent read/write cursors over a bounded window,
// reference-counted so a caller can hand the same buffer to several
// owners and have it return to the pool only once every owner is done.
package pooledbuf

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/govetachun/bufpool/internal/bufpool/chunk"
	"github.com/govetachun/bufpool/internal/bufpool/handle"
)

// releaser is the minimal surface pooledbuf needs from whatever owns
// the chunk this buffer was carved from — implemented by *arena.Arena,
// kept as an interface here so this package does not import arena
// (which in turn imports lockring, memsource, poolconfig, etc;
// pooledbuf needs none of those, only the Free call itself).
type releaser interface {
	Free(c *chunk.Chunk, h handle.Handle)
}

// Buffer is one allocator slot: a bounded window into a chunk's memory
// with its own read/write cursors, refcounted.
type Buffer struct {
	arena  releaser
	chunk  *chunk.Chunk
	handle handle.Handle

	offset    int64
	length    int64
	maxLength int64

	readerIndex int64
	writerIndex int64

	refs int32
}

// New wraps one allocator slot as a Buffer with an initial refcount of 1.
func New(arena releaser, c *chunk.Chunk, h handle.Handle, offset, length, maxLength int64) *Buffer {
	return &Buffer{
		arena:     arena,
		chunk:     c,
		handle:    h,
		offset:    offset,
		length:    length,
		maxLength: maxLength,
		refs:      1,
	}
}

// Len returns the buffer's current usable capacity.
func (b *Buffer) Len() int64 { return b.length }

// Capacity returns the maximum length this slot could grow to without
// a fresh allocation (equal to Len for run allocations with no spare
// room; always equal to Len in the current allocator, since chunk
// allocations never expand in place — kept distinct from Len because
// spec.md §6 models them as separate fields).
func (b *Buffer) Capacity() int64 { return b.maxLength }

// Bytes returns the slice of the owning chunk's memory this buffer is
// allowed to touch, [offset, offset+length).
func (b *Buffer) Bytes() []byte {
	return b.chunk.Memory[b.offset : b.offset+b.length]
}

// ReaderIndex and WriterIndex report the current cursor positions.
func (b *Buffer) ReaderIndex() int64 { return b.readerIndex }
func (b *Buffer) WriterIndex() int64 { return b.writerIndex }

// Readable reports how many unread bytes remain between the cursors.
func (b *Buffer) Readable() int64 { return b.writerIndex - b.readerIndex }

// Writable reports how much room remains before the writer cursor hits
// the buffer's length.
func (b *Buffer) Writable() int64 { return b.length - b.writerIndex }

// Read implements io.Reader: drains from readerIndex, advancing it.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Readable() == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.Bytes()[b.readerIndex:b.writerIndex])
	b.readerIndex += int64(n)
	return n, nil
}

// Write implements io.Writer: appends at writerIndex, advancing it.
// Returns io.ErrShortWrite if p does not fit within the remaining
// capacity.
func (b *Buffer) Write(p []byte) (int, error) {
	if int64(len(p)) > b.Writable() {
		n := copy(b.Bytes()[b.writerIndex:b.length], p)
		b.writerIndex += int64(n)
		return n, io.ErrShortWrite
	}
	n := copy(b.Bytes()[b.writerIndex:b.writerIndex+int64(len(p))], p)
	b.writerIndex += int64(n)
	return n, nil
}

// ReadFrom implements io.ReaderFrom: pulls from r directly into the
// remaining writable window.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	if b.Writable() == 0 {
		return 0, nil
	}
	n, err := r.Read(b.Bytes()[b.writerIndex:b.length])
	b.writerIndex += int64(n)
	return int64(n), err
}

// ReadAt implements io.ReaderAt: an absolute read at off within
// [0, length), independent of and non-advancing for readerIndex
// (mirroring a Netty ByteBuf's indexed getBytes, which never touches
// either cursor). Returns io.EOF once off reaches the buffer's length.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("pooledbuf: negative offset %d", off)
	}
	if off >= b.length {
		return 0, io.EOF
	}
	n := copy(p, b.Bytes()[off:b.length])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt: an absolute write at off within
// [0, length), independent of and non-advancing for writerIndex
// (mirroring a Netty ByteBuf's indexed setBytes). Returns
// io.ErrShortWrite if p does not fit before the buffer's length.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("pooledbuf: negative offset %d", off)
	}
	if off > b.length {
		return 0, fmt.Errorf("pooledbuf: offset %d beyond length %d", off, b.length)
	}
	available := b.length - off
	if int64(len(p)) > available {
		n := copy(b.Bytes()[off:b.length], p)
		return n, io.ErrShortWrite
	}
	n := copy(b.Bytes()[off:off+int64(len(p))], p)
	return n, nil
}

// Retain increments the reference count and returns the buffer for
// chaining, mirroring a Netty-style ByteBuf.retain().
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release decrements the reference count, returning the underlying
// slot to the arena once it reaches zero. Reports whether this call
// was the one that freed it.
func (b *Buffer) Release() bool {
	if atomic.AddInt32(&b.refs, -1) > 0 {
		return false
	}
	b.arena.Free(b.chunk, b.handle)
	return true
}

// RefCount reports the current reference count, for diagnostics.
func (b *Buffer) RefCount() int32 {
	return atomic.LoadInt32(&b.refs)
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(len=%d, reader=%d, writer=%d, refs=%d)",
		b.length, b.readerIndex, b.writerIndex, b.RefCount())
}
