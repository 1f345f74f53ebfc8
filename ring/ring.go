// Package ring implements a fixed-capacity byte ring buffer whose storage can
// come from an arena.
package ring

import (
	"io"

	"github.com/pkg/errors"

	"github.com/pavanmanishd/arena/v2"
)

var (
	ErrInvalidCapacity = errors.New("ring: capacity must be at least 2")
	// ErrFull is returned by Write when only part of the input fit.
	ErrFull = errors.Wrap(io.ErrShortWrite, "ring: buffer full")
)

// Buffer is a byte ring of fixed capacity. One byte is always left unused so
// that a full buffer and an empty one have different heads; a Buffer of
// capacity n holds at most n-1 bytes.
//
// Not goroutine-safe.
type Buffer struct {
	data  []byte
	read  int
	write int
}

// New allocates a ring of the given capacity on the Go heap.
func New(capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// NewIn allocates the ring's storage from a. The buffer must not be used after
// a is popped below the storage or released.
func NewIn(a *arena.Arena, capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, ErrInvalidCapacity
	}
	data := arena.MakeSlice[byte](a, capacity)
	if data == nil {
		return nil, errors.Wrapf(arena.ErrExhausted, "ring of %d bytes", capacity)
	}
	return &Buffer{data: data}, nil
}

// Cap returns the size of the storage. At most Cap()-1 bytes fit.
func (b *Buffer) Cap() int { return len(b.data) }

// SpaceLeftToRead returns the number of buffered bytes.
func (b *Buffer) SpaceLeftToRead() int {
	if b.write >= b.read {
		return b.write - b.read
	}
	return len(b.data) - b.read + b.write
}

// SpaceLeftToWrite returns how many bytes Write accepts without a short write.
func (b *Buffer) SpaceLeftToWrite() int {
	return len(b.data) - 1 - b.SpaceLeftToRead()
}

// Write copies as much of p as fits. It returns ErrFull if not all of p was
// written.
func (b *Buffer) Write(p []byte) (int, error) {
	n := min(len(p), b.SpaceLeftToWrite())
	first := min(n, len(b.data)-b.write)
	copy(b.data[b.write:], p[:first])
	copy(b.data, p[first:n])
	b.write = (b.write + n) % len(b.data)
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// Read copies up to len(p) buffered bytes into p. It returns io.EOF when the
// buffer is empty.
func (b *Buffer) Read(p []byte) (int, error) {
	avail := b.SpaceLeftToRead()
	if avail == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := min(len(p), avail)
	first := min(n, len(b.data)-b.read)
	copy(p, b.data[b.read:b.read+first])
	copy(p[first:n], b.data)
	b.read = (b.read + n) % len(b.data)
	return n, nil
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.read, b.write = 0, 0
}
