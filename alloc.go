package arena

import (
	"runtime"
	"unsafe"
)

// Values placed in an arena may live outside the Go heap, so T must not
// contain Go pointers (no pointers, strings, slices, maps, interfaces or
// channels). The garbage collector does not scan arena memory.

// AllocBytes returns n uninitialized bytes aligned to the pointer size.
// Returns nil if n <= 0 or the arena cannot provide them.
func (a *Arena) AllocBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	b, err := a.PushBytes(uintptr(n), unsafe.Alignof(uintptr(0)), false)
	if err != nil {
		return nil
	}
	return b
}

// New returns a pointer to a zeroed T stored inside the arena, or nil if the
// arena cannot provide the memory.
// The returned pointer is valid until the arena is popped below it or released.
func New[T any](a *Arena) *T {
	var zero T
	p, err := a.Push(unsafe.Sizeof(zero), unsafe.Alignof(zero), true)
	if err != nil {
		return nil
	}
	return (*T)(p)
}

// NewUninitialized returns a *T located in the arena without zeroing memory.
// This is faster than New but the memory contents are undefined.
func NewUninitialized[T any](a *Arena) *T {
	var zero T
	p, err := a.Push(unsafe.Sizeof(zero), unsafe.Alignof(zero), false)
	if err != nil {
		return nil
	}
	return (*T)(p)
}

// MakeSlice allocates a slice of n elements of type T inside the arena.
// The slice elements are not initialized.
// Returns nil if n <= 0 or the arena cannot provide the memory.
func MakeSlice[T any](a *Arena, n int) []T {
	return makeSlice[T](a, n, false)
}

// MakeSliceZeroed allocates a slice of n elements of type T with zeroed memory.
func MakeSliceZeroed[T any](a *Arena, n int) []T {
	return makeSlice[T](a, n, true)
}

func makeSlice[T any](a *Arena, n int, clear bool) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	elemSize := unsafe.Sizeof(zero)
	if elemSize != 0 && uintptr(n) > ^uintptr(0)/elemSize {
		return nil
	}
	p, err := a.Push(elemSize*uintptr(n), unsafe.Alignof(zero), clear)
	if err != nil {
		return nil
	}
	return unsafe.Slice((*T)(p), n)
}

// PtrAndKeepAlive returns t and calls runtime.KeepAlive on the arena.
// This keeps the arena, and with it heap-backed blocks, reachable while the
// pointer is still in use in unsafe code.
func PtrAndKeepAlive[T any](a *Arena, t *T) *T {
	runtime.KeepAlive(a)
	return t
}
