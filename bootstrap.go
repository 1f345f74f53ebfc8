package arena

import (
	"github.com/pkg/errors"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// Bootstrapped owns an arena together with a value allocated from it. The
// value lives exactly as long as the arena.
type Bootstrapped[T any] struct {
	arena *Arena
	value *T
}

// Bootstrap allocates a zeroed T from a and hands ownership of a to the
// returned handle. T must be pointer-free.
func Bootstrap[T any](a *Arena) (*Bootstrapped[T], error) {
	if a == nil || a.released {
		return nil, usage(ErrReleased)
	}
	v := New[T](a)
	if v == nil {
		return nil, errors.Wrap(ErrExhausted, "bootstrap")
	}
	return &Bootstrapped[T]{arena: a, value: v}, nil
}

// BootstrapGrowing creates a growing arena and bootstraps a T from it.
func BootstrapGrowing[T any](sys vmem.Subsystem, minBlockSize int, opts ...Option) (*Bootstrapped[T], error) {
	a, err := NewGrowing(sys, minBlockSize, opts...)
	if err != nil {
		return nil, err
	}
	b, err := Bootstrap[T](a)
	if err != nil {
		_ = a.Release()
		return nil, err
	}
	return b, nil
}

// Value returns the bootstrapped value. It is nil after Release.
func (b *Bootstrapped[T]) Value() *T { return b.value }

// Arena returns the arena the value was allocated from, for further pushes.
// Popping below the value invalidates it.
func (b *Bootstrapped[T]) Arena() *Arena { return b.arena }

// Release releases the arena and with it the value.
func (b *Bootstrapped[T]) Release() error {
	if b.value == nil {
		return usage(ErrReleased)
	}
	b.value = nil
	return b.arena.Release()
}
