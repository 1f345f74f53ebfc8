// Package scratch gives each goroutine a pair of scratch arenas.
//
// A function that needs temporary memory while it also fills an arena owned
// by its caller asks for a scratch arena that conflicts with the caller's:
//
//	func build(ctx context.Context, out *arena.Arena) {
//		tmp := scratch.Get(ctx, out)
//		t := tmp.BeginTemp()
//		defer t.End()
//		...
//	}
//
// Because the pair has two members, GetScratch never returns the conflicting
// arena. The pair travels in a context.Context; it must only be used by the
// goroutine it was created for.
package scratch

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2"
)

// ThreadContext holds one goroutine's scratch pair.
type ThreadContext struct {
	scratch [2]*arena.Arena
}

// InitThreadContext builds the scratch pair from two distinct arenas. The
// context owns both arenas afterwards.
func InitThreadContext(s0, s1 *arena.Arena) (*ThreadContext, error) {
	if s0 == nil || s1 == nil {
		return nil, errors.Wrap(arena.ErrInvalidUsage, "scratch arenas must not be nil")
	}
	if s0 == s1 {
		return nil, errors.Wrap(arena.ErrInvalidUsage, "scratch arenas must be distinct")
	}
	return &ThreadContext{scratch: [2]*arena.Arena{s0, s1}}, nil
}

// GetScratch returns the first scratch arena unless it is conflict, in which
// case it returns the second. A nil conflict returns the first.
func (tc *ThreadContext) GetScratch(conflict *arena.Arena) *arena.Arena {
	if conflict == tc.scratch[0] {
		return tc.scratch[1]
	}
	return tc.scratch[0]
}

// Scratch returns both scratch arenas.
func (tc *ThreadContext) Scratch() (s0, s1 *arena.Arena) {
	return tc.scratch[0], tc.scratch[1]
}

// Release releases both scratch arenas.
func (tc *ThreadContext) Release() error {
	return multierr.Combine(tc.scratch[0].Release(), tc.scratch[1].Release())
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying tc.
func NewContext(ctx context.Context, tc *ThreadContext) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the scratch pair carried by ctx.
func FromContext(ctx context.Context) (*ThreadContext, bool) {
	tc, ok := ctx.Value(contextKey{}).(*ThreadContext)
	return tc, ok && tc != nil
}

// Get returns a scratch arena from the pair carried by ctx that is not
// conflict. It panics if ctx carries no pair, as that is a wiring bug.
func Get(ctx context.Context, conflict *arena.Arena) *arena.Arena {
	tc, ok := FromContext(ctx)
	if !ok {
		panic("scratch: context carries no thread context")
	}
	return tc.GetScratch(conflict)
}
