package arena

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// requireUsageError runs fn and checks that it reports target, as an error in
// release builds and as a panic in arenadebug builds.
func requireUsageError(t *testing.T, target error, fn func() error) {
	t.Helper()
	if failFast {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a panic wrapping %v", target)
			err, ok := r.(error)
			require.True(t, ok, "panic value %v is not an error", r)
			require.ErrorIs(t, err, target)
			require.ErrorIs(t, err, ErrInvalidUsage)
		}()
		_ = fn()
		return
	}
	err := fn()
	require.ErrorIs(t, err, target)
	require.ErrorIs(t, err, ErrInvalidUsage)
}

func newCounting(t *testing.T) *vmem.Counting {
	t.Helper()
	sys := vmem.NewCounting(vmem.NewHeap())
	t.Cleanup(func() {
		require.Zero(t, sys.Live(), "arena leaked reservations")
	})
	return sys
}

func mustPush(t testing.TB, a *Arena, size, align uintptr) unsafe.Pointer {
	t.Helper()
	p, err := a.Push(size, align, true)
	require.NoError(t, err)
	return p
}

func isExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
