package arena

import (
	"bytes"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/arena/v2/vmem"
)

func TestParseStrategy(t *testing.T) {
	for s, name := range strategyNames {
		got, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, s, got)

		text, err := s.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, name, string(text))
	}

	_, err := ParseStrategy("tracing")
	require.Error(t, err)

	var s Strategy
	require.Error(t, s.UnmarshalText([]byte("tracing")))
	_, err = Strategy(42).MarshalText()
	require.Error(t, err)
	assert.Equal(t, "Strategy(42)", Strategy(42).String())
}

func TestEnableStrategy(t *testing.T) {
	t.Run("only one strategy", func(t *testing.T) {
		a, err := NewGrowing(newCounting(t), 0)
		require.NoError(t, err)
		defer a.Release()

		require.NoError(t, a.EnableDebugLogging())
		assert.Equal(t, StrategyLogging, a.Strategy())
		requireUsageError(t, ErrStrategyInstalled, a.EnableDebugLogging)
		requireUsageError(t, ErrStrategyInstalled, a.EnableOverflowGuard)
		assert.Equal(t, StrategyLogging, a.Strategy())
	})

	t.Run("before first push", func(t *testing.T) {
		a, err := NewGrowing(newCounting(t), 0)
		require.NoError(t, err)
		defer a.Release()

		mustPush(t, a, 8, 8)
		requireUsageError(t, ErrAlreadyUsed, a.EnableDebugLogging)
		assert.Equal(t, StrategyNone, a.Strategy())
	})

	t.Run("guards need page protection", func(t *testing.T) {
		a, err := NewGrowing(newCounting(t), 0)
		require.NoError(t, err)
		defer a.Release()
		requireUsageError(t, ErrGuardUnsupported, a.EnableUnderflowGuard)

		b, err := NewFixedSizeInBlock(make([]byte, 64), 64)
		require.NoError(t, err)
		requireUsageError(t, ErrGuardUnsupported, b.EnableOverflowGuard)
	})

	t.Run("after release", func(t *testing.T) {
		a, err := NewGrowing(newCounting(t), 0)
		require.NoError(t, err)
		require.NoError(t, a.Release())
		requireUsageError(t, ErrReleased, a.EnableDebugLogging)
	})

	t.Run("none is a no-op", func(t *testing.T) {
		a, err := NewGrowing(newCounting(t), 0, WithDebug(StrategyNone))
		require.NoError(t, err)
		defer a.Release()
		require.NoError(t, a.install(StrategyNone))
		assert.Equal(t, StrategyNone, a.Strategy())
	})
}

func TestWithDebugFailureReleasesArena(t *testing.T) {
	sys := vmem.NewCounting(vmem.NewHeap())
	requireUsageError(t, ErrGuardUnsupported, func() error {
		_, err := NewFixedSize(sys, 4096, WithDebug(StrategyOverflowGuard))
		return err
	})
	if !failFast {
		assert.Equal(t, int64(1), sys.Releases())
	}
}

func TestDebugLoggingRecords(t *testing.T) {
	a, err := NewFixedSize(newCounting(t), 4096, WithDebug(StrategyLogging))
	require.NoError(t, err)
	defer a.Release()

	push := func(size uintptr) unsafe.Pointer {
		p, err := a.Push(size, 8, false)
		require.NoError(t, err)
		return p
	}
	p1 := push(16)
	p2 := push(32)
	p3 := push(64)

	recs := a.LiveAllocations()
	require.Len(t, recs, 3)
	for i, want := range []struct {
		base unsafe.Pointer
		size uintptr
	}{{p1, 16}, {p2, 32}, {p3, 64}} {
		assert.Equal(t, want.base, recs[i].Base)
		assert.Equal(t, want.size, recs[i].Size)
		assert.Equal(t, "strategy_test.go", filepath.Base(recs[i].File))
		assert.NotZero(t, recs[i].Line)
	}

	// Popping into the middle of p2 frees p3 and shrinks p2.
	require.NoError(t, a.PopTo(unsafe.Add(p2, 4)))
	recs = a.LiveAllocations()
	require.Len(t, recs, 2)
	assert.Equal(t, uintptr(4), recs[1].Size)

	// Popping to exactly p2 frees it.
	require.NoError(t, a.PopTo(p2))
	recs = a.LiveAllocations()
	require.Len(t, recs, 1)
	assert.Equal(t, p1, recs[0].Base)

	// Records are recycled.
	push(8)
	assert.Len(t, a.LiveAllocations(), 2)
	assert.NotNil(t, a.strategy.(*allocationLog).free)
}

func TestDebugLoggingAcrossBlocks(t *testing.T) {
	sys := newCounting(t)
	a, err := NewGrowing(sys, 4096, WithDebug(StrategyLogging))
	require.NoError(t, err)
	defer a.Release()

	tm := a.BeginTemp()
	for i := 0; i < 10; i++ {
		mustPush(t, a, 3000, 8)
	}
	require.Len(t, a.LiveAllocations(), 10)

	inner := a.BeginTemp()
	mustPush(t, a, 3000, 8)
	require.NoError(t, inner.End())
	assert.Len(t, a.LiveAllocations(), 10)

	require.NoError(t, tm.End())
	assert.Empty(t, a.LiveAllocations())
	assert.Zero(t, sys.Live())
}

func TestDumpAllocations(t *testing.T) {
	a, err := NewGrowing(newCounting(t), 0, WithDebug(StrategyLogging))
	require.NoError(t, err)
	defer a.Release()

	_, err = a.Push(2048, 8, false)
	require.NoError(t, err)
	_, err = a.Push(10, 1, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	a.DumpAllocations(log.NewLogfmtLogger(&buf))
	out := buf.String()
	assert.Contains(t, out, `msg="live allocation"`)
	assert.Contains(t, out, "size=\"2.0 KiB\"")
	assert.Contains(t, out, "count=2")
	assert.Contains(t, out, "strategy_test.go")
}

func TestLiveAllocationsWithoutLogging(t *testing.T) {
	a, err := NewGrowing(vmem.NewHeap(), 0)
	require.NoError(t, err)
	defer a.Release()
	mustPush(t, a, 8, 8)
	assert.Nil(t, a.LiveAllocations())
}
