package arena

import (
	"fmt"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/arena/v2/vmem"
)

func TestNewArena(t *testing.T) {
	page := os.Getpagesize()
	tests := []struct {
		name         string
		create       func(vmem.Subsystem) (*Arena, error)
		backend      string
		blocks       int
		capacity     int
		minBlockSize int
	}{
		{"fixed size", func(s vmem.Subsystem) (*Arena, error) { return NewFixedSize(s, 1000) }, "fixed", 1, 1000, 0},
		{"fixed size zero", func(s vmem.Subsystem) (*Arena, error) { return NewFixedSize(s, 0) }, "fixed", 1, 0, 0},
		{"growing default block size", func(s vmem.Subsystem) (*Arena, error) { return NewGrowing(s, 0) }, "growing", 0, 0, DefaultMinBlockSize},
		{"growing custom block size", func(s vmem.Subsystem) (*Arena, error) { return NewGrowing(s, page) }, "growing", 0, 0, page},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newCounting(t)
			a, err := tt.create(sys)
			require.NoError(t, err)
			defer func() { require.NoError(t, a.Release()) }()

			m := a.Metrics()
			assert.Equal(t, tt.backend, m.Backend)
			assert.Equal(t, tt.blocks, m.NumBlocks)
			assert.Equal(t, tt.capacity, m.Capacity)
			assert.Equal(t, tt.minBlockSize, m.MinBlockSize)
			assert.Zero(t, m.SizeInUse)
		})
	}
}

func TestNewArenaInvalidArguments(t *testing.T) {
	sys := vmem.NewHeap()

	_, err := NewFixedSize(sys, -1)
	require.Error(t, err)

	_, err = NewGrowing(sys, -1)
	require.Error(t, err)

	_, err = NewFixedSizeInBlock(make([]byte, 10), 11)
	require.Error(t, err)
}

func TestNewFixedSizeReserveFailure(t *testing.T) {
	_, err := NewFixedSize(vmem.NewFailing(vmem.NewHeap(), 0), 1024)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestPushOrdering(t *testing.T) {
	a, err := NewFixedSize(newCounting(t), 1<<16)
	require.NoError(t, err)
	defer a.Release()

	sizes := []uintptr{1, 3, 8, 17, 64, 0, 5, 4096, 2}
	aligns := []uintptr{1, 2, 8, 16, 4, 1, 64, 4096, 2}
	var prevEnd uintptr
	for i := range sizes {
		p := mustPush(t, a, sizes[i], aligns[i])
		addr := uintptr(p)
		assert.GreaterOrEqual(t, addr, prevEnd, "push %d overlaps the previous one", i)
		assert.Zero(t, addr%aligns[i], "push %d misaligned", i)
		prevEnd = addr + sizes[i]
		assert.Equal(t, prevEnd, uintptr(a.Head()))
	}
}

func TestPushAlignment(t *testing.T) {
	tests := []struct {
		align uintptr
		valid bool
	}{
		{1, true},
		{2, true},
		{8, true},
		{64, true},
		{MaxAlignment, true},
		{0, false},
		{3, false},
		{24, false},
		{2 * MaxAlignment, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("align-%d", tt.align), func(t *testing.T) {
			a, err := NewGrowing(newCounting(t), 0)
			require.NoError(t, err)
			defer a.Release()

			_, err = a.Push(1, 1, false)
			require.NoError(t, err)
			if !tt.valid {
				head := a.Head()
				requireUsageError(t, ErrInvalidAlignment, func() error {
					_, err := a.Push(8, tt.align, false)
					return err
				})
				assert.Equal(t, head, a.Head())
				return
			}
			p, err := a.Push(8, tt.align, false)
			require.NoError(t, err)
			assert.Zero(t, uintptr(p)%tt.align)
		})
	}
}

func TestPushAlignsAddressInCallerOwnedBlock(t *testing.T) {
	block := make([]byte, 256)
	// Start the arena at an odd address.
	a, err := NewFixedSizeInBlock(block[1:], 200)
	require.NoError(t, err)
	defer a.Release()

	for _, align := range []uintptr{2, 4, 8, 16, 32} {
		p, err := a.Push(3, align, false)
		require.NoError(t, err)
		assert.Zero(t, uintptr(p)%align)
	}
}

func TestPushClear(t *testing.T) {
	block := make([]byte, 64)
	for i := range block {
		block[i] = 0xff
	}
	a, err := NewFixedSizeInBlock(block, len(block))
	require.NoError(t, err)

	b, err := a.PushBytes(16, 1, true)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 16), b)

	b, err = a.PushBytes(16, 1, false)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), b[0])
}

func TestZeroSizePush(t *testing.T) {
	a, err := NewFixedSize(newCounting(t), 64)
	require.NoError(t, err)
	defer a.Release()

	p, err := a.Push(0, 8, false)
	require.NoError(t, err)
	assert.Equal(t, a.Head(), p)
	assert.Zero(t, a.Pos())
}

func TestGrowingScenario(t *testing.T) {
	sys := newCounting(t)
	a, err := NewGrowing(sys, 4096)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Release()) }()

	p1, err := a.Push(4000, 8, true)
	require.NoError(t, err)
	require.Equal(t, 1, a.NumBlocks())
	if a.Capacity() >= 4200 {
		t.Skipf("page size %d makes the first block large enough for both pushes", os.Getpagesize())
	}
	pos := a.Pos()

	p2, err := a.Push(200, 8, true)
	require.NoError(t, err)
	assert.Equal(t, 2, a.NumBlocks())
	assert.Equal(t, int64(2), sys.Reserves())
	assert.GreaterOrEqual(t, a.Capacity()-4096, 200)
	assert.Equal(t, uintptr(200), a.Pos())
	assert.NotEqual(t, uintptr(p1)+4000, uintptr(p2))

	require.NoError(t, a.PopTo(p1))
	assert.Equal(t, 1, a.NumBlocks())
	assert.Equal(t, int64(1), sys.Releases())
	assert.Equal(t, p1, a.Head())
	assert.Equal(t, uintptr(0), a.Pos())
	assert.Less(t, a.Pos(), pos)
}

func TestGrowingLargePush(t *testing.T) {
	a, err := NewGrowing(newCounting(t), 4096)
	require.NoError(t, err)
	defer a.Release()

	b, err := a.PushBytes(1<<20, 16, true)
	require.NoError(t, err)
	require.Len(t, b, 1<<20)
	assert.GreaterOrEqual(t, a.Capacity(), 1<<20)
}

func TestGrowingKeepsChainAcrossManyBlocks(t *testing.T) {
	sys := newCounting(t)
	page := os.Getpagesize()
	a, err := NewGrowing(sys, page)
	require.NoError(t, err)
	defer a.Release()

	var heads []unsafe.Pointer
	for i := 0; i < 20; i++ {
		heads = append(heads, a.Head())
		b, err := a.PushBytes(uintptr(page*3/4), 8, false)
		require.NoError(t, err)
		b[0], b[len(b)-1] = byte(i), byte(i)
	}
	blocks := a.NumBlocks()
	require.Greater(t, blocks, 1)

	for i := len(heads) - 1; i >= 0; i-- {
		require.NoError(t, a.PopTo(heads[i]))
		require.Equal(t, heads[i], a.Head())
	}
	assert.Zero(t, a.NumBlocks())
	assert.Equal(t, sys.Reserves(), sys.Releases())
}

func TestPopToRestoresEveryObservedHead(t *testing.T) {
	a, err := NewGrowing(newCounting(t), 4096)
	require.NoError(t, err)
	defer a.Release()

	type snapshot struct {
		head unsafe.Pointer
		pos  uintptr
	}
	var snaps []snapshot
	for i := 0; i < 50; i++ {
		snaps = append(snaps, snapshot{a.Head(), a.Pos()})
		mustPush(t, a, uintptr(100+i*37), 8)
	}
	for i := len(snaps) - 1; i >= 0; i -= 7 {
		require.NoError(t, a.PopTo(snaps[i].head))
		assert.Equal(t, snaps[i].head, a.Head())
		assert.Equal(t, snaps[i].pos, a.Pos())
	}
}

func TestPopPastHead(t *testing.T) {
	a, err := NewFixedSize(newCounting(t), 1024)
	require.NoError(t, err)
	defer a.Release()

	mustPush(t, a, 64, 8)
	head := a.Head()
	requireUsageError(t, ErrPopPastHead, func() error {
		return a.PopTo(unsafe.Add(head, 8))
	})
	assert.Equal(t, head, a.Head())
}

func TestPopForeignPointer(t *testing.T) {
	other := make([]byte, 64)
	foreign := unsafe.Pointer(&other[8])

	t.Run("fixed", func(t *testing.T) {
		a, err := NewFixedSize(newCounting(t), 1024)
		require.NoError(t, err)
		defer a.Release()
		mustPush(t, a, 64, 8)
		head := a.Head()

		requireUsageError(t, ErrForeignPointer, func() error { return a.PopTo(foreign) })
		requireUsageError(t, ErrForeignPointer, func() error { return a.PopTo(nil) })
		assert.Equal(t, head, a.Head())
		assert.False(t, a.Released())
	})

	t.Run("growing", func(t *testing.T) {
		sys := newCounting(t)
		page := os.Getpagesize()
		a, err := NewGrowing(sys, page)
		require.NoError(t, err)
		defer a.Release()
		mustPush(t, a, uintptr(page*3/4), 8)
		mustPush(t, a, uintptr(page*3/4), 8)
		head, blocks := a.Head(), a.NumBlocks()

		requireUsageError(t, ErrForeignPointer, func() error { return a.PopTo(foreign) })
		assert.Equal(t, head, a.Head())
		assert.Equal(t, blocks, a.NumBlocks())
		assert.Zero(t, sys.Releases())
	})

	t.Run("caller owned", func(t *testing.T) {
		a, err := NewFixedSizeInBlock(make([]byte, 128), 128)
		require.NoError(t, err)
		requireUsageError(t, ErrForeignPointer, func() error { return a.PopTo(foreign) })
	})
}

func TestExhaustionLeavesArenaUnchanged(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		a, err := NewFixedSize(newCounting(t), 128)
		require.NoError(t, err)
		defer a.Release()
		mustPush(t, a, 100, 8)
		head := a.Head()

		_, err = a.Push(64, 8, true)
		require.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, head, a.Head())

		// Smaller pushes still fit.
		mustPush(t, a, 28, 1)
	})

	t.Run("growing", func(t *testing.T) {
		sys := vmem.NewCounting(vmem.NewFailing(vmem.NewHeap(), 1))
		page := uintptr(os.Getpagesize())
		a, err := NewGrowing(sys, int(page))
		require.NoError(t, err)
		mustPush(t, a, page-96, 8)
		head, blocks := a.Head(), a.NumBlocks()

		_, err = a.Push(page-96, 8, false)
		require.True(t, isExhausted(err), "got %v", err)
		assert.Equal(t, head, a.Head())
		assert.Equal(t, blocks, a.NumBlocks())

		require.NoError(t, a.Release())
		assert.Zero(t, sys.Live())
	})

	t.Run("caller owned", func(t *testing.T) {
		a, err := NewFixedSizeInBlock(make([]byte, 32), 32)
		require.NoError(t, err)
		_, err = a.Push(33, 1, false)
		require.ErrorIs(t, err, ErrExhausted)
		assert.Zero(t, a.Pos())
	})
}

func TestRelease(t *testing.T) {
	sys := newCounting(t)
	page := uintptr(os.Getpagesize())
	a, err := NewGrowing(sys, int(page))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		mustPush(t, a, page-96, 8)
	}
	require.Equal(t, int64(5), sys.Live())

	require.NoError(t, a.Release())
	assert.True(t, a.Released())
	assert.Zero(t, sys.Live())
	assert.Equal(t, int64(5), sys.Releases())

	requireUsageError(t, ErrReleased, a.Release)
	requireUsageError(t, ErrReleased, func() error {
		_, err := a.Push(8, 8, false)
		return err
	})
	requireUsageError(t, ErrReleased, func() error { return a.PopTo(nil) })
	requireUsageError(t, ErrReleased, a.Reset)
	if !failFast {
		assert.Nil(t, a.AllocBytes(8))
	}
}

func TestReleaseCallerOwnedBlockKeepsMemory(t *testing.T) {
	block := make([]byte, 64)
	a, err := NewFixedSizeInBlock(block, 64)
	require.NoError(t, err)
	b, err := a.PushBytes(4, 1, false)
	require.NoError(t, err)
	copy(b, "data")

	require.NoError(t, a.Release())
	assert.Equal(t, "data", string(block[:4]))
}

func TestArenaReset(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		sys := newCounting(t)
		a, err := NewFixedSize(sys, 1024)
		require.NoError(t, err)
		defer a.Release()

		mustPush(t, a, 100, 8)
		mustPush(t, a, 200, 8)
		require.NotZero(t, a.SizeInUse())

		require.NoError(t, a.Reset())
		assert.Zero(t, a.SizeInUse())
		assert.Equal(t, 1, a.NumBlocks())
		assert.Equal(t, int64(1), sys.Live())
	})

	t.Run("growing", func(t *testing.T) {
		sys := newCounting(t)
		page := os.Getpagesize()
		a, err := NewGrowing(sys, page)
		require.NoError(t, err)
		defer a.Release()

		for i := 0; i < 4; i++ {
			mustPush(t, a, uintptr(page*3/4), 8)
		}
		require.NoError(t, a.Reset())
		assert.Zero(t, a.NumBlocks())
		assert.Zero(t, sys.Live())

		// The arena is reusable after Reset.
		mustPush(t, a, 10, 8)
		assert.Equal(t, 1, a.NumBlocks())
	})
}

func TestTrimWithoutSeparateCommit(t *testing.T) {
	a, err := NewFixedSize(newCounting(t), 1<<16)
	require.NoError(t, err)
	defer a.Release()

	mustPush(t, a, 100, 8)
	require.NoError(t, a.Trim())
	assert.Equal(t, uintptr(100), a.Pos())
}

func BenchmarkArenaPush(b *testing.B) {
	a, err := NewGrowing(vmem.NewOS(), 1024*1024) // 1MB blocks
	require.NoError(b, err)
	defer a.Release()
	sizes := []uintptr{8, 64, 256, 1024}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size-%d", size), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = a.Push(size, 8, false)
				if i%1000 == 999 { // Reset periodically to avoid growing too much
					_ = a.Reset()
				}
			}
		})
	}
}

func BenchmarkArenaVsBuiltin(b *testing.B) {
	b.Run("arena", func(b *testing.B) {
		a, err := NewGrowing(vmem.NewOS(), 1024*1024)
		require.NoError(b, err)
		defer a.Release()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			a.AllocBytes(64)
			if i%1000 == 999 {
				_ = a.Reset()
			}
		}
	})

	b.Run("builtin", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = make([]byte, 64)
		}
	})
}
