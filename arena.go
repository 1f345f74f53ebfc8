package arena

import (
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// MaxAlignment is the largest alignment Push accepts.
const MaxAlignment = 4096

// DefaultMinBlockSize is the block size used by growing arenas configured with zero.
const DefaultMinBlockSize = 1 << 16

// Arena is a bump allocator over the blocks provided by its backend.
// Not goroutine-safe: an arena belongs to one goroutine at a time.
type Arena struct {
	sys      vmem.Subsystem // nil for caller-owned memory
	backend  backend
	strategy strategy

	mem []byte  // current block; len(mem) is the committed extent
	pos uintptr // next free offset in mem

	depth    uint64 // open temp memories
	pushed   bool
	released bool

	logger log.Logger
	inst   *Instrumentation
}

// NewFixedSize creates an arena over one reservation of size bytes that never grows.
func NewFixedSize(sys vmem.Subsystem, size int, opts ...Option) (*Arena, error) {
	if size < 0 {
		return nil, errors.Errorf("arena: negative size %d", size)
	}
	o := buildOptions(opts)
	res, err := sys.Reserve(uintptr(size))
	if err != nil {
		o.inst.exhausted()
		return nil, errors.Wrap(ErrExhausted, err.Error())
	}
	if err := sys.Commit(res); err != nil {
		_ = sys.Release(res)
		o.inst.exhausted()
		return nil, errors.Wrap(ErrExhausted, err.Error())
	}
	o.inst.reserved(len(res))
	a := newArena(sys, &fixedBackend{sys: sys, res: res}, o)
	a.mem = res[:size:size]
	level.Debug(a.logger).Log("msg", "created fixed-size arena", "size", size, "reserved", len(res))
	return a.withStrategy(o.strategy)
}

// NewGrowing creates an arena that chains independently reserved blocks of at
// least minBlockSize bytes. No memory is reserved until the first push.
func NewGrowing(sys vmem.Subsystem, minBlockSize int, opts ...Option) (*Arena, error) {
	if minBlockSize < 0 {
		return nil, errors.Errorf("arena: negative block size %d", minBlockSize)
	}
	if minBlockSize == 0 {
		minBlockSize = DefaultMinBlockSize
	}
	o := buildOptions(opts)
	a := newArena(sys, &growingBackend{sys: sys, minBlockSize: uintptr(minBlockSize)}, o)
	return a.withStrategy(o.strategy)
}

// NewFixedSizeInBlock creates an arena over the first size bytes of block.
// The arena never frees block; the caller keeps ownership.
func NewFixedSizeInBlock(block []byte, size int, opts ...Option) (*Arena, error) {
	if size < 0 || size > len(block) {
		return nil, errors.Errorf("arena: size %d does not fit in a block of %d bytes", size, len(block))
	}
	o := buildOptions(opts)
	a := newArena(nil, &callerOwnedBackend{}, o)
	a.mem = block[:size:size]
	return a.withStrategy(o.strategy)
}

func newArena(sys vmem.Subsystem, b backend, o options) *Arena {
	return &Arena{
		sys:     sys,
		backend: b,
		logger:  log.With(o.logger, "backend", b.name()),
		inst:    o.inst,
	}
}

// withStrategy installs s on a freshly built arena, releasing it on failure.
func (a *Arena) withStrategy(s Strategy) (*Arena, error) {
	if err := a.install(s); err != nil {
		_ = a.Release()
		return nil, err
	}
	return a, nil
}

// Push reserves size bytes aligned to align and returns their address.
// align must be a power of two no greater than MaxAlignment. When clear is
// set the bytes are zeroed. Zero-size pushes are legal. A failure to obtain
// memory returns an error wrapping ErrExhausted and leaves the arena unchanged.
func (a *Arena) Push(size, align uintptr, clear bool) (unsafe.Pointer, error) {
	if a.released {
		return nil, usage(ErrReleased)
	}
	if !validAlignment(align) {
		return nil, usage(errors.Wrapf(ErrInvalidAlignment, "alignment %d", align))
	}
	a.pushed = true
	if a.strategy != nil {
		return a.strategy.push(a, size, align, clear)
	}
	return a.push(size, align, clear)
}

// PushBytes is Push returning the reserved bytes as a slice.
func (a *Arena) PushBytes(size, align uintptr, clear bool) ([]byte, error) {
	p, err := a.Push(size, align, clear)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

// push is the undecorated bump path.
func (a *Arena) push(size, align uintptr, clear bool) (unsafe.Pointer, error) {
	off := a.alignedPos(align)
	if !a.fits(off, size) {
		commitPos := uintptr(len(a.mem))
		block, extended, err := a.backend.grow(a, max(size, commitPos), align)
		if err != nil {
			a.inst.exhausted()
			level.Warn(a.logger).Log("msg", "arena exhausted", "size", size, "align", align, "err", err)
			return nil, err
		}
		if extended {
			a.mem = unsafe.Slice(unsafe.SliceData(a.mem), commitPos+uintptr(len(block)))
		} else {
			a.mem = block
			a.pos = 0
		}
		off = a.alignedPos(align)
		if !a.fits(off, size) {
			a.inst.exhausted()
			return nil, errors.Wrapf(ErrExhausted, "grown block of %d bytes cannot hold %d bytes", len(a.mem), size)
		}
	}

	p := unsafe.Add(unsafe.Pointer(unsafe.SliceData(a.mem)), off)
	a.pos = off + size
	if clear && size > 0 {
		clearBytes(p, size)
	}
	return p, nil
}

// alignedPos is the offset of the first address at or after pos that is a
// multiple of align.
func (a *Arena) alignedPos(align uintptr) uintptr {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	return alignUp(base+a.pos, align) - base
}

func (a *Arena) fits(off, size uintptr) bool {
	commitPos := uintptr(len(a.mem))
	return off <= commitPos && size <= commitPos-off
}

// Head returns the address the next unaligned push would start at.
func (a *Arena) Head() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(a.mem)), a.pos)
}

// Pos returns the offset of Head within the current block.
func (a *Arena) Pos() uintptr {
	return a.pos
}

// PopTo resets the arena so that Head() == head. head must be an address
// previously returned by Head (directly or through a TempMemory or Marker).
// Popping into an older block of a growing arena releases the newer blocks.
func (a *Arena) PopTo(head unsafe.Pointer) error {
	if a.released {
		return usage(ErrReleased)
	}
	if a.strategy != nil {
		return a.strategy.popTo(a, head)
	}
	return a.popTo(head)
}

// popTo is the undecorated reset path.
func (a *Arena) popTo(head unsafe.Pointer) error {
	// The one-past-the-end address may also be the start of an adjacent
	// older block, so it only belongs to this block if it is not past pos.
	if off, ok := a.offsetOf(head); ok && (off <= a.pos || off < uintptr(len(a.mem))) {
		if off > a.pos {
			return usage(errors.Wrapf(ErrPopPastHead, "offset %d, position %d", off, a.pos))
		}
		if poisonOnPop {
			poison(a.mem[off:a.pos])
		}
		a.pos = off
	} else if head == nil && a.backend.origin(a) != nil {
		return usage(errors.Wrap(ErrForeignPointer, "nil head"))
	} else if err := a.backend.shrink(a, head); err != nil {
		return err
	}
	if a.Head() != head {
		return usage(errors.Wrapf(ErrInvalidUsage, "head is %p after popping to %p", a.Head(), head))
	}
	return nil
}

// offsetOf returns the offset of p within the current block, including the
// one-past-the-end address.
func (a *Arena) offsetOf(p unsafe.Pointer) (uintptr, bool) {
	return offsetIn(a.mem, p)
}

// Reset pops the arena back to its initial position. Growing arenas release
// every block.
func (a *Arena) Reset() error {
	if a.released {
		return usage(ErrReleased)
	}
	return a.PopTo(a.backend.origin(a))
}

// Trim returns the physical pages past the current position of the current
// block to the OS. The pages stay reserved and read as zero when reused.
func (a *Arena) Trim() error {
	if a.released {
		return usage(ErrReleased)
	}
	if a.sys == nil || !a.sys.AllowsSeparateCommit() || len(a.mem) == 0 {
		return nil
	}
	page := uintptr(a.sys.PageSize())
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	start := alignUp(base+a.pos, page) - base
	if start >= uintptr(len(a.mem)) {
		return nil
	}
	return errors.Wrap(a.sys.Decommit(a.mem[start:]), "trim")
}

// Release frees every block owned by the arena. The arena and all memory
// obtained from it must not be used afterwards.
func (a *Arena) Release() error {
	if a.released {
		return usage(ErrReleased)
	}
	var err error
	if a.strategy != nil {
		err = a.strategy.release(a)
	}
	err = multierr.Append(err, a.backend.shrink(a, nil))
	a.released = true
	a.mem = nil
	a.pos = 0
	level.Debug(a.logger).Log("msg", "released arena", "err", err)
	return err
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	return a.released
}

func validAlignment(align uintptr) bool {
	return align != 0 && align&(align-1) == 0 && align <= MaxAlignment
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func alignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

func offsetIn(b []byte, p unsafe.Pointer) (uintptr, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	addr := uintptr(p)
	if addr < base || addr-base > uintptr(len(b)) {
		return 0, false
	}
	return addr - base, true
}

func clearBytes(p unsafe.Pointer, n uintptr) {
	clear(unsafe.Slice((*byte)(p), n))
}

const poisonByte = 0xdd

func poison(b []byte) {
	for i := range b {
		b[i] = poisonByte
	}
}
