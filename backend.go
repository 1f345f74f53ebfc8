package arena

import (
	"unsafe"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// backend supplies and reclaims the blocks behind an arena.
type backend interface {
	// grow returns a block able to hold at least size bytes at align. When
	// extended is true the block continues the current one in place.
	grow(a *Arena, size, align uintptr) (block []byte, extended bool, err error)
	// shrink handles pops that leave the current block. A nil head releases
	// everything the backend owns.
	shrink(a *Arena, head unsafe.Pointer) error
	// contains reports whether head is a valid pop target, given the state
	// of the backend's newest block.
	contains(mem []byte, pos uintptr, head unsafe.Pointer) bool
	// origin is the head of a freshly created arena.
	origin(a *Arena) unsafe.Pointer
	// usage reports the blocks in use, given the state of the newest block.
	usage(mem []byte, pos uintptr) Usage
	name() string
}

// Usage describes the memory held by an arena.
type Usage struct {
	Blocks   int
	Capacity int // committed bytes across blocks
	InUse    int // bytes below the position of each block, including alignment padding
}

// fixedBackend owns a single reservation made at creation.
type fixedBackend struct {
	sys vmem.Subsystem
	res []byte
}

func (f *fixedBackend) grow(a *Arena, size, _ uintptr) ([]byte, bool, error) {
	return nil, false, errors.Wrapf(ErrExhausted, "fixed-size arena of %d bytes cannot fit %d more bytes", len(a.mem), size)
}

func (f *fixedBackend) shrink(a *Arena, head unsafe.Pointer) error {
	if head != nil {
		return usage(errors.Wrapf(ErrForeignPointer, "%p", head))
	}
	if f.res == nil {
		return nil
	}
	n := len(f.res)
	err := f.sys.Release(f.res)
	f.res = nil
	a.mem, a.pos = nil, 0
	a.inst.released(n)
	level.Debug(a.logger).Log("msg", "released block", "size", n)
	return err
}

func (f *fixedBackend) contains(mem []byte, pos uintptr, head unsafe.Pointer) bool {
	off, ok := offsetIn(mem, head)
	return ok && head != nil && off <= pos
}

func (f *fixedBackend) origin(*Arena) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(f.res))
}

func (f *fixedBackend) usage(mem []byte, pos uintptr) Usage {
	if f.res == nil {
		return Usage{}
	}
	return Usage{Blocks: 1, Capacity: len(mem), InUse: int(pos)}
}

func (f *fixedBackend) name() string { return "fixed" }

// callerOwnedBackend wraps memory the arena never frees.
type callerOwnedBackend struct{}

func (callerOwnedBackend) grow(a *Arena, size, _ uintptr) ([]byte, bool, error) {
	return nil, false, errors.Wrapf(ErrExhausted, "caller-owned block of %d bytes cannot fit %d more bytes", len(a.mem), size)
}

func (callerOwnedBackend) shrink(a *Arena, head unsafe.Pointer) error {
	if head != nil {
		return usage(errors.Wrapf(ErrForeignPointer, "%p", head))
	}
	return nil
}

func (callerOwnedBackend) contains(mem []byte, pos uintptr, head unsafe.Pointer) bool {
	off, ok := offsetIn(mem, head)
	return ok && head != nil && off <= pos
}

func (callerOwnedBackend) origin(a *Arena) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(a.mem))
}

func (callerOwnedBackend) usage(mem []byte, pos uintptr) Usage {
	return Usage{Blocks: 1, Capacity: len(mem), InUse: int(pos)}
}

func (callerOwnedBackend) name() string { return "caller_owned" }

// growingBackend chains blocks. Each link records the state of the block
// below it so that popping across a boundary restores it exactly.
type growingBackend struct {
	sys          vmem.Subsystem
	minBlockSize uintptr
	chain        []link
}

type link struct {
	mem     []byte // reservation backing this block
	prevMem []byte
	prevPos uintptr
}

func (g *growingBackend) grow(a *Arena, size, _ uintptr) ([]byte, bool, error) {
	page := uintptr(g.sys.PageSize())
	want := max(size, g.minBlockSize)
	if want > ^uintptr(0)-page {
		return nil, false, errors.Wrapf(ErrExhausted, "block of %d bytes overflows", size)
	}
	want = alignUp(want, page)

	block, err := g.sys.Reserve(want)
	if err != nil {
		return nil, false, errors.Wrapf(ErrExhausted, "reserve %d byte block: %v", want, err)
	}
	if err := g.sys.Commit(block); err != nil {
		_ = g.sys.Release(block)
		return nil, false, errors.Wrapf(ErrExhausted, "commit %d byte block: %v", want, err)
	}
	g.chain = append(g.chain, link{mem: block, prevMem: a.mem, prevPos: a.pos})
	a.inst.reserved(len(block))
	level.Debug(a.logger).Log("msg", "reserved block", "size", len(block), "blocks", len(g.chain))
	return block, false, nil
}

func (g *growingBackend) shrink(a *Arena, head unsafe.Pointer) error {
	keep := 0
	if head != nil {
		idx, ok := g.find(a.pos, head)
		if !ok {
			return usage(errors.Wrapf(ErrForeignPointer, "%p", head))
		}
		keep = idx + 1
	}

	var err error
	for len(g.chain) > keep {
		top := g.chain[len(g.chain)-1]
		g.chain = g.chain[:len(g.chain)-1]
		a.mem, a.pos = top.prevMem, top.prevPos
		err = multierr.Append(err, g.sys.Release(top.mem))
		a.inst.released(len(top.mem))
		level.Debug(a.logger).Log("msg", "released block", "size", len(top.mem), "blocks", len(g.chain))
	}
	if head != nil {
		off, _ := offsetIn(a.mem, head)
		a.pos = off
	}
	return err
}

// find returns the index of the block holding head, checking that head is
// not past that block's position. pos is the position in the newest block.
func (g *growingBackend) find(pos uintptr, head unsafe.Pointer) (int, bool) {
	for i := len(g.chain) - 1; i >= 0; i-- {
		if off, ok := offsetIn(g.chain[i].mem, head); ok && off <= pos {
			return i, true
		}
		pos = g.chain[i].prevPos
	}
	return 0, false
}

func (g *growingBackend) contains(_ []byte, pos uintptr, head unsafe.Pointer) bool {
	if head == nil {
		return true
	}
	_, ok := g.find(pos, head)
	return ok
}

func (g *growingBackend) origin(*Arena) unsafe.Pointer { return nil }

func (g *growingBackend) usage(_ []byte, pos uintptr) Usage {
	u := Usage{Blocks: len(g.chain)}
	for i := len(g.chain) - 1; i >= 0; i-- {
		u.Capacity += len(g.chain[i].mem)
		u.InUse += int(pos)
		pos = g.chain[i].prevPos
	}
	return u
}

func (g *growingBackend) name() string { return "growing" }
