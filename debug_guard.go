package arena

import (
	"unsafe"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2/vmem"
)

// guard serves every push from its own reservation with an inaccessible page
// directly after (or before) the requested bytes. The arena's current block
// becomes exactly the requested bytes, and a chain mirroring the growing
// backend restores the previous block on pop.
type guard struct {
	sys       vmem.Subsystem
	protector vmem.Protector
	underflow bool
	chain     []link
}

func (g *guard) push(a *Arena, size, align uintptr, clear bool) (unsafe.Pointer, error) {
	page := uintptr(g.sys.PageSize())
	if size > ^uintptr(0)-2*page {
		a.inst.exhausted()
		return nil, errors.Wrapf(ErrExhausted, "guarded push of %d bytes overflows", size)
	}
	// Zero-size pushes still get a data page so their address lies inside
	// the reservation.
	data := max(alignUp(size, page), page)

	res, err := g.sys.Reserve(data + page)
	if err != nil {
		a.inst.exhausted()
		level.Warn(a.logger).Log("msg", "arena exhausted", "size", size, "strategy", g.kind(), "err", err)
		return nil, errors.Wrapf(ErrExhausted, "reserve guarded block: %v", err)
	}

	var guardPage, usable []byte
	if g.underflow {
		guardPage = res[:page]
		usable = res[page : page+size]
		err = g.sys.Commit(res[page : page+data])
	} else {
		guardPage = res[data : data+page]
		start := alignDown(data-size, align)
		usable = res[start : start+size]
		err = g.sys.Commit(res[:data])
	}
	if err == nil {
		err = g.protector.ProtectNone(guardPage)
	}
	if err != nil {
		_ = g.sys.Release(res)
		a.inst.exhausted()
		return nil, errors.Wrapf(ErrExhausted, "prepare guarded block: %v", err)
	}

	g.chain = append(g.chain, link{mem: res, prevMem: a.mem, prevPos: a.pos})
	a.mem, a.pos = usable, size
	a.inst.reserved(len(res))
	a.inst.guarded()

	p := unsafe.Pointer(unsafe.SliceData(usable))
	if clear && size > 0 {
		clearBytes(p, size)
	}
	return p, nil
}

func (g *guard) popTo(a *Arena, head unsafe.Pointer) error {
	if !g.owns(a, head) {
		return usage(errors.Wrapf(ErrForeignPointer, "%p", head))
	}
	var err error
	for {
		if off, ok := a.offsetOf(head); ok && off <= a.pos {
			a.pos = off
			return err
		}
		if len(g.chain) == 0 {
			break
		}
		err = multierr.Append(err, g.unwind(a))
	}
	return multierr.Append(err, a.popTo(head))
}

// owns reports whether head is a valid pop target before anything is released.
func (g *guard) owns(a *Arena, head unsafe.Pointer) bool {
	mem, pos := a.mem, a.pos
	for i := len(g.chain) - 1; i >= 0; i-- {
		if off, ok := offsetIn(mem, head); ok && off <= pos {
			return true
		}
		mem, pos = g.chain[i].prevMem, g.chain[i].prevPos
	}
	if off, ok := offsetIn(mem, head); ok && off <= pos {
		return true
	}
	return a.backend.contains(mem, pos, head)
}

// unwind releases the newest guarded block and restores the block below it.
func (g *guard) unwind(a *Arena) error {
	top := g.chain[len(g.chain)-1]
	g.chain = g.chain[:len(g.chain)-1]
	a.mem, a.pos = top.prevMem, top.prevPos
	a.inst.released(len(top.mem))
	return g.sys.Release(top.mem)
}

func (g *guard) release(a *Arena) error {
	var err error
	for len(g.chain) > 0 {
		err = multierr.Append(err, g.unwind(a))
	}
	return err
}

func (g *guard) base(a *Arena) ([]byte, uintptr) {
	if len(g.chain) == 0 {
		return a.mem, a.pos
	}
	return g.chain[0].prevMem, g.chain[0].prevPos
}

func (g *guard) kind() Strategy {
	if g.underflow {
		return StrategyUnderflowGuard
	}
	return StrategyOverflowGuard
}
