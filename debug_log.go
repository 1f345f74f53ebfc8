package arena

import (
	"reflect"
	"runtime"
	"strings"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// AllocationRecord describes one live allocation tracked by StrategyLogging.
type AllocationRecord struct {
	File string
	Line int
	Size uintptr
	Base unsafe.Pointer
}

type recordNode struct {
	AllocationRecord
	next *recordNode
}

// allocationLog keeps live records newest first. Nodes are recycled through
// a free list. Pops walk the list, so this is a diagnostic tool and not O(1).
type allocationLog struct {
	live *recordNode
	free *recordNode
}

func (l *allocationLog) push(a *Arena, size, align uintptr, clear bool) (unsafe.Pointer, error) {
	p, err := a.push(size, align, clear)
	if err != nil {
		return nil, err
	}
	n := l.node()
	n.File, n.Line = callerOutsidePackage()
	n.Size = size
	n.Base = p
	n.next = l.live
	l.live = n
	return p, nil
}

func (l *allocationLog) popTo(a *Arena, head unsafe.Pointer) error {
	if err := a.popTo(head); err != nil {
		return err
	}
	l.forget(a, head)
	return nil
}

// forget drops records for memory that the pop to head reclaimed. Records
// outside the now-current block belong to released blocks. In the current
// block, records starting at or after head are gone and a record straddling
// head keeps only its prefix.
func (l *allocationLog) forget(a *Arena, head unsafe.Pointer) {
	for l.live != nil {
		n := l.live
		if _, inBlock := a.offsetOf(n.Base); inBlock && uintptr(n.Base) < uintptr(head) {
			if end := uintptr(n.Base) + n.Size; end > uintptr(head) {
				n.Size = uintptr(head) - uintptr(n.Base)
			}
			return
		}
		l.live = n.next
		l.recycle(n)
	}
}

func (l *allocationLog) release(*Arena) error {
	for l.live != nil {
		n := l.live
		l.live = n.next
		l.recycle(n)
	}
	return nil
}

func (l *allocationLog) base(a *Arena) ([]byte, uintptr) { return a.mem, a.pos }

func (l *allocationLog) kind() Strategy { return StrategyLogging }

func (l *allocationLog) node() *recordNode {
	if l.free == nil {
		return &recordNode{}
	}
	n := l.free
	l.free = n.next
	return n
}

func (l *allocationLog) recycle(n *recordNode) {
	*n = recordNode{next: l.free}
	l.free = n
}

// LiveAllocations returns the allocations StrategyLogging still considers
// live, oldest first. It returns nil for arenas without that strategy.
func (a *Arena) LiveAllocations() []AllocationRecord {
	l, ok := a.strategy.(*allocationLog)
	if !ok {
		return nil
	}
	var out []AllocationRecord
	for n := l.live; n != nil; n = n.next {
		out = append(out, n.AllocationRecord)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DumpAllocations logs every live allocation, oldest first.
func (a *Arena) DumpAllocations(logger log.Logger) {
	recs := a.LiveAllocations()
	var total uintptr
	for _, r := range recs {
		total += r.Size
		level.Info(logger).Log("msg", "live allocation", "file", r.File, "line", r.Line, "size", humanize.IBytes(uint64(r.Size)), "base", r.Base)
	}
	level.Info(logger).Log("msg", "live allocations", "count", len(recs), "total", humanize.IBytes(uint64(total)))
}

var packagePrefix = reflect.TypeOf(Arena{}).PkgPath() + "."

// callerOutsidePackage finds the first frame that is not arena code. Test
// files of this package count as callers.
func callerOutsidePackage() (string, int) {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, packagePrefix) || strings.HasSuffix(f.File, "_test.go") {
			return f.File, f.Line
		}
		if !more {
			return f.File, f.Line
		}
	}
}
