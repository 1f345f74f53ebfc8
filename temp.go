package arena

import (
	"unsafe"

	"github.com/pkg/errors"
)

// TempMemory is a scope over an arena. Everything pushed between BeginTemp
// and End is reclaimed by End. Temp memories on one arena must end in the
// reverse order they began.
type TempMemory struct {
	arena *Arena
	head  unsafe.Pointer
	depth uint64
}

// BeginTemp opens a temp memory at the arena's current head.
func (a *Arena) BeginTemp() TempMemory {
	t := TempMemory{arena: a, head: a.Head(), depth: a.depth}
	a.depth++
	return t
}

// End pops the arena back to where the temp memory began. Ending a temp
// memory while a later one on the same arena is still open fails with
// ErrTempOutOfOrder and changes nothing.
func (t TempMemory) End() error {
	a := t.arena
	if a == nil {
		return usage(errors.Wrap(ErrInvalidUsage, "zero TempMemory"))
	}
	if a.released {
		return usage(ErrReleased)
	}
	if a.depth == 0 || t.depth != a.depth-1 {
		return usage(errors.Wrapf(ErrTempOutOfOrder, "ending depth %d with %d open", t.depth, a.depth))
	}
	a.depth--
	return a.PopTo(t.head)
}

// Arena returns the arena the temp memory was opened on.
func (t TempMemory) Arena() *Arena { return t.arena }

// Marker is a reset point that may outlive the scope that created it. Unlike
// TempMemory no nesting order is checked.
type Marker struct {
	arena *Arena
	head  unsafe.Pointer
}

// CreateMarker records the arena's current head.
func (a *Arena) CreateMarker() Marker {
	return Marker{arena: a, head: a.Head()}
}

// ResetToMarker pops the arena back to m.
func (a *Arena) ResetToMarker(m Marker) error {
	if m.arena != a {
		return usage(ErrWrongArena)
	}
	return a.PopTo(m.head)
}

// Reset pops the marker's arena back to the marker.
func (m Marker) Reset() error {
	if m.arena == nil {
		return usage(errors.Wrap(ErrInvalidUsage, "zero Marker"))
	}
	return m.arena.ResetToMarker(m)
}

// Head is the address the marker resets to.
func (m Marker) Head() unsafe.Pointer { return m.head }
