package scratch

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pavanmanishd/arena/v2"
)

// PingPong builds a byte buffer of unknown final size in the scratch pair.
// When the buffer is full its contents are copied into the other scratch
// arena with twice the capacity, after resetting that arena to where it was
// when the PingPong was created. Both scratch arenas are in use until Reset,
// so a PingPong must not be used while either arena is the caller's.
type PingPong struct {
	arenas  [2]*arena.Arena
	markers [2]arena.Marker
	cur     int
	buf     []byte
}

// NewPingPong starts a buffer with room for initial bytes.
func NewPingPong(tc *ThreadContext, initial int) (*PingPong, error) {
	s0, s1 := tc.Scratch()
	pp := &PingPong{
		arenas:  [2]*arena.Arena{s0, s1},
		markers: [2]arena.Marker{s0.CreateMarker(), s1.CreateMarker()},
	}
	buf := s0.AllocBytes(max(initial, 1))
	if buf == nil {
		return nil, errors.Wrapf(arena.ErrExhausted, "ping-pong buffer of %d bytes", initial)
	}
	pp.buf = buf[:0]
	return pp, nil
}

// Append adds p to the buffer, moving it to the other arena if it is full.
func (pp *PingPong) Append(p []byte) error {
	if len(pp.buf)+len(p) > cap(pp.buf) {
		if err := pp.grow(len(pp.buf) + len(p)); err != nil {
			return err
		}
	}
	pp.buf = append(pp.buf, p...)
	return nil
}

func (pp *PingPong) grow(need int) error {
	newCap := max(2*cap(pp.buf), need)
	other := 1 - pp.cur
	if err := pp.markers[other].Reset(); err != nil {
		return err
	}
	nb := pp.arenas[other].AllocBytes(newCap)
	if nb == nil {
		return errors.Wrapf(arena.ErrExhausted, "grow ping-pong buffer to %d bytes", newCap)
	}
	pp.buf = append(nb[:0], pp.buf...)
	pp.cur = other
	return nil
}

// Bytes returns the buffered bytes. They stay valid until the next Append or
// Reset.
func (pp *PingPong) Bytes() []byte { return pp.buf }

// Arena returns the scratch arena currently holding the buffer.
func (pp *PingPong) Arena() *arena.Arena { return pp.arenas[pp.cur] }

// Reset returns both scratch arenas to where they were when the PingPong was
// created.
func (pp *PingPong) Reset() error {
	pp.buf = nil
	return multierr.Combine(pp.markers[0].Reset(), pp.markers[1].Reset())
}
