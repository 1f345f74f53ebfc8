// Package vmem provides the virtual memory capability that arenas allocate
// their blocks from.
//
// A Subsystem is created once per process and is safe to share between
// goroutines after construction. Arenas never touch the OS directly; they
// reserve, commit, decommit and release whole blocks through a Subsystem.
package vmem

import (
	"github.com/pkg/errors"
)

var (
	// ErrReserve is returned when a reservation cannot be satisfied.
	ErrReserve = errors.New("vmem: reserve failed")
	// ErrProtectUnsupported is returned by subsystems that cannot change page protections.
	ErrProtectUnsupported = errors.New("vmem: page protection not supported")
)

// Subsystem is the host-supplied source of virtual memory.
type Subsystem interface {
	// Reserve returns at least size bytes, rounded up to the page size. The
	// returned slice must be passed back unchanged to Release.
	Reserve(size uintptr) ([]byte, error)
	// Commit makes b usable. It is a no-op unless AllowsSeparateCommit.
	Commit(b []byte) error
	// Decommit returns the physical pages backing b while keeping the
	// reservation. The contents read as zero afterwards.
	Decommit(b []byte) error
	// Release gives a reservation back. b is invalid afterwards.
	Release(b []byte) error
	// AllowsSeparateCommit reports whether Commit and Decommit do anything.
	AllowsSeparateCommit() bool
	// PageSize is the granularity reservations are rounded to.
	PageSize() int
}

// Protector is implemented by subsystems that can turn pages into
// inaccessible guard pages.
type Protector interface {
	// ProtectNone makes every page overlapping b fault on access.
	ProtectNone(b []byte) error
}

// Wrapper is implemented by decorators so that optional capabilities of the
// wrapped subsystem stay discoverable.
type Wrapper interface {
	Unwrap() Subsystem
}

// AsProtector returns the first Protector found by unwrapping s.
func AsProtector(s Subsystem) (Protector, bool) {
	for s != nil {
		if p, ok := s.(Protector); ok {
			return p, true
		}
		w, ok := s.(Wrapper)
		if !ok {
			return nil, false
		}
		s = w.Unwrap()
	}
	return nil, false
}

const maxInt = int(^uint(0) >> 1)

// RoundUp rounds n up to a multiple of the power of two align.
func RoundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// reservationSize is the page-rounded size of a reservation of n bytes. Empty
// reservations still occupy one page so that every reservation has an address.
func reservationSize(n uintptr, pageSize int) (uintptr, error) {
	page := uintptr(pageSize)
	if n == 0 {
		return page, nil
	}
	if n > ^uintptr(0)-page {
		return 0, errors.Wrapf(ErrReserve, "size %d overflows", n)
	}
	return RoundUp(n, page), nil
}
