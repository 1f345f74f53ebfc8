//go:build !linux && !darwin && !freebsd

package vmem

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// mappedSubsystem uses anonymous read-write mappings. Reservations are
// committed as soon as they exist, so there is no separate commit step and no
// way to build guard pages.
type mappedSubsystem struct {
	pageSize int
}

// NewOS returns the Subsystem backed by the operating system's virtual memory.
func NewOS() Subsystem {
	return &mappedSubsystem{pageSize: os.Getpagesize()}
}

func (s *mappedSubsystem) Reserve(size uintptr) ([]byte, error) {
	n, err := reservationSize(size, s.pageSize)
	if err != nil {
		return nil, err
	}
	if n > uintptr(maxInt) {
		return nil, errors.Wrapf(ErrReserve, "size %d exceeds address space", size)
	}
	m, err := mmap.MapRegion(nil, int(n), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrapf(ErrReserve, "map %d bytes: %v", n, err)
	}
	return m, nil
}

func (s *mappedSubsystem) Commit([]byte) error { return nil }

func (s *mappedSubsystem) Decommit([]byte) error { return nil }

func (s *mappedSubsystem) Release(b []byte) error {
	m := mmap.MMap(b)
	return errors.Wrap(m.Unmap(), "unmap")
}

func (s *mappedSubsystem) AllowsSeparateCommit() bool { return false }

func (s *mappedSubsystem) PageSize() int { return s.pageSize }
