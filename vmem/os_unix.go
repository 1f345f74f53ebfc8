//go:build linux || darwin || freebsd

package vmem

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// osSubsystem reserves address space with PROT_NONE mappings and commits it
// by switching protections, so guard pages are simply pages that were never
// committed.
type osSubsystem struct {
	pageSize int
}

// NewOS returns the Subsystem backed by the operating system's virtual memory.
func NewOS() Subsystem {
	return &osSubsystem{pageSize: unix.Getpagesize()}
}

func (s *osSubsystem) Reserve(size uintptr) ([]byte, error) {
	n, err := reservationSize(size, s.pageSize)
	if err != nil {
		return nil, err
	}
	if n > uintptr(maxInt) {
		return nil, errors.Wrapf(ErrReserve, "size %d exceeds address space", size)
	}
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(ErrReserve, "mmap %d bytes: %v", n, err)
	}
	return b, nil
}

func (s *osSubsystem) Commit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE), "mprotect")
}

func (s *osSubsystem) Decommit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Madvise(b, unix.MADV_DONTNEED), "madvise")
}

func (s *osSubsystem) Release(b []byte) error {
	return errors.Wrap(unix.Munmap(b), "munmap")
}

func (s *osSubsystem) ProtectNone(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(unix.Mprotect(b, unix.PROT_NONE), "mprotect")
}

func (s *osSubsystem) AllowsSeparateCommit() bool { return true }

func (s *osSubsystem) PageSize() int { return s.pageSize }
