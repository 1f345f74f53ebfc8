package vmem

import (
	"os"
	"unsafe"
)

// heapSubsystem hands out page-aligned slices of Go heap memory. Release
// leaves reclamation to the garbage collector.
type heapSubsystem struct {
	pageSize int
}

// NewHeap returns a Subsystem that allocates from the Go heap. It never fails
// for reasonable sizes and has no separate commit step.
func NewHeap() Subsystem {
	return &heapSubsystem{pageSize: os.Getpagesize()}
}

func (s *heapSubsystem) Reserve(size uintptr) ([]byte, error) {
	n, err := reservationSize(size, s.pageSize)
	if err != nil {
		return nil, err
	}
	page := uintptr(s.pageSize)
	if uint64(n) > maxHeapReservation-uint64(page) {
		return nil, ErrReserve
	}
	raw := make([]byte, n+page)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := RoundUp(addr, page) - addr
	return raw[off : off+n : off+n], nil
}

func (s *heapSubsystem) Commit([]byte) error { return nil }

func (s *heapSubsystem) Decommit([]byte) error { return nil }

func (s *heapSubsystem) Release([]byte) error { return nil }

func (s *heapSubsystem) AllowsSeparateCommit() bool { return false }

func (s *heapSubsystem) PageSize() int { return s.pageSize }

// maxHeapReservation keeps oversized requests from panicking in make.
const maxHeapReservation = 1 << 40
