package vmem

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Failing decorates a Subsystem so that every reservation after the first
// `after` ones fails. It is used to exercise exhaustion paths.
type Failing struct {
	Subsystem

	after  int64
	issued atomic.Int64
}

// NewFailing wraps s. A negative after never fails.
func NewFailing(s Subsystem, after int) *Failing {
	return &Failing{Subsystem: s, after: int64(after)}
}

func (f *Failing) Reserve(size uintptr) ([]byte, error) {
	if f.after >= 0 && f.issued.Inc() > f.after {
		return nil, errors.Wrapf(ErrReserve, "reservation budget of %d exhausted", f.after)
	}
	return f.Subsystem.Reserve(size)
}

// Unwrap returns the decorated subsystem.
func (f *Failing) Unwrap() Subsystem { return f.Subsystem }
