package vmem

import (
	"go.uber.org/atomic"
)

// Counting decorates a Subsystem with live reservation counters. The
// counters are safe to read from any goroutine.
type Counting struct {
	Subsystem

	reserves  atomic.Int64
	releases  atomic.Int64
	liveBytes atomic.Int64
	peakBytes atomic.Int64
}

// NewCounting wraps s.
func NewCounting(s Subsystem) *Counting {
	return &Counting{Subsystem: s}
}

func (c *Counting) Reserve(size uintptr) ([]byte, error) {
	b, err := c.Subsystem.Reserve(size)
	if err != nil {
		return nil, err
	}
	c.reserves.Inc()
	live := c.liveBytes.Add(int64(len(b)))
	for {
		peak := c.peakBytes.Load()
		if live <= peak || c.peakBytes.CompareAndSwap(peak, live) {
			break
		}
	}
	return b, nil
}

func (c *Counting) Release(b []byte) error {
	c.releases.Inc()
	c.liveBytes.Sub(int64(len(b)))
	return c.Subsystem.Release(b)
}

// Unwrap returns the decorated subsystem.
func (c *Counting) Unwrap() Subsystem { return c.Subsystem }

// Reserves is the number of successful reservations.
func (c *Counting) Reserves() int64 { return c.reserves.Load() }

// Releases is the number of releases.
func (c *Counting) Releases() int64 { return c.releases.Load() }

// Live is the number of reservations not yet released.
func (c *Counting) Live() int64 { return c.reserves.Load() - c.releases.Load() }

// LiveBytes is the total size of reservations not yet released.
func (c *Counting) LiveBytes() int64 { return c.liveBytes.Load() }

// PeakBytes is the largest LiveBytes value observed.
func (c *Counting) PeakBytes() int64 { return c.peakBytes.Load() }
