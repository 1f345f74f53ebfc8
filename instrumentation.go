package arena

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumentation holds Prometheus metrics shared by any number of arenas.
// A nil *Instrumentation records nothing.
type Instrumentation struct {
	BlocksReserved   prometheus.Counter
	BlocksReleased   prometheus.Counter
	ReservedBytes    prometheus.Gauge
	Exhaustions      prometheus.Counter
	GuardAllocations prometheus.Counter
}

// NewInstrumentation registers the arena metrics with reg.
func NewInstrumentation(reg prometheus.Registerer) *Instrumentation {
	return &Instrumentation{
		BlocksReserved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arena_blocks_reserved_total",
			Help: "Total number of memory blocks reserved by arenas.",
		}),
		BlocksReleased: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arena_blocks_released_total",
			Help: "Total number of memory blocks released by arenas.",
		}),
		ReservedBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "arena_reserved_bytes",
			Help: "Bytes currently reserved by arena blocks, including guard allocations.",
		}),
		Exhaustions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arena_exhaustions_total",
			Help: "Total number of pushes that failed because no memory was available.",
		}),
		GuardAllocations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arena_guard_allocations_total",
			Help: "Total number of pushes served by a guard-page debug strategy.",
		}),
	}
}

func (i *Instrumentation) reserved(bytes int) {
	if i == nil {
		return
	}
	i.BlocksReserved.Inc()
	i.ReservedBytes.Add(float64(bytes))
}

func (i *Instrumentation) released(bytes int) {
	if i == nil {
		return
	}
	i.BlocksReleased.Inc()
	i.ReservedBytes.Sub(float64(bytes))
}

func (i *Instrumentation) exhausted() {
	if i == nil {
		return
	}
	i.Exhaustions.Inc()
}

func (i *Instrumentation) guarded() {
	if i == nil {
		return
	}
	i.GuardAllocations.Inc()
}
