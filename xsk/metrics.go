package xsk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the datapath counters. All counters are safe for the
// two-goroutine burst model.
type Metrics struct {
	RxFrames    prometheus.Counter
	TxFrames    prometheus.Counter
	FillEntries prometheus.Counter
	Completions prometheus.Counter

	// KickErrors counts tx kicks that failed with something other than
	// EAGAIN or EBUSY. Those are swallowed by the burst but worth watching.
	KickErrors prometheus.Counter

	// PoolOverflow counts frame addresses that could not be returned to the
	// pool. A nonzero value means frame accounting is corrupted.
	PoolOverflow prometheus.Counter
}

// NewMetrics builds the counter set and registers it with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RxFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "rx_frames_total",
			Help: "Frames delivered by Receive.",
		}),
		TxFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "tx_frames_total",
			Help: "Frames submitted by Send.",
		}),
		FillEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "fill_entries_total",
			Help: "Frame addresses posted to the fill ring.",
		}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "completions_total",
			Help: "Frame addresses reaped from the completion ring.",
		}),
		KickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "kick_errors_total",
			Help: "Tx kick syscalls that failed with an unexpected errno.",
		}),
		PoolOverflow: f.NewCounter(prometheus.CounterOpts{
			Namespace: "onager", Subsystem: "xsk", Name: "pool_overflow_total",
			Help: "Frame addresses dropped because the pool was full.",
		}),
	}
}
