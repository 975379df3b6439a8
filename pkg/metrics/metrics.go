// Package metrics exports the substrate's telemetry counters. The counters
// are part of the error-handling contract — feed errors are counted and
// skipped, not thrown. The HTTP listener that serves them is wired in cmd,
// not here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the explicit telemetry context passed at construction — no
// process-wide singletons on core paths. cmd/engine and pkg/feed update
// FeedUpdates, FeedErrors, CrossedBooks, WalAppends (tick records only) and
// BookDepth; WalBytes, WalRotations, RingDrops, PoolExhaustions and
// Reconciles are registered but nothing increments them.
type Metrics struct {
	FeedUpdates     prometheus.Counter
	FeedErrors      prometheus.Counter
	CrossedBooks    prometheus.Counter
	WalAppends      prometheus.Counter
	WalBytes        prometheus.Counter
	WalRotations    prometheus.Counter
	RingDrops       prometheus.Counter
	PoolExhaustions prometheus.Counter
	Reconciles      prometheus.Counter
	BookDepth       *prometheus.GaugeVec
}

// New registers the counter set on reg. Pass prometheus.NewRegistry() in
// tests to avoid default-registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "feed", Name: "updates_total",
			Help: "Normalized L2 updates applied to books.",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "feed", Name: "errors_total",
			Help: "Per-update errors skipped by the feed loop.",
		}),
		CrossedBooks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "lob", Name: "crossed_books_total",
			Help: "Updates rejected for crossing the book (auto-resolved crosses are not counted).",
		}),
		WalAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "wal", Name: "appends_total",
			Help: "Records appended to the WAL.",
		}),
		WalBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "wal", Name: "bytes_total",
			Help: "Payload bytes appended to the WAL.",
		}),
		WalRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "wal", Name: "rotations_total",
			Help: "Segment rotations.",
		}),
		RingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "exec", Name: "ring_drops_total",
			Help: "Submissions dropped because the ring was full.",
		}),
		PoolExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "exec", Name: "pool_exhaustions_total",
			Help: "Order submissions refused because the pool was empty.",
		}),
		Reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickcore", Subsystem: "pnl", Name: "reconciles_total",
			Help: "Full PnL reconciliation passes.",
		}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tickcore", Subsystem: "lob", Name: "depth_levels",
			Help: "Populated levels per side.",
		}, []string{"symbol", "side"}),
	}
	reg.MustRegister(
		m.FeedUpdates, m.FeedErrors, m.CrossedBooks,
		m.WalAppends, m.WalBytes, m.WalRotations,
		m.RingDrops, m.PoolExhaustions, m.Reconciles,
		m.BookDepth,
	)
	return m
}
