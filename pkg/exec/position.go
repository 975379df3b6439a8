package exec

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/util"
)

// Position is the per-symbol inventory record. Every field is an atomic so
// fills and marks from different threads interleave without locks; the
// individual fields are each linearizable, cross-field reads are eventually
// consistent and squared up by Tracker.Reconcile.
//
// avg price is stored in ticks; realized/unrealized PnL in scaled quote
// units (1e-4).
type Position struct {
	Symbol fixed.Symbol

	qty        atomic.Int64
	avgPx      atomic.Uint64
	realized   atomic.Int64
	unrealized atomic.Int64
	lastBid    atomic.Uint64
	lastAsk    atomic.Uint64
	lastTs     atomic.Uint64

	_ [64]byte
}

// NewPosition creates a flat position.
func NewPosition(symbol fixed.Symbol) *Position {
	return &Position{Symbol: symbol}
}

// ApplyFill folds one execution into the position.
//
// Opening from flat or adding to a position (fill on the same side as the
// open quantity) updates the weighted average entry price; reducing or
// closing realizes (px - avg) on the closed portion, sign per direction;
// flipping does both and restarts the average at the fill price.
func (p *Position) ApplyFill(side fixed.Side, qty fixed.Qty, px fixed.Px, ts fixed.Ts) {
	qtyRaw := int64(qty)
	delta := qtyRaw
	if side == fixed.Ask {
		delta = -qtyRaw
	}

	oldQty := p.qty.Load()
	newQty := p.qty.Add(delta)

	if newQty != 0 && (oldQty == 0 || (oldQty > 0) == (delta > 0)) {
		// Opening or adding.
		oldAvg := int64(p.avgPx.Load())
		var newAvg int64
		if oldQty == 0 {
			newAvg = int64(px)
		} else {
			newAvg = (oldAvg*abs64(oldQty) + int64(px)*qtyRaw) / (abs64(oldQty) + qtyRaw)
		}
		p.avgPx.Store(uint64(newAvg))
	} else if oldQty != 0 {
		// Reducing, closing or flipping.
		oldAvg := int64(p.avgPx.Load())
		closed := min64(abs64(oldQty), qtyRaw)
		var pnl int64
		if oldQty > 0 {
			pnl = (int64(px) - oldAvg) * closed / fixed.Scale
		} else {
			pnl = (oldAvg - int64(px)) * closed / fixed.Scale
		}
		p.realized.Add(pnl)
		if oldQty*newQty < 0 {
			p.avgPx.Store(uint64(int64(px)))
		}
	}

	p.lastTs.Store(ts.Nanos())
}

// UpdateMarket refreshes the mark and recomputes unrealized PnL: longs mark
// at the bid, shorts at the ask.
func (p *Position) UpdateMarket(bid, ask fixed.Px, ts fixed.Ts) {
	p.lastBid.Store(uint64(bid))
	p.lastAsk.Store(uint64(ask))

	qty := p.qty.Load()
	if qty == 0 {
		p.unrealized.Store(0)
	} else {
		avg := int64(p.avgPx.Load())
		if qty > 0 {
			p.unrealized.Store((int64(bid) - avg) * qty / fixed.Scale)
		} else {
			p.unrealized.Store((avg - int64(ask)) * (-qty) / fixed.Scale)
		}
	}
	p.lastTs.Store(ts.Nanos())
}

// Qty returns the signed position size.
func (p *Position) Qty() fixed.Qty { return fixed.Qty(p.qty.Load()) }

// AvgPx returns the average entry price in ticks.
func (p *Position) AvgPx() fixed.Px { return fixed.Px(p.avgPx.Load()) }

// Realized returns cumulative realized PnL in scaled quote units.
func (p *Position) Realized() int64 { return p.realized.Load() }

// Unrealized returns the last computed unrealized PnL.
func (p *Position) Unrealized() int64 { return p.unrealized.Load() }

// TotalPnL returns realized + unrealized.
func (p *Position) TotalPnL() int64 { return p.Realized() + p.Unrealized() }

// Tracker maintains all positions plus incrementally updated global PnL
// totals. The increments observe per-position atomics in no particular
// order, so the totals drift during bursts; Reconcile re-sums everything
// and runs from the fill path once ReconcileUpdates fills have accumulated
// or ReconcileInterval has elapsed since the last pass, whichever comes
// first.
type Tracker struct {
	positions sync.Map // fixed.Symbol -> *Position

	totalRealized   atomic.Int64
	totalUnrealized atomic.Int64

	updates       atomic.Uint64
	lastReconcile atomic.Uint64

	reconcileUpdates  uint64
	reconcileInterval time.Duration
	clock             util.Clock
	log               *zap.Logger
}

// NewTracker creates a tracker. reconcileUpdates/reconcileInterval of zero
// pick the defaults (100 updates, 1s).
func NewTracker(reconcileUpdates uint64, reconcileInterval time.Duration, clock util.Clock, log *zap.Logger) *Tracker {
	if reconcileUpdates == 0 {
		reconcileUpdates = 100
	}
	if reconcileInterval == 0 {
		reconcileInterval = time.Second
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		reconcileUpdates:  reconcileUpdates,
		reconcileInterval: reconcileInterval,
		clock:             clock,
		log:               log,
	}
}

// Position returns the record for symbol, creating it on first use.
// Positions persist for the process lifetime; zero quantity is not removal.
func (t *Tracker) Position(symbol fixed.Symbol) *Position {
	if v, ok := t.positions.Load(symbol); ok {
		return v.(*Position)
	}
	v, _ := t.positions.LoadOrStore(symbol, NewPosition(symbol))
	return v.(*Position)
}

// ApplyFill routes a fill to its position and nudges the global totals by
// the observed deltas.
func (t *Tracker) ApplyFill(f *Fill) {
	pos := t.Position(f.Symbol)

	oldRealized := pos.Realized()
	oldUnrealized := pos.Unrealized()

	pos.ApplyFill(f.Side, f.Qty, f.Price, f.Ts)

	t.totalRealized.Add(pos.Realized() - oldRealized)
	t.totalUnrealized.Add(pos.Unrealized() - oldUnrealized)

	t.maybeReconcile()
}

// UpdateMarket refreshes one symbol's mark and the global unrealized total.
func (t *Tracker) UpdateMarket(symbol fixed.Symbol, bid, ask fixed.Px, ts fixed.Ts) {
	v, ok := t.positions.Load(symbol)
	if !ok {
		return
	}
	pos := v.(*Position)
	old := pos.Unrealized()
	pos.UpdateMarket(bid, ask, ts)
	t.totalUnrealized.Add(pos.Unrealized() - old)
}

func (t *Tracker) maybeReconcile() {
	n := t.updates.Add(1)
	now := uint64(t.clock.Now().UnixNano())
	last := t.lastReconcile.Load()
	if n < t.reconcileUpdates && now-last < uint64(t.reconcileInterval.Nanoseconds()) {
		return
	}
	if t.lastReconcile.CompareAndSwap(last, now) {
		t.Reconcile()
		t.updates.Store(0)
	}
}

// Reconcile re-sums every position and replaces the global totals,
// correcting any drift the incremental path accumulated. Not a hot-path
// call.
func (t *Tracker) Reconcile() {
	var realized, unrealized int64
	t.positions.Range(func(_, v any) bool {
		pos := v.(*Position)
		realized += pos.Realized()
		unrealized += pos.Unrealized()
		return true
	})
	t.totalRealized.Store(realized)
	t.totalUnrealized.Store(unrealized)
	t.log.Debug("pnl reconciled",
		zap.Int64("realized", realized),
		zap.Int64("unrealized", unrealized),
	)
}

// GlobalPnL returns (realized, unrealized, total).
func (t *Tracker) GlobalPnL() (int64, int64, int64) {
	r := t.totalRealized.Load()
	u := t.totalUnrealized.Load()
	return r, u, r + u
}

// Each visits every position.
func (t *Tracker) Each(fn func(*Position)) {
	t.positions.Range(func(_, v any) bool {
		fn(v.(*Position))
		return true
	})
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
