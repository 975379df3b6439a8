// Package lob is the in-memory market-state engine: per-symbol L2 books with
// crossed-book detection and top-of-book analytics. The apply path is the hot
// path and must stay allocation-free; every number in the book is a fixed
// point integer so two books fed the same updates hash identically.
package lob

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// CrossPolicy decides what Apply does when an update would cross the book.
type CrossPolicy uint8

const (
	// CrossReject returns CrossedBookError and leaves the book unchanged.
	// The right choice for fault-detecting ingestion.
	CrossReject CrossPolicy = iota
	// CrossAutoResolve keeps the incoming update and trims the stale far
	// side until best bid < best ask, logging a diagnostic.
	CrossAutoResolve
)

// Book is a single-symbol L2 order book. One writer (the feed goroutine)
// calls Apply; any number of readers use Snapshot. Writer-side accessors
// (BestBid, Mid, ...) must only be called from the writer goroutine.
type Book struct {
	symbol fixed.Symbol
	ts     fixed.Ts
	seq    uint64

	bids SideBook
	asks SideBook

	policy CrossPolicy
	log    *zap.Logger

	// writeSeq is the seqlock word: odd while a write is in flight.
	writeSeq atomic.Uint64
}

// NewBook creates an empty book for symbol.
func NewBook(symbol fixed.Symbol, policy CrossPolicy, log *zap.Logger) *Book {
	if log == nil {
		log = zap.NewNop()
	}
	return &Book{symbol: symbol, policy: policy, log: log}
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() fixed.Symbol { return b.symbol }

// Sequence returns the count of accepted updates.
func (b *Book) Sequence() uint64 { return b.seq }

// LastTs returns the timestamp of the last accepted update.
func (b *Book) LastTs() fixed.Ts { return b.ts }

// Apply applies one normalized L2 update. On success the sequence is bumped
// and the timestamp stamped. A crossed result is handled per policy: under
// CrossReject the write is undone and CrossedBookError returned; under
// CrossAutoResolve the far side is trimmed and Apply succeeds.
func (b *Book) Apply(u *L2Update) error {
	side := &b.bids
	if u.Side == fixed.Ask {
		side = &b.asks
	}

	b.beginWrite()
	saved := *side
	if err := side.Set(u.Level, u.Price, u.Qty, u.Orders); err != nil {
		b.endWrite()
		return err
	}

	if bid, ask, crossed := b.crossed(); crossed {
		switch b.policy {
		case CrossReject:
			*side = saved
			b.endWrite()
			return &CrossedBookError{Bid: bid, Ask: ask}
		case CrossAutoResolve:
			b.resolveCross(u.Side)
		}
	}

	b.ts = u.Ts
	b.seq++
	b.endWrite()
	return nil
}

// crossed reports best bid >= best ask with both sides present.
func (b *Book) crossed() (fixed.Px, fixed.Px, bool) {
	bid, _, okB := b.bids.Best()
	ask, _, okA := b.asks.Best()
	if okB && okA && bid >= ask {
		return bid, ask, true
	}
	return 0, 0, false
}

// resolveCross trims the side opposite the incoming update: the venue told
// us the near side just moved, so the resting far levels are stale.
func (b *Book) resolveCross(incoming fixed.Side) {
	far := &b.asks
	if incoming == fixed.Ask {
		far = &b.bids
	}
	for {
		bid, ask, crossed := b.crossed()
		if !crossed {
			return
		}
		px, qty, _ := far.Best()
		b.log.Warn("auto-resolving crossed book",
			zap.Uint32("symbol", uint32(b.symbol)),
			zap.String("bid", bid.String()),
			zap.String("ask", ask.String()),
			zap.String("trimmed_px", px.String()),
			zap.String("trimmed_qty", qty.String()),
		)
		far.remove(0)
	}
}

// IsCrossed reports best bid >= best ask. Never true after a successful
// Apply; exposed for diagnostics on externally loaded state.
func (b *Book) IsCrossed() bool {
	_, _, crossed := b.crossed()
	return crossed
}

// IsLocked reports best bid == best ask.
func (b *Book) IsLocked() bool {
	bid, _, okB := b.bids.Best()
	ask, _, okA := b.asks.Best()
	return okB && okA && bid == ask
}

// BestBid returns the top bid level.
func (b *Book) BestBid() (fixed.Px, fixed.Qty, bool) { return b.bids.Best() }

// BestAsk returns the top ask level.
func (b *Book) BestAsk() (fixed.Px, fixed.Qty, bool) { return b.asks.Best() }

// Bids exposes the bid side for iteration.
func (b *Book) Bids() *SideBook { return &b.bids }

// Asks exposes the ask side for iteration.
func (b *Book) Asks() *SideBook { return &b.asks }

// Mid returns (best bid + best ask) / 2 in ticks.
func (b *Book) Mid() (fixed.Px, bool) {
	bid, _, okB := b.bids.Best()
	ask, _, okA := b.asks.Best()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Microprice returns the size-weighted mid:
// (bid_px*ask_qty + ask_px*bid_qty) / (bid_qty + ask_qty), all integer.
func (b *Book) Microprice() (fixed.Px, bool) {
	bid, bidQty, okB := b.bids.Best()
	ask, askQty, okA := b.asks.Best()
	if !okB || !okA {
		return 0, false
	}
	total := int64(bidQty) + int64(askQty)
	if total <= 0 {
		return b.Mid()
	}
	micro := (int64(bid)*int64(askQty) + int64(ask)*int64(bidQty)) / total
	return fixed.Px(micro), true
}

// SpreadTicks returns best ask - best bid in ticks.
func (b *Book) SpreadTicks() (int64, bool) {
	bid, _, okB := b.bids.Best()
	ask, _, okA := b.asks.Best()
	if !okB || !okA {
		return 0, false
	}
	return int64(ask) - int64(bid), true
}

// Imbalance returns (sum bid qty - sum ask qty) / (sum bid qty + sum ask qty)
// over the top depth levels. This is the single permitted floating point
// output; it is analytics-only and never feeds back into book state.
func (b *Book) Imbalance(depth int) (float64, bool) {
	bidQty := int64(b.bids.TotalQty(depth))
	askQty := int64(b.asks.TotalQty(depth))
	total := bidQty + askQty
	if total <= 0 {
		return 0, false
	}
	return float64(bidQty-askQty) / float64(total), true
}

// StateHash folds every (price, qty) pair on both sides into a rolling hash.
// Two books that applied the same updates in the same order hash equal; the
// replay harness relies on this.
func (b *Book) StateHash() uint64 {
	var h uint64
	for i := 0; i < b.bids.depth; i++ {
		h = h*31 + uint64(b.bids.prices[i])
		h = h*31 + uint64(b.bids.qtys[i])
	}
	for i := 0; i < b.asks.depth; i++ {
		h = h*31 + uint64(b.asks.prices[i])
		h = h*31 + uint64(b.asks.qtys[i])
	}
	return h
}

// Clear resets levels and sequence.
func (b *Book) Clear() {
	b.beginWrite()
	b.bids.Clear()
	b.asks.Clear()
	b.seq = 0
	b.ts = 0
	b.endWrite()
}

func (b *Book) beginWrite() { b.writeSeq.Add(1) }
func (b *Book) endWrite()   { b.writeSeq.Add(1) }

// Level is one aggregated price level in a snapshot.
type Level struct {
	Price  fixed.Px
	Qty    fixed.Qty
	Orders uint32
}

// Snapshot is a consistent copy of the book published to reader goroutines.
type Snapshot struct {
	Symbol   fixed.Symbol
	Ts       fixed.Ts
	Sequence uint64
	Bids     []Level
	Asks     []Level
}

// Snapshot takes a seqlock-consistent copy of the book. Readers never block
// the writer; a read that raced a write simply retries.
func (b *Book) Snapshot() Snapshot {
	for {
		start := b.writeSeq.Load()
		if start&1 == 1 {
			continue
		}
		snap := Snapshot{
			Symbol:   b.symbol,
			Ts:       b.ts,
			Sequence: b.seq,
			Bids:     copyLevels(&b.bids),
			Asks:     copyLevels(&b.asks),
		}
		if b.writeSeq.Load() == start {
			return snap
		}
	}
}

func copyLevels(s *SideBook) []Level {
	out := make([]Level, s.depth)
	for i := 0; i < s.depth; i++ {
		out[i] = Level{Price: s.prices[i], Qty: s.qtys[i], Orders: s.orders[i]}
	}
	return out
}
