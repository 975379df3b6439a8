package lob

import (
	"github.com/quantech-io/tickcore/pkg/fixed"
)

// ROIBook is the deep-book variant: levels inside a price window around a
// center are stored in a direct array indexed by (price-center)/tick for
// O(1) access regardless of depth; levels outside the window fall back to an
// overflow map. Used for symbols where deep-book access dominates and the
// top-N SideBook layout is too shallow.
type ROIBook struct {
	symbol fixed.Symbol
	ts     fixed.Ts
	seq    uint64

	center fixed.Px
	width  fixed.Px
	tick   fixed.Px

	bids roiSide
	asks roiSide
}

type roiSide struct {
	// qty/orders indexed by (price - lo) / tick, covering [lo, hi].
	qtys   []fixed.Qty
	orders []uint32
	lo     fixed.Px
	tick   fixed.Px
	// overflow carries levels outside the window.
	overflow map[fixed.Px]fixed.Qty
	isBid    bool
}

// NewROIBook creates a book with a direct window [center-width, center+width].
// tick must evenly divide width.
func NewROIBook(symbol fixed.Symbol, center, width, tick fixed.Px) *ROIBook {
	slots := int(2*width/tick) + 1
	mk := func(isBid bool) roiSide {
		return roiSide{
			qtys:     make([]fixed.Qty, slots),
			orders:   make([]uint32, slots),
			lo:       center - width,
			tick:     tick,
			overflow: make(map[fixed.Px]fixed.Qty),
			isBid:    isBid,
		}
	}
	return &ROIBook{
		symbol: symbol,
		center: center,
		width:  width,
		tick:   tick,
		bids:   mk(true),
		asks:   mk(false),
	}
}

func (s *roiSide) slot(px fixed.Px) (int, bool) {
	if px < s.lo {
		return 0, false
	}
	off := int64(px - s.lo)
	if off%int64(s.tick) != 0 {
		return 0, false
	}
	idx := int(off / int64(s.tick))
	if idx >= len(s.qtys) {
		return 0, false
	}
	return idx, true
}

func (s *roiSide) set(px fixed.Px, qty fixed.Qty, orders uint32) {
	if idx, ok := s.slot(px); ok {
		s.qtys[idx] = qty
		s.orders[idx] = orders
		return
	}
	if qty == 0 {
		delete(s.overflow, px)
	} else {
		s.overflow[px] = qty
	}
}

func (s *roiSide) qtyAt(px fixed.Px) fixed.Qty {
	if idx, ok := s.slot(px); ok {
		return s.qtys[idx]
	}
	return s.overflow[px]
}

// best scans the window from the aggressive end, then the overflow map, and
// returns the more aggressive of the two.
func (s *roiSide) best() (fixed.Px, fixed.Qty, bool) {
	var bestPx fixed.Px
	var bestQty fixed.Qty
	found := false
	if s.isBid {
		for i := len(s.qtys) - 1; i >= 0; i-- {
			if s.qtys[i] > 0 {
				bestPx, bestQty, found = s.lo+fixed.Px(int64(i)*int64(s.tick)), s.qtys[i], true
				break
			}
		}
	} else {
		for i := 0; i < len(s.qtys); i++ {
			if s.qtys[i] > 0 {
				bestPx, bestQty, found = s.lo+fixed.Px(int64(i)*int64(s.tick)), s.qtys[i], true
				break
			}
		}
	}
	for px, qty := range s.overflow {
		if !found || (s.isBid && px > bestPx) || (!s.isBid && px < bestPx) {
			bestPx, bestQty, found = px, qty, true
		}
	}
	return bestPx, bestQty, found
}

func (s *roiSide) totalQty() fixed.Qty {
	var total fixed.Qty
	for _, q := range s.qtys {
		total += q
	}
	for _, q := range s.overflow {
		total += q
	}
	return total
}

// Set places qty at px on side; qty == 0 removes the level.
func (b *ROIBook) Set(ts fixed.Ts, side fixed.Side, px fixed.Px, qty fixed.Qty, orders uint32) error {
	s := &b.bids
	if side == fixed.Ask {
		s = &b.asks
	}
	s.set(px, qty, orders)
	if bid, _, okB := b.bids.best(); okB {
		if ask, _, okA := b.asks.best(); okA && bid >= ask {
			// Undo and reject; ROI books are fed validated streams, a
			// cross here means the feed is broken.
			s.set(px, 0, 0)
			return &CrossedBookError{Bid: bid, Ask: ask}
		}
	}
	b.ts = ts
	b.seq++
	return nil
}

// QtyAt returns the resting quantity at an exact price. O(1) inside the
// window.
func (b *ROIBook) QtyAt(side fixed.Side, px fixed.Px) fixed.Qty {
	if side == fixed.Bid {
		return b.bids.qtyAt(px)
	}
	return b.asks.qtyAt(px)
}

// BestBid returns the top bid level.
func (b *ROIBook) BestBid() (fixed.Px, fixed.Qty, bool) { return b.bids.best() }

// BestAsk returns the top ask level.
func (b *ROIBook) BestAsk() (fixed.Px, fixed.Qty, bool) { return b.asks.best() }

// Mid returns the midpoint of the BBO in ticks.
func (b *ROIBook) Mid() (fixed.Px, bool) {
	bid, _, okB := b.bids.best()
	ask, _, okA := b.asks.best()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Microprice returns the size-weighted mid, integer math throughout.
func (b *ROIBook) Microprice() (fixed.Px, bool) {
	bid, bidQty, okB := b.bids.best()
	ask, askQty, okA := b.asks.best()
	if !okB || !okA {
		return 0, false
	}
	total := int64(bidQty) + int64(askQty)
	if total <= 0 {
		return b.Mid()
	}
	return fixed.Px((int64(bid)*int64(askQty) + int64(ask)*int64(bidQty)) / total), true
}

// Imbalance over the whole window plus overflow.
func (b *ROIBook) Imbalance() (float64, bool) {
	bidQty := int64(b.bids.totalQty())
	askQty := int64(b.asks.totalQty())
	total := bidQty + askQty
	if total <= 0 {
		return 0, false
	}
	return float64(bidQty-askQty) / float64(total), true
}

// Sequence returns the count of accepted updates.
func (b *ROIBook) Sequence() uint64 { return b.seq }
