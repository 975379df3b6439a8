package lob

import "github.com/quantech-io/tickcore/pkg/fixed"

// Depth is the number of levels tracked per side.
const Depth = 32

// SideBook is one side of the book: fixed-capacity price levels, best first.
// Bids are sorted descending, asks ascending; ordering is the feed's
// responsibility, the book only indexes by level.
//
// Fixed arrays keep the whole side in a handful of cache lines so the apply
// path stays allocation-free.
type SideBook struct {
	prices [Depth]fixed.Px
	qtys   [Depth]fixed.Qty
	orders [Depth]uint32
	depth  int
}

// Set replaces the level at the given index, or removes it when qty == 0.
// Setting one past the current depth extends the side.
func (s *SideBook) Set(level int, px fixed.Px, qty fixed.Qty, orders uint32) error {
	if level >= Depth || level < 0 {
		return &InvalidLevelError{Level: level}
	}
	if qty == 0 {
		s.remove(level)
		return nil
	}
	if level > s.depth {
		// Gap in the feed; clamp to an append so the side stays dense.
		level = s.depth
	}
	s.prices[level] = px
	s.qtys[level] = qty
	s.orders[level] = orders
	if level == s.depth {
		s.depth++
	}
	return nil
}

func (s *SideBook) remove(level int) {
	if level >= s.depth {
		return
	}
	copy(s.prices[level:], s.prices[level+1:s.depth])
	copy(s.qtys[level:], s.qtys[level+1:s.depth])
	copy(s.orders[level:], s.orders[level+1:s.depth])
	s.depth--
	s.prices[s.depth] = 0
	s.qtys[s.depth] = 0
	s.orders[s.depth] = 0
}

// Best returns the top level.
func (s *SideBook) Best() (fixed.Px, fixed.Qty, bool) {
	if s.depth == 0 {
		return 0, 0, false
	}
	return s.prices[0], s.qtys[0], true
}

// Level returns the level at index i.
func (s *SideBook) Level(i int) (fixed.Px, fixed.Qty, uint32, bool) {
	if i < 0 || i >= s.depth {
		return 0, 0, 0, false
	}
	return s.prices[i], s.qtys[i], s.orders[i], true
}

// Depth returns the number of populated levels.
func (s *SideBook) Depth() int { return s.depth }

// TotalQty sums quantity over the top n levels.
func (s *SideBook) TotalQty(n int) fixed.Qty {
	if n > s.depth {
		n = s.depth
	}
	var total fixed.Qty
	for i := 0; i < n; i++ {
		total += s.qtys[i]
	}
	return total
}

// Clear empties the side.
func (s *SideBook) Clear() {
	for i := 0; i < s.depth; i++ {
		s.prices[i] = 0
		s.qtys[i] = 0
		s.orders[i] = 0
	}
	s.depth = 0
}
