package lob

import "github.com/quantech-io/tickcore/pkg/fixed"

// L2Update is the normalized feed contract: one price level on one side.
// Level indexes into the top-N book; Qty == 0 removes the level.
type L2Update struct {
	Ts     fixed.Ts
	Symbol fixed.Symbol
	Side   fixed.Side
	Level  int
	Price  fixed.Px
	Qty    fixed.Qty
	// Orders is the number of orders aggregated at the level, when the
	// venue reports it. Zero means unknown.
	Orders uint32
}
