package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/lob"
)

// wireUpdate is the normalized JSON contract. Adapters either send raw tick
// integers (preferred) or decimal strings, which are parsed exactly — no
// float round-trip on the ingestion path.
//
//	{"ts_ns":1000,"symbol_id":1,"side":"bid","level":0,"price":"99.5","qty":"100"}
//	{"ts_ns":1000,"symbol_id":1,"side":"ask","level":0,"price_ticks":1005000,"qty_ticks":1500000}
type wireUpdate struct {
	TsNs       uint64 `json:"ts_ns"`
	SymbolID   uint32 `json:"symbol_id"`
	Side       string `json:"side"`
	Level      int    `json:"level"`
	PriceTicks *int64 `json:"price_ticks"`
	QtyTicks   *int64 `json:"qty_ticks"`
	Price      string `json:"price"`
	Qty        string `json:"qty"`
	Orders     uint32 `json:"orders"`
}

var errBadSide = errors.New("feed: side must be \"bid\" or \"ask\"")

// ParseUpdate decodes one wire message into an L2Update.
func ParseUpdate(data []byte) (*lob.L2Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("feed: decode update: %w", err)
	}

	var side fixed.Side
	switch w.Side {
	case "bid", "buy":
		side = fixed.Bid
	case "ask", "sell":
		side = fixed.Ask
	default:
		return nil, errBadSide
	}

	var px fixed.Px
	switch {
	case w.PriceTicks != nil:
		px = fixed.Px(*w.PriceTicks)
	case w.Price != "":
		var err error
		if px, err = fixed.PxFromDecimal(w.Price); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("feed: update has no price")
	}

	var qty fixed.Qty
	switch {
	case w.QtyTicks != nil:
		qty = fixed.Qty(*w.QtyTicks)
	case w.Qty != "":
		var err error
		if qty, err = fixed.QtyFromDecimal(w.Qty); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("feed: update has no quantity")
	}
	if qty < 0 {
		return nil, fmt.Errorf("feed: negative quantity %d", qty)
	}

	return &lob.L2Update{
		Ts:     fixed.TsFromNanos(w.TsNs),
		Symbol: fixed.Symbol(w.SymbolID),
		Side:   side,
		Level:  w.Level,
		Price:  px,
		Qty:    qty,
		Orders: w.Orders,
	}, nil
}
