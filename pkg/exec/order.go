package exec

import (
	"sync/atomic"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// OrderType classifies how an order executes.
type OrderType uint8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
	// Algo parents: sliced into child orders over time.
	TWAP
	VWAP
	POV
)

// IsAlgo reports whether the type is a parent algo order.
func (t OrderType) IsAlgo() bool { return t == TWAP || t == VWAP || t == POV }

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	case TWAP:
		return "twap"
	case VWAP:
		return "vwap"
	case POV:
		return "pov"
	}
	return "unknown"
}

// TimeInForce is the order validity policy.
type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
	Day
	// GTT orders carry an expiry timestamp on the order itself.
	GTT
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "gtc"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	case Day:
		return "day"
	case GTT:
		return "gtt"
	}
	return "unknown"
}

// OrderStatus is the lifecycle state. Stored as an atomic on the order so
// readers on other threads always see a coherent value.
type OrderStatus uint32

const (
	StatusNew OrderStatus = iota
	StatusPending
	StatusSubmitted
	StatusAccepted
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPending:
		return "pending"
	case StatusSubmitted:
		return "submitted"
	case StatusAccepted:
		return "accepted"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	}
	return "unknown"
}

// Order is the pool-resident order record. Plain data plus two atomics;
// everything else that needs strings (client ids, venue payloads) lives at
// the boundary, not in the pool. The trailing pad keeps adjacent pool slots
// from sharing a cache line with each other's atomics.
type Order struct {
	ID     uint64
	Symbol fixed.Symbol
	Side   fixed.Side
	Type   OrderType
	TIF    TimeInForce

	status atomic.Uint32
	filled atomic.Int64

	Qty       fixed.Qty
	Price     fixed.Px
	StopPrice fixed.Px
	HasPrice  bool
	HasStop   bool

	CreatedTs fixed.Ts
	ExpiryTs  fixed.Ts
	VenueID   uint64
	ParentID  uint64

	_ [16]byte
}

// Status returns the current lifecycle state.
func (o *Order) Status() OrderStatus { return OrderStatus(o.status.Load()) }

func (o *Order) setStatus(s OrderStatus) { o.status.Store(uint32(s)) }

// casStatus performs the lifecycle transition atomically.
func (o *Order) casStatus(from, to OrderStatus) bool {
	return o.status.CompareAndSwap(uint32(from), uint32(to))
}

// FilledQty returns the cumulative filled quantity.
func (o *Order) FilledQty() fixed.Qty { return fixed.Qty(o.filled.Load()) }

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() fixed.Qty { return o.Qty - o.FilledQty() }

func (o *Order) addFill(qty fixed.Qty) fixed.Qty {
	return fixed.Qty(o.filled.Add(int64(qty)))
}

// Reset clears the order for pool reuse. Field-by-field: the struct holds
// atomics and must never be copied wholesale.
func (o *Order) Reset() {
	o.ID = 0
	o.Symbol = 0
	o.Side = 0
	o.Type = 0
	o.TIF = 0
	o.status.Store(0)
	o.filled.Store(0)
	o.Qty = 0
	o.Price = 0
	o.StopPrice = 0
	o.HasPrice = false
	o.HasStop = false
	o.CreatedTs = 0
	o.ExpiryTs = 0
	o.VenueID = 0
	o.ParentID = 0
}

// Fill is one execution against an order.
type Fill struct {
	OrderID uint64
	Symbol  fixed.Symbol
	Side    fixed.Side
	Qty     fixed.Qty
	Price   fixed.Px
	Ts      fixed.Ts
	VenueID uint64
}
