// Package fixed holds the scalar types shared by every subsystem: prices,
// quantities, timestamps and symbol handles. All of them are plain integers
// at a 1e-4 scale so that book updates, fills and PnL replay bit-identically
// on any machine. Floating point enters only at the boundaries (feed parse,
// display) and leaves immediately.
package fixed

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point denominator: 1 tick = 1e-4 of a quote unit.
const Scale = 10_000

// Px is a price in ticks. Negative prices are representable (spreads,
// adjustments) even though venue prices are positive.
type Px int64

// Qty is a quantity in 1e-4 lots. For positions the sign carries direction
// (positive long, negative short); order side is always an explicit Side.
type Qty int64

// Ts is nanoseconds since the UNIX epoch. Monotonic per producer.
type Ts uint64

// Symbol is an opaque instrument handle, unique within a process.
// The instrument registry hands these out.
type Symbol uint32

// Side of an order or book level.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// PxFromTicks wraps a raw tick count.
func PxFromTicks(t int64) Px { return Px(t) }

// PxFromFloat converts a float price to ticks, rounding to the nearest tick.
// Out-of-range values saturate at the int64 bounds; callers at the ingestion
// boundary must treat a saturated result as a rejected input.
func PxFromFloat(v float64) Px { return Px(satRound(v * Scale)) }

// PxFromDecimal parses an exchange decimal string exactly. This is the
// preferred ingestion path: no float round-trip, so "99.5" is always
// 995000 ticks.
func PxFromDecimal(s string) (Px, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	t := d.Mul(decimal.NewFromInt(Scale))
	if !t.IsInteger() {
		t = t.Round(0)
	}
	if !t.BigInt().IsInt64() {
		return 0, fmt.Errorf("price %q overflows tick range", s)
	}
	return Px(t.IntPart()), nil
}

// QtyFromFloat converts a float quantity to 1e-4 lots, rounding to nearest.
func QtyFromFloat(v float64) Qty { return Qty(satRound(v * Scale)) }

// QtyFromDecimal parses a decimal quantity string exactly.
func QtyFromDecimal(s string) (Qty, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse qty %q: %w", s, err)
	}
	t := d.Mul(decimal.NewFromInt(Scale))
	if !t.IsInteger() {
		t = t.Round(0)
	}
	if !t.BigInt().IsInt64() {
		return 0, fmt.Errorf("qty %q overflows range", s)
	}
	return Qty(t.IntPart()), nil
}

// TsFromNanos wraps a nanosecond timestamp.
func TsFromNanos(n uint64) Ts { return Ts(n) }

// Nanos returns the raw nanosecond count.
func (t Ts) Nanos() uint64 { return uint64(t) }

// Ticks returns the raw tick count.
func (p Px) Ticks() int64 { return int64(p) }

// Float converts to a float price. Display only.
func (p Px) Float() float64 { return float64(p) / Scale }

// Add returns p + q in ticks.
func (p Px) Add(q Px) Px { return p + q }

// Sub returns p - q in ticks.
func (p Px) Sub(q Px) Px { return p - q }

// Ticks returns the raw scaled count.
func (q Qty) Ticks() int64 { return int64(q) }

// Float converts to a float quantity. Display only.
func (q Qty) Float() float64 { return float64(q) / Scale }

// Abs returns the magnitude of q.
func (q Qty) Abs() Qty {
	if q < 0 {
		return -q
	}
	return q
}

// Notional computes px*qty collapsed back to the 1e-4 scale. Inputs are
// bounded by ingestion validation so the intermediate product stays below
// 2^62 and cannot overflow.
func Notional(p Px, q Qty) int64 {
	return int64(p) * int64(q) / Scale
}

func (p Px) String() string { return formatScaled(int64(p)) }

func (q Qty) String() string { return formatScaled(int64(q)) }

func formatScaled(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, v/Scale, v%Scale)
}

func satRound(v float64) int64 {
	r := math.Round(v)
	switch {
	case math.IsNaN(r):
		return 0
	case r >= math.MaxInt64:
		return math.MaxInt64
	case r <= math.MinInt64:
		return math.MinInt64
	}
	return int64(r)
}
