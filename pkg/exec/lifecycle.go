package exec

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantech-io/tickcore/pkg/util"
)

// Validation failures. All are ValidationError-kind: surfaced to the caller,
// no state mutated.
var (
	ErrQtyNotPositive  = errors.New("exec: order quantity must be positive")
	ErrMissingPrice    = errors.New("exec: limit order requires a price")
	ErrMissingStop     = errors.New("exec: stop order requires a stop price")
	ErrExpiryInPast    = errors.New("exec: GTT expiry must be in the future")
	ErrNotAlgoParent   = errors.New("exec: parent must be an algorithmic order")
	ErrOrphanChild     = errors.New("exec: child does not reference parent")
	ErrChildQtyTooBig  = errors.New("exec: child quantity exceeds parent remaining")
	ErrOrderNotExpired = errors.New("exec: order is not due to expire")
)

// TransitionError reports a lifecycle violation. Non-fatal: the order stays
// in its prior state.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("exec: invalid transition %s -> %s", e.From, e.To)
}

// Lifecycle validates order construction and state transitions against the
// directed graph:
//
//	New -> Pending -> Submitted -> Accepted -> {PartiallyFilled, Filled,
//	Cancelled, Expired}; PartiallyFilled -> {Filled, Cancelled, Expired};
//	Cancelled/Rejected reachable from every pre-accepted state.
//
// Terminal states have no outgoing edges.
type Lifecycle struct {
	valid map[OrderStatus][]OrderStatus
	clock util.Clock
}

// NewLifecycle builds the transition table. A nil clock means wall time.
func NewLifecycle(clock util.Clock) *Lifecycle {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Lifecycle{
		clock: clock,
		valid: map[OrderStatus][]OrderStatus{
			StatusNew:             {StatusPending, StatusCancelled, StatusRejected},
			StatusPending:         {StatusSubmitted, StatusCancelled, StatusRejected},
			StatusSubmitted:       {StatusAccepted, StatusCancelled, StatusRejected},
			StatusAccepted:        {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired},
			StatusPartiallyFilled: {StatusFilled, StatusCancelled, StatusExpired},
			StatusFilled:          {},
			StatusCancelled:       {},
			StatusRejected:        {},
			StatusExpired:         {},
		},
	}
}

// ValidateOrder checks construction invariants before an order enters the
// fabric.
func (l *Lifecycle) ValidateOrder(o *Order) error {
	if o.Qty <= 0 {
		return ErrQtyNotPositive
	}
	switch o.Type {
	case Limit, StopLimit:
		if !o.HasPrice {
			return ErrMissingPrice
		}
	}
	switch o.Type {
	case Stop, StopLimit:
		if !o.HasStop {
			return ErrMissingStop
		}
	}
	if o.TIF == GTT {
		now := uint64(l.clock.Now().UnixNano())
		if o.ExpiryTs.Nanos() <= now {
			return ErrExpiryInPast
		}
	}
	return nil
}

// ValidateTransition checks a (current, next) pair against the graph.
func (l *Lifecycle) ValidateTransition(from, to OrderStatus) error {
	for _, next := range l.valid[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// Transition validates and applies a state change atomically. Fails if the
// transition is invalid or the order moved concurrently.
func (l *Lifecycle) Transition(o *Order, to OrderStatus) error {
	from := o.Status()
	if err := l.ValidateTransition(from, to); err != nil {
		return err
	}
	if !o.casStatus(from, to) {
		return &TransitionError{From: o.Status(), To: to}
	}
	return nil
}

// CanCancel reports whether the order can still be cancelled.
func (l *Lifecycle) CanCancel(o *Order) bool {
	return !o.Status().IsTerminal()
}

// CanAmend reports whether price/qty amendments are still allowed.
func (l *Lifecycle) CanAmend(o *Order) bool {
	switch o.Status() {
	case StatusNew, StatusPending, StatusSubmitted, StatusAccepted:
		return true
	}
	return false
}

// ShouldExpire reports whether a non-terminal order has outlived its
// time-in-force: Day orders at the trading-day boundary, GTT orders at their
// expiry timestamp.
func (l *Lifecycle) ShouldExpire(o *Order, now time.Time) bool {
	if o.Status().IsTerminal() {
		return false
	}
	switch o.TIF {
	case Day:
		created := time.Unix(0, int64(o.CreatedTs.Nanos())).UTC()
		return created.Truncate(24 * time.Hour).Before(now.UTC().Truncate(24 * time.Hour))
	case GTT:
		return o.ExpiryTs.Nanos() <= uint64(now.UnixNano())
	}
	return false
}

// ExpireOrder validates and performs the transition to Expired.
func (l *Lifecycle) ExpireOrder(o *Order, now time.Time) error {
	if !l.ShouldExpire(o, now) {
		return ErrOrderNotExpired
	}
	return l.Transition(o, StatusExpired)
}

// ValidateParentChild enforces algo-order slicing rules: the child must
// reference the parent, the parent must be an algo type, and the child
// cannot exceed the parent's remaining quantity.
func (l *Lifecycle) ValidateParentChild(parent, child *Order) error {
	if child.ParentID != parent.ID {
		return ErrOrphanChild
	}
	if !parent.Type.IsAlgo() {
		return ErrNotAlgoParent
	}
	if child.Qty > parent.Remaining() {
		return ErrChildQtyTooBig
	}
	return nil
}

// ValidTransitions returns the allowed next states. Mostly for diagnostics.
func (l *Lifecycle) ValidTransitions(from OrderStatus) []OrderStatus {
	return l.valid[from]
}
