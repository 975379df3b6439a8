package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/wal"
)

// ErrRingFull is returned when the submission ring rejects an order; the
// caller throttles or drops, the router counts the rejection either way.
var ErrRingFull = errors.New("exec: submission ring full")

// ErrUnknownOrder is returned for fills or cancels against an id the router
// does not track.
var ErrUnknownOrder = errors.New("exec: unknown order id")

// VenueAdapter is the outbound contract. Implementations adapt to concrete
// venues; the router never sees a venue protocol.
type VenueAdapter interface {
	SendOrder(ctx context.Context, o *Order) (venueID uint64, err error)
	CancelOrder(ctx context.Context, venueID uint64) error
	Status(ctx context.Context, venueID uint64) (OrderStatus, bool, error)
}

// OrderRequest is the submission boundary input.
type OrderRequest struct {
	Symbol    fixed.Symbol
	Side      fixed.Side
	Type      OrderType
	TIF       TimeInForce
	Qty       fixed.Qty
	Price     fixed.Px
	StopPrice fixed.Px
	HasPrice  bool
	HasStop   bool
	ExpiryTs  fixed.Ts
	ParentID  uint64
}

// RouterConfig sizes the fabric.
type RouterConfig struct {
	PoolCapacity  int
	RingCapacity  int
	SubmitTimeout time.Duration
}

// Router is the order path between strategy and venue: validate, acquire a
// pooled order, log to the WAL, hand off through the SPSC ring to the
// dispatch goroutine, which talks to the venue behind a circuit breaker.
// Orders return to the pool at terminal status.
type Router struct {
	pool      *Pool[Order]
	ring      *Ring[*Order]
	lifecycle *Lifecycle
	tracker   *Tracker
	venue     VenueAdapter
	breaker   *gobreaker.CircuitBreaker
	journal   *wal.WAL
	log       *zap.Logger

	orders sync.Map // order id -> *Order

	nextID        atomic.Uint64
	ringDrops     atomic.Uint64
	poolExhausted atomic.Uint64
	submitTimeout time.Duration

	nowFn func() fixed.Ts

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouter wires the fabric. journal may be nil (backtests); venue must not
// be.
func NewRouter(cfg RouterConfig, venue VenueAdapter, lifecycle *Lifecycle, tracker *Tracker, journal *wal.WAL, log *zap.Logger) (*Router, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = 4096
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 1024
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	ring, err := NewRing[*Order](cfg.RingCapacity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		pool:      NewPool[Order](cfg.PoolCapacity),
		ring:      ring,
		lifecycle: lifecycle,
		tracker:   tracker,
		venue:     venue,
		journal:   journal,
		log:       log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "venue",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		submitTimeout: cfg.SubmitTimeout,
		nowFn: func() fixed.Ts {
			return fixed.TsFromNanos(uint64(time.Now().UnixNano()))
		},
		ctx:    ctx,
		cancel: cancel,
	}
	return r, nil
}

// Start launches the venue dispatch goroutine.
func (r *Router) Start() {
	r.wg.Add(1)
	go r.dispatchLoop()
}

// Submit validates the request and enqueues the order. Returns the order id.
// Fails fast on pool exhaustion or a full ring — never blocks.
func (r *Router) Submit(req *OrderRequest) (uint64, error) {
	o, ok := r.pool.Acquire()
	if !ok {
		r.poolExhausted.Add(1)
		return 0, ErrPoolExhausted
	}
	o.Reset()
	o.ID = r.nextID.Add(1)
	o.Symbol = req.Symbol
	o.Side = req.Side
	o.Type = req.Type
	o.TIF = req.TIF
	o.Qty = req.Qty
	o.Price = req.Price
	o.StopPrice = req.StopPrice
	o.HasPrice = req.HasPrice
	o.HasStop = req.HasStop
	o.ExpiryTs = req.ExpiryTs
	o.ParentID = req.ParentID
	o.CreatedTs = r.nowFn()
	o.setStatus(StatusNew)

	if err := r.lifecycle.ValidateOrder(o); err != nil {
		r.pool.Release(o)
		return 0, err
	}
	if req.ParentID != 0 {
		if v, ok := r.orders.Load(req.ParentID); ok {
			if err := r.lifecycle.ValidateParentChild(v.(*Order), o); err != nil {
				r.pool.Release(o)
				return 0, err
			}
		}
	}
	if err := r.lifecycle.Transition(o, StatusPending); err != nil {
		r.pool.Release(o)
		return 0, err
	}

	// Journal before the hand-off: an order that cannot be written to the
	// WAL is never submitted. IoError here surfaces to the caller so the
	// process can degrade to read-only instead of trading unjournaled.
	if err := r.appendOrderEvent(o, uuid.NewString()); err != nil {
		r.pool.Release(o)
		return 0, err
	}
	r.orders.Store(o.ID, o)

	if !r.ring.Push(o) {
		r.ringDrops.Add(1)
		r.orders.Delete(o.ID)
		r.pool.Release(o)
		return 0, ErrRingFull
	}
	return o.ID, nil
}

func (r *Router) dispatchLoop() {
	defer r.wg.Done()
	for {
		o, ok := r.ring.Pop()
		if !ok {
			if r.ctx.Err() != nil {
				return
			}
			time.Sleep(10 * time.Microsecond)
			continue
		}
		r.dispatch(o)
	}
}

// dispatch performs the venue round-trip for one order.
func (r *Router) dispatch(o *Order) {
	if err := r.lifecycle.Transition(o, StatusSubmitted); err != nil {
		r.log.Warn("dispatch skipped", zap.Uint64("order_id", o.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.submitTimeout)
	defer cancel()

	result, err := r.breaker.Execute(func() (any, error) {
		return r.venue.SendOrder(ctx, o)
	})
	if err != nil {
		r.reject(o, err)
		return
	}

	o.VenueID = result.(uint64)
	if err := r.lifecycle.Transition(o, StatusAccepted); err != nil {
		r.log.Error("accept transition failed", zap.Uint64("order_id", o.ID), zap.Error(err))
		return
	}
	// The dispatch goroutine has no caller to surface to; a journaling
	// failure here is logged and the next Submit hits the same IoError.
	if err := r.appendOrderEvent(o, ""); err != nil {
		r.log.Error("wal append failed", zap.Uint64("order_id", o.ID), zap.Error(err))
	}
}

func (r *Router) reject(o *Order, cause error) {
	if err := r.lifecycle.Transition(o, StatusRejected); err != nil {
		r.log.Error("reject transition failed", zap.Uint64("order_id", o.ID), zap.Error(err))
		return
	}
	r.log.Warn("order rejected",
		zap.Uint64("order_id", o.ID),
		zap.Error(cause),
	)
	if err := r.appendOrderEvent(o, ""); err != nil {
		r.log.Error("wal append failed", zap.Uint64("order_id", o.ID), zap.Error(err))
	}
	r.retire(o)
}

// OnFill applies an execution report: order quantity, status transition,
// position update, WAL record. Terminal orders return to the pool.
func (r *Router) OnFill(f *Fill) error {
	v, ok := r.orders.Load(f.OrderID)
	if !ok {
		return ErrUnknownOrder
	}
	o := v.(*Order)

	total := o.addFill(f.Qty)
	target := StatusPartiallyFilled
	if total >= o.Qty {
		target = StatusFilled
	}
	if o.Status() != target {
		if err := r.lifecycle.Transition(o, target); err != nil {
			return err
		}
	}

	r.tracker.ApplyFill(f)
	err := r.appendFillEvent(o, f)

	// Retire even when journaling failed: the fill is already applied and
	// the order terminal, the caller only loses the audit record.
	if target == StatusFilled {
		r.retire(o)
	}
	return err
}

// Cancel cancels a live order at the venue and in the fabric.
func (r *Router) Cancel(orderID uint64) error {
	v, ok := r.orders.Load(orderID)
	if !ok {
		return ErrUnknownOrder
	}
	o := v.(*Order)
	if !r.lifecycle.CanCancel(o) {
		return &TransitionError{From: o.Status(), To: StatusCancelled}
	}

	if o.VenueID != 0 {
		ctx, cancel := context.WithTimeout(r.ctx, r.submitTimeout)
		defer cancel()
		if _, err := r.breaker.Execute(func() (any, error) {
			return nil, r.venue.CancelOrder(ctx, o.VenueID)
		}); err != nil {
			return err
		}
	}

	if err := r.lifecycle.Transition(o, StatusCancelled); err != nil {
		return err
	}
	err := r.appendOrderEvent(o, "")
	r.retire(o)
	return err
}

// ExpireSweep walks live orders and expires those past their time-in-force.
// Called periodically from a background task, never from the hot path. The
// sweep finishes even when journaling fails; the first append error is
// returned alongside the count.
func (r *Router) ExpireSweep(now time.Time) (int, error) {
	expired := 0
	var firstErr error
	r.orders.Range(func(_, v any) bool {
		o := v.(*Order)
		if r.lifecycle.ShouldExpire(o, now) {
			if err := r.lifecycle.ExpireOrder(o, now); err == nil {
				if err := r.appendOrderEvent(o, ""); err != nil && firstErr == nil {
					firstErr = err
				}
				r.retire(o)
				expired++
			}
		}
		return true
	})
	return expired, firstErr
}

// retire drops a terminal order from the index and the pool.
func (r *Router) retire(o *Order) {
	r.orders.Delete(o.ID)
	r.pool.Release(o)
}

// appendFillEvent journals an execution: quantity and price are the fill's,
// not the order's, so replay can rebuild positions fill by fill. An IoError
// is the caller's problem, never swallowed here.
func (r *Router) appendFillEvent(o *Order, f *Fill) error {
	if r.journal == nil {
		return nil
	}
	ev := &wal.OrderEvent{
		Ts:       f.Ts,
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      f.Qty,
		Price:    f.Price,
		HasPrice: true,
		Type:     uint8(o.Type),
		Status:   uint8(o.Status()),
	}
	if err := r.journal.Append(ev); err != nil {
		return fmt.Errorf("journal fill for order %d: %w", o.ID, err)
	}
	return nil
}

func (r *Router) appendOrderEvent(o *Order, clientID string) error {
	if r.journal == nil {
		return nil
	}
	ev := &wal.OrderEvent{
		Ts:       r.nowFn(),
		OrderID:  o.ID,
		ClientID: clientID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      o.Qty,
		Price:    o.Price,
		HasPrice: o.HasPrice,
		Type:     uint8(o.Type),
		Status:   uint8(o.Status()),
	}
	if err := r.journal.Append(ev); err != nil {
		return fmt.Errorf("journal order %d: %w", o.ID, err)
	}
	return nil
}

// Stats exposes drop/exhaustion counters for telemetry.
func (r *Router) Stats() (ringDrops, poolExhausted uint64, liveOrders int64) {
	return r.ringDrops.Load(), r.poolExhausted.Load(), r.pool.Live()
}

// Close drains the ring and stops the dispatch goroutine.
func (r *Router) Close() {
	for !r.ring.Empty() {
		time.Sleep(time.Millisecond)
	}
	r.cancel()
	r.wg.Wait()
}
