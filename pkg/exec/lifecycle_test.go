package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/util"
)

func testOrder() *Order {
	o := &Order{
		ID:       1,
		Symbol:   1,
		Side:     fixed.Bid,
		Type:     Limit,
		TIF:      Day,
		Qty:      fixed.QtyFromFloat(1),
		Price:    fixed.PxFromFloat(100),
		HasPrice: true,
	}
	o.setStatus(StatusNew)
	return o
}

func TestValidTransitions(t *testing.T) {
	l := NewLifecycle(nil)
	o := testOrder()

	assert.NoError(t, l.ValidateTransition(o.Status(), StatusPending))

	err := l.ValidateTransition(o.Status(), StatusFilled)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusNew, te.From)
	assert.Equal(t, StatusFilled, te.To)
}

func TestFullLifecyclePath(t *testing.T) {
	l := NewLifecycle(nil)
	o := testOrder()

	for _, next := range []OrderStatus{StatusPending, StatusSubmitted, StatusAccepted, StatusPartiallyFilled, StatusFilled} {
		require.NoError(t, l.Transition(o, next))
	}
	assert.True(t, o.Status().IsTerminal())

	// Terminal states have no outgoing edges.
	assert.Error(t, l.Transition(o, StatusCancelled))
	assert.Empty(t, l.ValidTransitions(StatusFilled))
}

// Every path from New reaches a terminal state and no edge leaves the graph.
func TestLifecycleSoundness(t *testing.T) {
	l := NewLifecycle(nil)

	reachable := map[OrderStatus]bool{StatusNew: true}
	frontier := []OrderStatus{StatusNew}
	for len(frontier) > 0 {
		s := frontier[0]
		frontier = frontier[1:]
		for _, next := range l.ValidTransitions(s) {
			if !reachable[next] {
				reachable[next] = true
				frontier = append(frontier, next)
			}
		}
	}

	// Each reachable non-terminal state can reach a terminal one.
	for s := range reachable {
		if s.IsTerminal() {
			continue
		}
		terminalReachable := false
		seen := map[OrderStatus]bool{s: true}
		queue := []OrderStatus{s}
		for len(queue) > 0 && !terminalReachable {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range l.ValidTransitions(cur) {
				if next.IsTerminal() {
					terminalReachable = true
					break
				}
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		assert.True(t, terminalReachable, "state %s cannot reach a terminal state", s)
	}
}

func TestValidateOrder(t *testing.T) {
	clock := &util.FakeClock{T: time.Unix(1_000_000, 0)}
	l := NewLifecycle(clock)

	o := testOrder()
	assert.NoError(t, l.ValidateOrder(o))

	o.Qty = 0
	assert.ErrorIs(t, l.ValidateOrder(o), ErrQtyNotPositive)
	o.Qty = fixed.QtyFromFloat(1)

	o.HasPrice = false
	assert.ErrorIs(t, l.ValidateOrder(o), ErrMissingPrice)
	o.HasPrice = true

	o.Type = StopLimit
	assert.ErrorIs(t, l.ValidateOrder(o), ErrMissingStop)
	o.HasStop = true
	assert.NoError(t, l.ValidateOrder(o))

	o.Type = Limit
	o.TIF = GTT
	o.ExpiryTs = fixed.TsFromNanos(uint64(clock.T.UnixNano()) - 1)
	assert.ErrorIs(t, l.ValidateOrder(o), ErrExpiryInPast)
	o.ExpiryTs = fixed.TsFromNanos(uint64(clock.T.Add(time.Hour).UnixNano()))
	assert.NoError(t, l.ValidateOrder(o))
}

func TestCanCancelAndAmend(t *testing.T) {
	l := NewLifecycle(nil)
	o := testOrder()

	assert.True(t, l.CanCancel(o))
	assert.True(t, l.CanAmend(o))

	require.NoError(t, l.Transition(o, StatusPending))
	require.NoError(t, l.Transition(o, StatusSubmitted))
	require.NoError(t, l.Transition(o, StatusAccepted))
	require.NoError(t, l.Transition(o, StatusPartiallyFilled))
	assert.True(t, l.CanCancel(o))
	assert.False(t, l.CanAmend(o))

	require.NoError(t, l.Transition(o, StatusFilled))
	assert.False(t, l.CanCancel(o))
}

func TestShouldExpireGTT(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	l := NewLifecycle(&util.FakeClock{T: now})

	o := testOrder()
	o.TIF = GTT
	o.ExpiryTs = fixed.TsFromNanos(uint64(now.Add(time.Minute).UnixNano()))
	require.NoError(t, l.Transition(o, StatusPending))
	require.NoError(t, l.Transition(o, StatusSubmitted))
	require.NoError(t, l.Transition(o, StatusAccepted))

	assert.False(t, l.ShouldExpire(o, now))
	assert.ErrorIs(t, l.ExpireOrder(o, now), ErrOrderNotExpired)

	later := now.Add(2 * time.Minute)
	assert.True(t, l.ShouldExpire(o, later))
	require.NoError(t, l.ExpireOrder(o, later))
	assert.Equal(t, StatusExpired, o.Status())

	// Terminal orders never expire twice.
	assert.False(t, l.ShouldExpire(o, later))
}

func TestShouldExpireDay(t *testing.T) {
	l := NewLifecycle(nil)
	o := testOrder()
	o.TIF = Day
	created := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	o.CreatedTs = fixed.TsFromNanos(uint64(created.UnixNano()))
	require.NoError(t, l.Transition(o, StatusPending))

	assert.False(t, l.ShouldExpire(o, created.Add(2*time.Hour)))
	assert.True(t, l.ShouldExpire(o, created.Add(24*time.Hour)))
}

func TestParentChildValidation(t *testing.T) {
	l := NewLifecycle(nil)

	parent := testOrder()
	parent.ID = 10
	parent.Type = TWAP
	parent.Qty = fixed.QtyFromFloat(100)

	child := testOrder()
	child.ID = 11
	child.ParentID = 10
	child.Qty = fixed.QtyFromFloat(30)

	assert.NoError(t, l.ValidateParentChild(parent, child))

	child.ParentID = 99
	assert.ErrorIs(t, l.ValidateParentChild(parent, child), ErrOrphanChild)
	child.ParentID = 10

	parent.Type = Limit
	assert.ErrorIs(t, l.ValidateParentChild(parent, child), ErrNotAlgoParent)
	parent.Type = VWAP

	child.Qty = fixed.QtyFromFloat(200)
	assert.ErrorIs(t, l.ValidateParentChild(parent, child), ErrChildQtyTooBig)
}
