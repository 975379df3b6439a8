package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

func TestROIBookWindow(t *testing.T) {
	// Center 100.0, width 1.0, tick 0.1: window covers 99.0..101.0.
	b := NewROIBook(1, fixed.PxFromFloat(100), fixed.PxFromFloat(1), fixed.PxFromFloat(0.1))

	require.NoError(t, b.Set(1, fixed.Bid, fixed.PxFromFloat(99.5), fixed.QtyFromFloat(100), 1))
	require.NoError(t, b.Set(2, fixed.Ask, fixed.PxFromFloat(100.5), fixed.QtyFromFloat(200), 1))

	assert.Equal(t, fixed.QtyFromFloat(100), b.QtyAt(fixed.Bid, fixed.PxFromFloat(99.5)))

	bid, _, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, fixed.PxFromFloat(99.5), bid)

	micro, ok := b.Microprice()
	require.True(t, ok)
	assert.Equal(t, fixed.Px(998333), micro)
}

func TestROIBookOverflow(t *testing.T) {
	b := NewROIBook(1, fixed.PxFromFloat(100), fixed.PxFromFloat(1), fixed.PxFromFloat(0.1))

	// 95.0 is outside [99.0, 101.0]; it lands in the overflow map.
	require.NoError(t, b.Set(1, fixed.Bid, fixed.PxFromFloat(95.0), fixed.QtyFromFloat(50), 1))
	assert.Equal(t, fixed.QtyFromFloat(50), b.QtyAt(fixed.Bid, fixed.PxFromFloat(95.0)))

	bid, qty, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, fixed.PxFromFloat(95.0), bid)
	assert.Equal(t, fixed.QtyFromFloat(50), qty)

	// An in-window bid beats the overflow level.
	require.NoError(t, b.Set(2, fixed.Bid, fixed.PxFromFloat(99.5), fixed.QtyFromFloat(10), 1))
	bid, _, ok = b.BestBid()
	require.True(t, ok)
	assert.Equal(t, fixed.PxFromFloat(99.5), bid)

	// Removal.
	require.NoError(t, b.Set(3, fixed.Bid, fixed.PxFromFloat(95.0), 0, 0))
	assert.Equal(t, fixed.Qty(0), b.QtyAt(fixed.Bid, fixed.PxFromFloat(95.0)))
}

func TestROIBookRejectsCross(t *testing.T) {
	b := NewROIBook(1, fixed.PxFromFloat(100), fixed.PxFromFloat(1), fixed.PxFromFloat(0.1))

	require.NoError(t, b.Set(1, fixed.Ask, fixed.PxFromFloat(100.0), fixed.QtyFromFloat(100), 1))
	err := b.Set(2, fixed.Bid, fixed.PxFromFloat(100.5), fixed.QtyFromFloat(100), 1)
	var crossed *CrossedBookError
	require.ErrorAs(t, err, &crossed)

	// The offending level was undone.
	assert.Equal(t, fixed.Qty(0), b.QtyAt(fixed.Bid, fixed.PxFromFloat(100.5)))
}

func TestROIBookImbalance(t *testing.T) {
	b := NewROIBook(1, fixed.PxFromFloat(100), fixed.PxFromFloat(1), fixed.PxFromFloat(0.1))
	require.NoError(t, b.Set(1, fixed.Bid, fixed.PxFromFloat(99.5), fixed.QtyFromFloat(300), 1))
	require.NoError(t, b.Set(2, fixed.Ask, fixed.PxFromFloat(100.5), fixed.QtyFromFloat(100), 1))

	imb, ok := b.Imbalance()
	require.True(t, ok)
	assert.InDelta(t, 0.5, imb, 1e-9)
}
