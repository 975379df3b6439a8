package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

func TestParseUpdateDecimalStrings(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"ts_ns":1000,"symbol_id":1,"side":"bid","level":0,"price":"99.5","qty":"100"}`))
	require.NoError(t, err)
	assert.Equal(t, fixed.TsFromNanos(1000), u.Ts)
	assert.Equal(t, fixed.Symbol(1), u.Symbol)
	assert.Equal(t, fixed.Bid, u.Side)
	assert.Equal(t, 0, u.Level)
	assert.Equal(t, fixed.Px(995000), u.Price)
	assert.Equal(t, fixed.Qty(1000000), u.Qty)
}

func TestParseUpdateRawTicks(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"ts_ns":2000,"symbol_id":3,"side":"ask","level":2,"price_ticks":1005000,"qty_ticks":1500000,"orders":4}`))
	require.NoError(t, err)
	assert.Equal(t, fixed.Ask, u.Side)
	assert.Equal(t, fixed.Px(1005000), u.Price)
	assert.Equal(t, fixed.Qty(1500000), u.Qty)
	assert.Equal(t, uint32(4), u.Orders)
}

func TestParseUpdateZeroQtyRemoves(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"ts_ns":1,"symbol_id":1,"side":"bid","level":0,"price":"99.5","qty_ticks":0}`))
	require.NoError(t, err)
	assert.Zero(t, u.Qty)
}

func TestParseUpdateRejects(t *testing.T) {
	cases := []string{
		`not json`,
		`{"ts_ns":1,"symbol_id":1,"side":"middle","level":0,"price":"1","qty":"1"}`,
		`{"ts_ns":1,"symbol_id":1,"side":"bid","level":0,"qty":"1"}`,
		`{"ts_ns":1,"symbol_id":1,"side":"bid","level":0,"price":"1"}`,
		`{"ts_ns":1,"symbol_id":1,"side":"bid","level":0,"price":"abc","qty":"1"}`,
		`{"ts_ns":1,"symbol_id":1,"side":"bid","level":0,"price":"1","qty":"-5"}`,
	}
	for _, c := range cases {
		_, err := ParseUpdate([]byte(c))
		assert.Error(t, err, c)
	}
}

func TestFatalWrapping(t *testing.T) {
	base := errors.New("disk full")
	err := Fatal(base)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsFatal(base))
}
