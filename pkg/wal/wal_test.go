package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

func sysEvent(ts uint64, msg string) *SystemEvent {
	return &SystemEvent{Ts: fixed.TsFromNanos(ts), Event: SystemInfo, Message: msg}
}

func tickEvent(ts uint64, sym uint32) *TickEvent {
	return &TickEvent{
		Ts:     fixed.TsFromNanos(ts),
		Venue:  "test",
		Symbol: fixed.Symbol(sym),
		Bid:    fixed.PxFromFloat(100.0),
		Ask:    fixed.PxFromFloat(101.0),
		HasBid: true,
		HasAsk: true,
	}
}

func orderEvent(ts uint64, id uint64) *OrderEvent {
	return &OrderEvent{
		Ts:       fixed.TsFromNanos(ts),
		OrderID:  id,
		ClientID: fmt.Sprintf("cl-%d", id),
		Symbol:   1,
		Side:     fixed.Bid,
		Qty:      fixed.QtyFromFloat(1),
		Price:    fixed.PxFromFloat(100),
		HasPrice: true,
	}
}

func drain(t *testing.T, it *Iterator) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := it.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestAppendAndStream(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(sysEvent(uint64(i), fmt.Sprintf("event %d", i))))
	}
	require.NoError(t, w.Close())

	it, err := w.Stream(nil)
	require.NoError(t, err)
	events := drain(t, it)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, fixed.TsFromNanos(uint64(i)), ev.Timestamp())
		assert.Equal(t, fmt.Sprintf("event %d", i), ev.(*SystemEvent).Message)
	}
}

// Deterministic replay: a mixed 10k-event log reads back element-wise equal,
// twice.
func TestDeterministicReplay10k(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 256*1024, nil)
	require.NoError(t, err)

	var written []Event
	for i := 0; i < 10_000; i++ {
		ts := uint64(i) * 1000
		var ev Event
		switch {
		case i%2 == 0:
			ev = tickEvent(ts, uint32(i%8))
		case i%4 == 1:
			ev = orderEvent(ts, uint64(i))
		default:
			ev = sysEvent(ts, fmt.Sprintf("sys %d", i))
		}
		require.NoError(t, w.Append(ev))
		written = append(written, ev)
	}
	require.NoError(t, w.Close())

	for pass := 0; pass < 2; pass++ {
		it, err := w.Stream(nil)
		require.NoError(t, err)
		got := drain(t, it)
		require.Len(t, got, len(written))
		for i := range written {
			assert.Equal(t, written[i], got[i], "event %d pass %d", i, pass)
		}
	}
}

func TestStreamFromTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)

	for i := 0; i <= 20; i++ {
		require.NoError(t, w.Append(sysEvent(uint64(i)*100, "e")))
	}
	require.NoError(t, w.Close())

	from := fixed.TsFromNanos(1000)
	it, err := w.Stream(&from)
	require.NoError(t, err)
	events := drain(t, it)

	require.Len(t, events, 11)
	assert.Equal(t, fixed.TsFromNanos(1000), events[0].Timestamp())
	assert.Equal(t, fixed.TsFromNanos(2000), events[len(events)-1].Timestamp())
}

func TestCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, w.Append(sysEvent(uint64(i), "e")))
	}
	// Flush but never close: the header entry count stays zero, as after a
	// crash.
	require.NoError(t, w.Flush())

	w2, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)
	it, err := w2.Stream(nil)
	require.NoError(t, err)
	events := drain(t, it)
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, fixed.TsFromNanos(uint64(i)), ev.Timestamp())
	}
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, w.Append(tickEvent(uint64(i), 1)))
	}
	require.NoError(t, w.Close())

	st, err := w.Stats()
	require.NoError(t, err)
	assert.Greater(t, st.SegmentCount, uint64(1))
	assert.Equal(t, uint64(100), st.TotalEntries)

	it, err := w.Stream(nil)
	require.NoError(t, err)
	assert.Len(t, drain(t, it), 100)
}

func TestRotateExactlyAtCapacity(t *testing.T) {
	dir := t.TempDir()
	payload, err := EncodeEvent(sysEvent(1, "x"))
	require.NoError(t, err)
	record := uint64(8 + len(payload))

	// Room for exactly two records.
	w, err := Open(dir, headerSize+2*record, nil)
	require.NoError(t, err)

	require.NoError(t, w.Append(sysEvent(1, "x")))
	require.NoError(t, w.Append(sysEvent(2, "x")))
	segments, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 1)

	// The next append must rotate before writing.
	require.NoError(t, w.Append(sysEvent(3, "x")))
	segments, err = listSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.NoError(t, w.Close())
}

func TestCounterRecoveredFromFilenames(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024, nil)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, w.Append(tickEvent(uint64(i), 1)))
	}
	require.NoError(t, w.Close())

	before, err := listSegments(dir)
	require.NoError(t, err)

	w2, err := Open(dir, 1024, nil)
	require.NoError(t, err)
	require.NoError(t, w2.Append(sysEvent(1000, "after reopen")))
	require.NoError(t, w2.Close())

	after, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)
	// New segment sorts strictly after every pre-existing one.
	assert.Greater(t, after[len(after)-1], before[len(before)-1])
}

func TestCorruptionLocality(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(sysEvent(uint64(i), fmt.Sprintf("seg1-%d", i))))
	}
	require.NoError(t, w.Close())
	// Force a second segment.
	w2, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)
	require.NoError(t, w2.Append(sysEvent(100, "seg2-0")))
	require.NoError(t, w2.Close())

	segments, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	// Flip one byte in the third record's payload of the first segment.
	data, err := os.ReadFile(segments[0])
	require.NoError(t, err)
	offset := headerSize
	for i := 0; i < 2; i++ {
		length := int(uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24)
		offset += 8 + length
	}
	data[offset+8+4] ^= 0xFF
	require.NoError(t, os.WriteFile(segments[0], data, 0o644))

	it, err := w.Stream(nil)
	require.NoError(t, err)

	// First two records are intact.
	for i := 0; i < 2; i++ {
		ev, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("seg1-%d", i), ev.(*SystemEvent).Message)
	}

	// Third surfaces the CRC mismatch.
	_, err = it.Next()
	var crcErr *CRCMismatchError
	require.ErrorAs(t, err, &crcErr)

	// Remaining records of segment one are quarantined; segment two reads.
	ev, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "seg2-0", ev.(*SystemEvent).Message)

	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
}

func TestTruncatedTailTerminatesSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024*1024, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Append(sysEvent(uint64(i), "e")))
	}
	require.NoError(t, w.Close())

	segments, err := listSegments(dir)
	require.NoError(t, err)
	data, err := os.ReadFile(segments[0])
	require.NoError(t, err)
	// Drop the last few bytes, simulating a torn write.
	require.NoError(t, os.WriteFile(segments[0], data[:len(data)-3], 0o644))

	it, err := w.Stream(nil)
	require.NoError(t, err)
	_, err = it.Next()
	require.NoError(t, err)
	_, err = it.Next()
	require.NoError(t, err)
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrShortRead)
	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
}

func TestInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "0000000001.wal")
	require.NoError(t, os.WriteFile(bad, make([]byte, 32), 0o644))

	w, err := Open(dir, 1024, nil)
	require.NoError(t, err)
	it, err := w.Stream(nil)
	require.NoError(t, err)
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestCompact(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1024, nil)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, w.Append(tickEvent(uint64(i)*100, 1)))
	}
	require.NoError(t, w.Close())

	before, err := listSegments(dir)
	require.NoError(t, err)
	require.Greater(t, len(before), 2)

	removed, err := w.Compact(fixed.TsFromNanos(100 * 100))
	require.NoError(t, err)
	assert.Greater(t, removed, 0)

	// Events below the cutoff may survive inside a partially-newer segment,
	// but the newest event must always be present.
	it, err := w.Stream(nil)
	require.NoError(t, err)
	events := drain(t, it)
	require.NotEmpty(t, events)
	assert.Equal(t, fixed.TsFromNanos(199*100), events[len(events)-1].Timestamp())

	// Idempotent: a second pass removes nothing more.
	again, err := w.Compact(fixed.TsFromNanos(100 * 100))
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestCodecRoundTrip(t *testing.T) {
	events := []Event{
		tickEvent(42, 7),
		&TickEvent{Ts: 43, Venue: "nse", Symbol: 9, Last: fixed.PxFromFloat(99.99), HasLast: true},
		orderEvent(44, 1001),
		&OrderEvent{Ts: 45, OrderID: 1002, Symbol: 3, Side: fixed.Ask, Qty: fixed.QtyFromFloat(5)},
		sysEvent(46, "checkpoint"),
	}
	for _, ev := range events {
		payload, err := EncodeEvent(ev)
		require.NoError(t, err)
		back, err := DecodeEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, ev, back)
	}
}

func TestCodecRejectsUnknown(t *testing.T) {
	_, err := DecodeEvent([]byte{codecVersion, 0xEE, 0, 0})
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	_, err = DecodeEvent([]byte{99, byte(KindTick)})
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	_, err = DecodeEvent([]byte{codecVersion})
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}
