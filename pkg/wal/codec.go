package wal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// Payload layout: [codec version u8][kind u8][fields...], all integers
// little-endian, strings u16-length-prefixed. The codec is versioned
// separately from the segment format so payloads can evolve without a
// segment rewrite; unknown versions and kinds are rejected, never skipped.

const codecVersion = 1

// ErrUnsupportedEvent is returned for unknown payload kinds or versions.
var ErrUnsupportedEvent = errors.New("wal: unsupported event payload")

const (
	tickHasBid = 1 << iota
	tickHasAsk
	tickHasLast
	tickHasVolume
)

// EncodeEvent serializes an event into a fresh payload buffer.
func EncodeEvent(e Event) ([]byte, error) {
	buf := make([]byte, 2, 64)
	buf[0] = codecVersion
	buf[1] = byte(e.Kind())

	switch ev := e.(type) {
	case *TickEvent:
		buf = putU64(buf, uint64(ev.Ts))
		buf = putString(buf, ev.Venue)
		buf = putU32(buf, uint32(ev.Symbol))
		var flags byte
		if ev.HasBid {
			flags |= tickHasBid
		}
		if ev.HasAsk {
			flags |= tickHasAsk
		}
		if ev.HasLast {
			flags |= tickHasLast
		}
		if ev.HasVolume {
			flags |= tickHasVolume
		}
		buf = append(buf, flags)
		buf = putU64(buf, uint64(ev.Bid))
		buf = putU64(buf, uint64(ev.Ask))
		buf = putU64(buf, uint64(ev.Last))
		buf = putU64(buf, uint64(ev.Volume))
	case *OrderEvent:
		buf = putU64(buf, uint64(ev.Ts))
		buf = putU64(buf, ev.OrderID)
		buf = putString(buf, ev.ClientID)
		buf = putU32(buf, uint32(ev.Symbol))
		buf = append(buf, byte(ev.Side))
		buf = putU64(buf, uint64(ev.Qty))
		if ev.HasPrice {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = putU64(buf, uint64(ev.Price))
		buf = append(buf, ev.Type, ev.Status)
	case *SystemEvent:
		buf = putU64(buf, uint64(ev.Ts))
		buf = append(buf, byte(ev.Event))
		buf = putString(buf, ev.Message)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedEvent, e.Kind())
	}
	return buf, nil
}

// DecodeEvent parses a payload produced by EncodeEvent.
func DecodeEvent(payload []byte) (Event, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: payload too short", ErrUnsupportedEvent)
	}
	if payload[0] != codecVersion {
		return nil, fmt.Errorf("%w: codec version %d", ErrUnsupportedEvent, payload[0])
	}
	r := reader{buf: payload[2:]}

	switch EventKind(payload[1]) {
	case KindTick:
		ev := &TickEvent{}
		ev.Ts = fixed.Ts(r.u64())
		ev.Venue = r.str()
		ev.Symbol = fixed.Symbol(r.u32())
		flags := r.u8()
		ev.Bid = fixed.Px(r.u64())
		ev.Ask = fixed.Px(r.u64())
		ev.Last = fixed.Px(r.u64())
		ev.Volume = fixed.Qty(r.u64())
		ev.HasBid = flags&tickHasBid != 0
		ev.HasAsk = flags&tickHasAsk != 0
		ev.HasLast = flags&tickHasLast != 0
		ev.HasVolume = flags&tickHasVolume != 0
		if r.failed {
			return nil, fmt.Errorf("%w: truncated tick payload", ErrUnsupportedEvent)
		}
		return ev, nil
	case KindOrder:
		ev := &OrderEvent{}
		ev.Ts = fixed.Ts(r.u64())
		ev.OrderID = r.u64()
		ev.ClientID = r.str()
		ev.Symbol = fixed.Symbol(r.u32())
		ev.Side = fixed.Side(r.u8())
		ev.Qty = fixed.Qty(r.u64())
		ev.HasPrice = r.u8() == 1
		ev.Price = fixed.Px(r.u64())
		ev.Type = r.u8()
		ev.Status = r.u8()
		if r.failed {
			return nil, fmt.Errorf("%w: truncated order payload", ErrUnsupportedEvent)
		}
		return ev, nil
	case KindSystem:
		ev := &SystemEvent{}
		ev.Ts = fixed.Ts(r.u64())
		ev.Event = SystemEventKind(r.u8())
		ev.Message = r.str()
		if r.failed {
			return nil, fmt.Errorf("%w: truncated system payload", ErrUnsupportedEvent)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedEvent, payload[1])
}

func putU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func putU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

func putString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

// reader is a cursor that latches failure instead of returning an error per
// field; DecodeEvent checks once at the end.
type reader struct {
	buf    []byte
	failed bool
}

func (r *reader) take(n int) []byte {
	if r.failed || len(r.buf) < n {
		r.failed = true
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(b))
	s := r.take(n)
	if s == nil {
		return ""
	}
	return string(s)
}
