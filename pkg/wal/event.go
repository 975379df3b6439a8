// Package wal implements the segmented write-ahead log: an append-only,
// CRC-checked record of every state-changing event. Replaying the WAL through
// fresh books and trackers reconstructs identical state; segment filenames
// are the only durable ordering metadata.
package wal

import (
	"github.com/quantech-io/tickcore/pkg/fixed"
)

// EventKind tags the payload union on disk.
type EventKind uint8

const (
	KindTick   EventKind = 1
	KindOrder  EventKind = 2
	KindSystem EventKind = 3
)

// Event is anything the WAL can persist.
type Event interface {
	Kind() EventKind
	Timestamp() fixed.Ts
}

// TickEvent is a market-data observation. Optional fields use presence
// flags; a zero price is a valid price.
type TickEvent struct {
	Ts     fixed.Ts
	Venue  string
	Symbol fixed.Symbol

	Bid, Ask, Last fixed.Px
	Volume         fixed.Qty

	HasBid, HasAsk, HasLast, HasVolume bool
}

func (e *TickEvent) Kind() EventKind     { return KindTick }
func (e *TickEvent) Timestamp() fixed.Ts { return e.Ts }

// OrderEvent records an order lifecycle change.
type OrderEvent struct {
	Ts       fixed.Ts
	OrderID  uint64
	ClientID string
	Symbol   fixed.Symbol
	Side     fixed.Side
	Qty      fixed.Qty
	Price    fixed.Px
	HasPrice bool
	Type     uint8
	Status   uint8
}

func (e *OrderEvent) Kind() EventKind     { return KindOrder }
func (e *OrderEvent) Timestamp() fixed.Ts { return e.Ts }

// SystemEventKind classifies system events.
type SystemEventKind uint8

const (
	SystemInfo SystemEventKind = iota
	SystemWarning
	SystemError
	SystemCheckpoint
)

// SystemEvent is an operational marker (startup, shutdown, checkpoints).
type SystemEvent struct {
	Ts      fixed.Ts
	Event   SystemEventKind
	Message string
}

func (e *SystemEvent) Kind() EventKind     { return KindSystem }
func (e *SystemEvent) Timestamp() fixed.Ts { return e.Ts }
