// Package storage persists the small amount of state that lives outside the
// WAL: instrument definitions and replay checkpoints. The WAL remains the
// source of truth for events; a checkpoint only records "book for symbol S
// hashed H at sequence N" so replays can be verified and fast-forwarded.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/instrument"
)

// Checkpoint pins a verified book state to a WAL position.
type Checkpoint struct {
	Symbol    fixed.Symbol
	Sequence  uint64
	StateHash uint64
	// WalSegment/WalTs locate the last event folded into the hash.
	WalSegment uint64
	WalTs      fixed.Ts
}

// Store is a pebble-backed key-value store.
//
// keys: i:<4-byte symbol> instrument, ck:<4-byte symbol> checkpoint
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func kInstrument(sym fixed.Symbol) []byte {
	k := []byte("i:")
	return binary.BigEndian.AppendUint32(k, uint32(sym))
}

func kCheckpoint(sym fixed.Symbol) []byte {
	k := []byte("ck:")
	return binary.BigEndian.AppendUint32(k, uint32(sym))
}

// SaveInstrument persists one definition.
func (s *Store) SaveInstrument(ins *instrument.Instrument) error {
	data, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("marshal instrument: %w", err)
	}
	if err := s.db.Set(kInstrument(ins.Symbol), data, pebble.Sync); err != nil {
		return fmt.Errorf("save instrument: %w", err)
	}
	return nil
}

// LoadInstrument returns nil when the symbol is unknown.
func (s *Store) LoadInstrument(sym fixed.Symbol) (*instrument.Instrument, error) {
	val, closer, err := s.db.Get(kInstrument(sym))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	defer closer.Close()

	var ins instrument.Instrument
	if err := json.Unmarshal(val, &ins); err != nil {
		return nil, fmt.Errorf("unmarshal instrument: %w", err)
	}
	return &ins, nil
}

// LoadInstruments returns every stored definition.
func (s *Store) LoadInstruments() ([]instrument.Instrument, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("i:"),
		UpperBound: []byte("i;"), // ';' is ':'+1
	})
	if err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}
	defer iter.Close()

	var out []instrument.Instrument
	for iter.First(); iter.Valid(); iter.Next() {
		var ins instrument.Instrument
		if err := json.Unmarshal(iter.Value(), &ins); err != nil {
			return nil, fmt.Errorf("unmarshal instrument: %w", err)
		}
		out = append(out, ins)
	}
	return out, iter.Error()
}

// SaveCheckpoint records a verified book state. Fixed-width LE encoding so
// checkpoints round-trip byte-exactly.
func (s *Store) SaveCheckpoint(ck *Checkpoint) error {
	var buf [36]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ck.Symbol))
	binary.LittleEndian.PutUint64(buf[4:12], ck.Sequence)
	binary.LittleEndian.PutUint64(buf[12:20], ck.StateHash)
	binary.LittleEndian.PutUint64(buf[20:28], ck.WalSegment)
	binary.LittleEndian.PutUint64(buf[28:36], ck.WalTs.Nanos())
	if err := s.db.Set(kCheckpoint(ck.Symbol), buf[:], pebble.Sync); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns nil when no checkpoint exists for the symbol.
func (s *Store) LoadCheckpoint(sym fixed.Symbol) (*Checkpoint, error) {
	val, closer, err := s.db.Get(kCheckpoint(sym))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	defer closer.Close()

	if len(val) != 36 {
		return nil, fmt.Errorf("checkpoint for symbol %d: bad length %d", sym, len(val))
	}
	return &Checkpoint{
		Symbol:     fixed.Symbol(binary.LittleEndian.Uint32(val[0:4])),
		Sequence:   binary.LittleEndian.Uint64(val[4:12]),
		StateHash:  binary.LittleEndian.Uint64(val[12:20]),
		WalSegment: binary.LittleEndian.Uint64(val[20:28]),
		WalTs:      fixed.Ts(binary.LittleEndian.Uint64(val[28:36])),
	}, nil
}
