// Package instrument manages instrument definitions and hands out the
// process-local Symbol handles the rest of the system keys on. Interning is
// not on the hot path: symbols are resolved once at subscription time.
package instrument

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// Type classifies an instrument.
type Type uint8

const (
	Equity Type = iota
	Index
	Future
	Option
	Currency
	Commodity
	Crypto
)

func (t Type) String() string {
	switch t {
	case Equity:
		return "equity"
	case Index:
		return "index"
	case Future:
		return "future"
	case Option:
		return "option"
	case Currency:
		return "currency"
	case Commodity:
		return "commodity"
	case Crypto:
		return "crypto"
	}
	return "unknown"
}

// Instrument is one tradable definition.
type Instrument struct {
	Symbol        fixed.Symbol `json:"symbol"`
	TradingSymbol string       `json:"trading_symbol"`
	Venue         string       `json:"venue"`
	Type          Type         `json:"type"`
	TickSize      fixed.Px     `json:"tick_size"`
	LotSize       fixed.Qty    `json:"lot_size"`
	Tradable      bool         `json:"tradable"`
}

// ErrUnknownInstrument is returned by lookups that miss.
var ErrUnknownInstrument = errors.New("instrument: unknown instrument")

// Registry interns instruments and assigns stable Symbol ids. Ids are dense,
// starting at 1; 0 is never a valid symbol.
type Registry struct {
	mu     sync.RWMutex
	byID   map[fixed.Symbol]*Instrument
	byName map[string]*Instrument
	nextID uint32
	log    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byID:   make(map[fixed.Symbol]*Instrument),
		byName: make(map[string]*Instrument),
		log:    log,
	}
}

// Intern registers the definition and assigns a Symbol. Re-interning the
// same (venue, trading symbol) updates the definition in place and keeps the
// existing id, so handles held elsewhere stay valid.
func (r *Registry) Intern(def Instrument) (*Instrument, error) {
	if def.TradingSymbol == "" {
		return nil, fmt.Errorf("instrument: empty trading symbol")
	}
	key := def.Venue + ":" + def.TradingSymbol

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[key]; ok {
		def.Symbol = existing.Symbol
		*existing = def
		return existing, nil
	}

	r.nextID++
	def.Symbol = fixed.Symbol(r.nextID)
	ins := &def
	r.byID[ins.Symbol] = ins
	r.byName[key] = ins

	r.log.Debug("instrument interned",
		zap.String("trading_symbol", ins.TradingSymbol),
		zap.String("venue", ins.Venue),
		zap.Uint32("symbol", uint32(ins.Symbol)),
	)
	return ins, nil
}

// Lookup resolves a Symbol handle.
func (r *Registry) Lookup(sym fixed.Symbol) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.byID[sym]
	if !ok {
		return nil, ErrUnknownInstrument
	}
	return ins, nil
}

// Resolve finds an instrument by venue and trading symbol.
func (r *Registry) Resolve(venue, tradingSymbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.byName[venue+":"+tradingSymbol]
	if !ok {
		return nil, ErrUnknownInstrument
	}
	return ins, nil
}

// All returns a copy of every definition.
func (r *Registry) All() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instrument, 0, len(r.byID))
	for _, ins := range r.byID {
		out = append(out, *ins)
	}
	return out
}

// Len returns the number of interned instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
