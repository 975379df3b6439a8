// Package feed is the boundary between venue adapters and the core: a
// websocket client consuming the normalized L2 contract and handing updates
// to a sink. The core never parses venue protocols; whatever emits these
// messages has already normalized them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/lob"
	"github.com/quantech-io/tickcore/pkg/metrics"
)

// fatalError marks a sink failure that must stop the feed (WAL IoError).
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps an error so the feed loop fails fast instead of skipping.
func Fatal(err error) error { return &fatalError{err: err} }

// IsFatal reports whether err was wrapped by Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Sink receives parsed updates. Per-update errors are counted and skipped;
// an error wrapped with Fatal stops the adapter.
type Sink func(*lob.L2Update) error

// Adapter reads one websocket stream and drives the sink. Single goroutine:
// the book's single-writer discipline is the adapter's read loop.
type Adapter struct {
	url  string
	sink Sink
	log  *zap.Logger
	met  *metrics.Metrics

	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewAdapter creates an adapter for url. met may be nil.
func NewAdapter(url string, sink Sink, met *metrics.Metrics, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		url:        url,
		sink:       sink,
		log:        log,
		met:        met,
		dialer:     websocket.DefaultDialer,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 15 * time.Second,
	}
}

// Run connects and consumes until ctx is cancelled or a fatal sink error
// occurs. Connection drops reconnect with capped exponential backoff.
func (a *Adapter) Run(ctx context.Context) error {
	backoff := a.minBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := a.dialer.DialContext(ctx, a.url, nil)
		if err != nil {
			a.log.Warn("feed dial failed", zap.String("url", a.url), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > a.maxBackoff {
				backoff = a.maxBackoff
			}
			continue
		}

		a.log.Info("feed connected", zap.String("url", a.url))
		backoff = a.minBackoff

		err = a.readLoop(ctx, conn)
		conn.Close()
		if err != nil {
			if IsFatal(err) || errors.Is(err, context.Canceled) {
				return err
			}
			a.log.Warn("feed disconnected", zap.Error(err))
		}
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		update, err := ParseUpdate(data)
		if err != nil {
			a.countError()
			a.log.Debug("malformed feed message", zap.Error(err))
			continue
		}

		if err := a.sink(update); err != nil {
			if IsFatal(err) {
				a.log.Error("fatal sink error, stopping feed", zap.Error(err))
				return err
			}
			a.countError()
			continue
		}
		if a.met != nil {
			a.met.FeedUpdates.Inc()
		}
	}
}

func (a *Adapter) countError() {
	if a.met != nil {
		a.met.FeedErrors.Inc()
	}
}
