// The engine daemon wires the substrate together: feed adapter -> per-symbol
// books -> WAL, and the execution fabric behind it. Everything venue-shaped
// stays outside; the built-in paper venue exists so the engine runs whole
// without a live connector.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/params"
	"github.com/quantech-io/tickcore/pkg/exec"
	"github.com/quantech-io/tickcore/pkg/feed"
	"github.com/quantech-io/tickcore/pkg/fixed"
	"github.com/quantech-io/tickcore/pkg/lob"
	"github.com/quantech-io/tickcore/pkg/metrics"
	"github.com/quantech-io/tickcore/pkg/storage"
	"github.com/quantech-io/tickcore/pkg/util"
	"github.com/quantech-io/tickcore/pkg/wal"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := params.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg = params.LoadFromEnv(cfg, "")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("engine starting",
		zap.String("wal_dir", cfg.Wal.Dir),
		zap.String("feed_url", cfg.Feed.URL),
		zap.String("cross_policy", cfg.Book.CrossPolicy),
	)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	store, err := storage.Open(cfg.Node.StorePath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	journal, err := wal.Open(cfg.Wal.Dir, cfg.Wal.SegmentSize, util.Component(logger, "wal"))
	if err != nil {
		logger.Fatal("open wal", zap.Error(err))
	}

	execLog := util.Component(logger, "exec")
	tracker := exec.NewTracker(cfg.Exec.ReconcileUpdates, cfg.Exec.ReconcileEvery, util.RealClock{}, execLog)
	lifecycle := exec.NewLifecycle(util.RealClock{})
	router, err := exec.NewRouter(
		exec.RouterConfig{
			PoolCapacity:  cfg.Exec.PoolCapacity,
			RingCapacity:  cfg.Exec.RingCapacity,
			SubmitTimeout: cfg.Exec.SubmitTimeout,
		},
		&paperVenue{},
		lifecycle,
		tracker,
		journal,
		execLog,
	)
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}
	router.Start()

	engine := &engine{
		policy:  cfg.CrossPolicy(),
		books:   make(map[fixed.Symbol]*lob.Book),
		journal: journal,
		tracker: tracker,
		met:     met,
		log:     util.Component(logger, "lob"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Telemetry listener. The only HTTP surface in the process.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Node.MetricsAddr, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener", zap.Error(err))
		}
	}()

	adapter := feed.NewAdapter(cfg.Feed.URL, engine.sink, met, util.Component(logger, "feed"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adapter.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("feed stopped", zap.Error(err))
		}
	}()

	// Expiry sweep, off the hot path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				n, err := router.ExpireSweep(now)
				if err != nil {
					logger.Error("expiry journaling failed", zap.Error(err))
				}
				if n > 0 {
					logger.Info("orders expired", zap.Int("count", n))
				}
			}
		}
	}()

	// Periodic WAL flush so durability lag is bounded even on a quiet feed.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(500 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if err := journal.Flush(); err != nil {
					logger.Error("wal flush", zap.Error(err))
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	srv.Shutdown(shutdownCtx)
	shutdownCancel()

	router.Close()
	if err := journal.Close(); err != nil {
		logger.Error("wal close", zap.Error(err))
	}
	engine.saveCheckpoints(store)
	wg.Wait()
	logger.Info("engine stopped")
}

// engine owns the books. The feed goroutine is the single writer; analytics
// readers take seqlock snapshots.
type engine struct {
	policy  lob.CrossPolicy
	books   map[fixed.Symbol]*lob.Book
	journal *wal.WAL
	tracker *exec.Tracker
	met     *metrics.Metrics
	log     *zap.Logger
}

func (e *engine) sink(u *lob.L2Update) error {
	book, ok := e.books[u.Symbol]
	if !ok {
		book = lob.NewBook(u.Symbol, e.policy, e.log)
		e.books[u.Symbol] = book
	}

	if err := book.Apply(u); err != nil {
		if _, crossed := err.(*lob.CrossedBookError); crossed {
			e.met.CrossedBooks.Inc()
		}
		return err
	}

	ev := &wal.TickEvent{Ts: u.Ts, Venue: "feed", Symbol: u.Symbol}
	if bid, _, ok := book.BestBid(); ok {
		ev.Bid, ev.HasBid = bid, true
	}
	if ask, _, ok := book.BestAsk(); ok {
		ev.Ask, ev.HasAsk = ask, true
	}
	if err := e.journal.Append(ev); err != nil {
		// Disk trouble: degrade to fail-fast rather than trading on an
		// unjournaled book.
		return feed.Fatal(err)
	}
	e.met.WalAppends.Inc()

	if ev.HasBid && ev.HasAsk {
		e.tracker.UpdateMarket(u.Symbol, ev.Bid, ev.Ask, u.Ts)
	}
	e.met.BookDepth.WithLabelValues(symbolLabel(u.Symbol), "bid").Set(float64(book.Bids().Depth()))
	e.met.BookDepth.WithLabelValues(symbolLabel(u.Symbol), "ask").Set(float64(book.Asks().Depth()))
	return nil
}

func (e *engine) saveCheckpoints(store *storage.Store) {
	for sym, book := range e.books {
		ck := &storage.Checkpoint{
			Symbol:    sym,
			Sequence:  book.Sequence(),
			StateHash: book.StateHash(),
			WalTs:     book.LastTs(),
		}
		if err := store.SaveCheckpoint(ck); err != nil {
			e.log.Error("save checkpoint", zap.Uint32("symbol", uint32(sym)), zap.Error(err))
		}
	}
	e.log.Info("checkpoints saved", zap.Int("books", len(e.books)))
}

func symbolLabel(s fixed.Symbol) string {
	return "sym-" + strconv.FormatUint(uint64(s), 10)
}

// paperVenue acknowledges orders locally: the stand-in adapter used until a
// real connector is attached. Venue ids come from a local counter.
type paperVenue struct {
	next atomic.Uint64
}

func (v *paperVenue) SendOrder(ctx context.Context, o *exec.Order) (uint64, error) {
	return v.next.Add(1), nil
}

func (v *paperVenue) CancelOrder(ctx context.Context, venueID uint64) error { return nil }

func (v *paperVenue) Status(ctx context.Context, venueID uint64) (exec.OrderStatus, bool, error) {
	return exec.StatusAccepted, true, nil
}
