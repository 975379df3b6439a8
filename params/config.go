// Package params holds the process configuration. Defaults are sane for a
// single-node deployment; a YAML file and environment variables override
// them, environment winning. Book depth is a compile-time constant
// (lob.Depth) and deliberately not configurable here.
package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/quantech-io/tickcore/pkg/lob"
)

type Wal struct {
	Dir         string
	SegmentSize uint64
}

type Book struct {
	// CrossPolicy is "reject" or "auto_resolve".
	CrossPolicy string
	// ROIWidthTicks/TickSizeTicks describe the direct-indexed deep-book
	// variant (lob.ROIBook). They are loaded and kept here only: the engine
	// does not read them and always builds top-N books.
	ROIWidthTicks int64
	TickSizeTicks int64
}

type Exec struct {
	PoolCapacity     int
	RingCapacity     int
	SubmitTimeout    time.Duration
	ReconcileUpdates uint64
	ReconcileEvery   time.Duration
}

type Feed struct {
	URL string
}

type Node struct {
	StorePath   string
	MetricsAddr string
	LogFile     string
}

type Config struct {
	Wal  Wal
	Book Book
	Exec Exec
	Feed Feed
	Node Node
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Wal: Wal{
			Dir:         "data/wal",
			SegmentSize: 128 * 1024 * 1024,
		},
		Book: Book{
			CrossPolicy: "reject",
		},
		Exec: Exec{
			PoolCapacity:     4096,
			RingCapacity:     1024,
			SubmitTimeout:    5 * time.Second,
			ReconcileUpdates: 100,
			ReconcileEvery:   time.Second,
		},
		Feed: Feed{
			URL: "ws://127.0.0.1:9001/l2",
		},
		Node: Node{
			StorePath:   "data/store",
			MetricsAddr: ":9102",
			LogFile:     "data/engine.log",
		},
	}
}

// CrossPolicy maps the config string onto the book policy.
func (c Config) CrossPolicy() lob.CrossPolicy {
	if c.Book.CrossPolicy == "auto_resolve" {
		return lob.CrossAutoResolve
	}
	return lob.CrossReject
}

// Validate rejects configurations the fabric cannot run with.
func (c Config) Validate() error {
	if c.Exec.RingCapacity <= 0 || c.Exec.RingCapacity&(c.Exec.RingCapacity-1) != 0 {
		return fmt.Errorf("params: ring capacity %d is not a power of two", c.Exec.RingCapacity)
	}
	if c.Exec.PoolCapacity <= 0 {
		return fmt.Errorf("params: pool capacity must be positive")
	}
	if c.Wal.SegmentSize < 1024 {
		return fmt.Errorf("params: wal segment size %d too small", c.Wal.SegmentSize)
	}
	switch c.Book.CrossPolicy {
	case "reject", "auto_resolve":
	default:
		return fmt.Errorf("params: unknown cross policy %q", c.Book.CrossPolicy)
	}
	return nil
}

// LoadFile merges a YAML config file over the defaults. An empty path means
// defaults only.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("params: read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("params: unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads .env (if present) and applies environment overrides on
// top of cfg. Priority: ENV > .env > file > defaults.
func LoadFromEnv(cfg Config, envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if s := os.Getenv("WAL_DIR"); s != "" {
		cfg.Wal.Dir = s
	}
	if s := os.Getenv("WAL_SEGMENT_SIZE"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			cfg.Wal.SegmentSize = n
		}
	}
	if s := os.Getenv("CROSS_POLICY"); s != "" {
		cfg.Book.CrossPolicy = s
	}
	if s := os.Getenv("ROI_WIDTH_TICKS"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Book.ROIWidthTicks = n
		}
	}
	if s := os.Getenv("TICK_SIZE_TICKS"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Book.TickSizeTicks = n
		}
	}
	if s := os.Getenv("POOL_CAPACITY"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Exec.PoolCapacity = n
		}
	}
	if s := os.Getenv("RING_CAPACITY"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Exec.RingCapacity = n
		}
	}
	if s := os.Getenv("SUBMIT_TIMEOUT_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil {
			cfg.Exec.SubmitTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if s := os.Getenv("RECONCILE_UPDATES"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			cfg.Exec.ReconcileUpdates = n
		}
	}
	if s := os.Getenv("RECONCILE_EVERY_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil {
			cfg.Exec.ReconcileEvery = time.Duration(ms) * time.Millisecond
		}
	}
	if s := os.Getenv("FEED_URL"); s != "" {
		cfg.Feed.URL = s
	}
	if s := os.Getenv("STORE_PATH"); s != "" {
		cfg.Node.StorePath = s
	}
	if s := os.Getenv("METRICS_ADDR"); s != "" {
		cfg.Node.MetricsAddr = s
	}
	if s := os.Getenv("LOG_FILE"); s != "" {
		cfg.Node.LogFile = s
	}
	return cfg
}
