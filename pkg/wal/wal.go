package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// DefaultSegmentSize is 128 MiB.
const DefaultSegmentSize uint64 = 128 * 1024 * 1024

// WAL is a single-writer segmented log. Concurrent readers operate through
// Stream, which only touches files, never writer state.
type WAL struct {
	mu sync.Mutex

	dir         string
	segmentSize uint64
	current     *segment
	counter     uint64
	log         *zap.Logger
}

// Open prepares a WAL in dir, creating the directory if needed. The segment
// counter is recovered by scanning filenames: the numeric stems are the sole
// source of truth, no side counter file exists. No segment file is opened
// until the first append.
func Open(dir string, segmentSize uint64, log *zap.Logger) (*WAL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	var counter uint64
	for _, p := range segments {
		if n, ok := segmentNumber(p); ok && n > counter {
			counter = n
		}
	}

	log.Info("wal opened",
		zap.String("dir", dir),
		zap.Uint64("segment_size", segmentSize),
		zap.Int("segments", len(segments)),
		zap.Uint64("counter", counter),
	)

	return &WAL{dir: dir, segmentSize: segmentSize, counter: counter, log: log}, nil
}

// Append serializes the event and writes one record, rotating first when the
// current segment would overflow. Appends are buffered; call Flush for
// durability.
func (w *WAL) Append(e Event) error {
	payload, err := EncodeEvent(e)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil || w.current.isFull(len(payload)) {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	return w.current.append(payload)
}

// Flush drains buffers and fsyncs the active segment.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	return w.current.flush()
}

// Close flushes and closes the active segment, rewriting its header entry
// count.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.close()
	w.current = nil
	return err
}

func (w *WAL) rotate() error {
	if w.current != nil {
		if err := w.current.close(); err != nil {
			return fmt.Errorf("close segment on rotate: %w", err)
		}
	}
	w.counter++
	path := w.segmentPath(w.counter)
	seg, err := createSegment(path, w.segmentSize)
	if err != nil {
		return err
	}
	w.current = seg
	w.log.Debug("rotated wal segment", zap.String("path", path))
	return nil
}

func (w *WAL) segmentPath(counter uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%010d.wal", counter))
}

// Stream returns an iterator over all events at or after fromTs (nil means
// everything), in filename-then-offset order.
func (w *WAL) Stream(fromTs *fixed.Ts) (*Iterator, error) {
	segments, err := listSegments(w.dir)
	if err != nil {
		return nil, err
	}
	return &Iterator{segments: segments, fromTs: fromTs}, nil
}

// Compact removes the longest prefix of segments whose every event is older
// than beforeTs. Deletion never skips a segment: the first segment with a
// newer event (or unreadable tail) stops the sweep, so the surviving log is
// always contiguous. Returns the number of segments removed.
func (w *WAL) Compact(beforeTs fixed.Ts) (int, error) {
	w.mu.Lock()
	var activePath string
	if w.current != nil {
		activePath = w.current.path
	}
	w.mu.Unlock()

	segments, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range segments {
		if path == activePath {
			break
		}
		old, err := segmentOlderThan(path, beforeTs)
		if err != nil || !old {
			break
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove segment %s: %w", path, err)
		}
		w.log.Debug("compacted wal segment", zap.String("path", path))
		removed++
	}
	w.log.Info("wal compacted", zap.Int("removed", removed), zap.Uint64("before_ts", beforeTs.Nanos()))
	return removed, nil
}

// Stats summarizes the on-disk log.
type Stats struct {
	SegmentCount uint64
	TotalBytes   uint64
	TotalEntries uint64
}

// Stats scans segment files. Entry counts come from headers and are
// best-effort: a crashed segment reports zero until inspected.
func (w *WAL) Stats() (Stats, error) {
	segments, err := listSegments(w.dir)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.SegmentCount = uint64(len(segments))
	for _, path := range segments {
		fi, err := os.Stat(path)
		if err != nil {
			return st, fmt.Errorf("stat segment: %w", err)
		}
		st.TotalBytes += uint64(fi.Size())
		if r, err := openSegment(path); err == nil {
			st.TotalEntries += r.entries
			r.close()
		}
	}
	return st, nil
}

// segmentOlderThan reads the whole segment and reports whether every event
// precedes beforeTs. A corrupt or truncated record makes the segment
// non-compactable.
func segmentOlderThan(path string, beforeTs fixed.Ts) (bool, error) {
	r, err := openSegment(path)
	if err != nil {
		return false, err
	}
	defer r.close()

	var maxTs fixed.Ts
	for {
		payload, err := r.readNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, err
		}
		ev, err := DecodeEvent(payload)
		if err != nil {
			return false, err
		}
		if ev.Timestamp() > maxTs {
			maxTs = ev.Timestamp()
		}
	}
	return maxTs < beforeTs, nil
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list wal dir: %w", err)
	}
	var segments []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wal") {
			segments = append(segments, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func segmentNumber(path string) (uint64, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), ".wal")
	n, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Iterator streams events across segments in order. A corrupt record is
// surfaced once as an error; the following Next call resumes with the next
// segment, so corruption quarantines the rest of one segment only.
type Iterator struct {
	segments []string
	index    int
	reader   *segmentReader
	fromTs   *fixed.Ts
}

// Next returns the next event. io.EOF signals the end of the log. Any other
// error refers to the current segment; calling Next again skips past it.
func (it *Iterator) Next() (Event, error) {
	for {
		if it.reader == nil {
			if it.index >= len(it.segments) {
				return nil, io.EOF
			}
			r, err := openSegment(it.segments[it.index])
			it.index++
			if err != nil {
				return nil, err
			}
			it.reader = r
		}

		payload, err := it.reader.readNext()
		if err == io.EOF {
			it.reader.close()
			it.reader = nil
			continue
		}
		if err != nil {
			// Quarantine the rest of this segment.
			it.reader.close()
			it.reader = nil
			return nil, err
		}

		ev, err := DecodeEvent(payload)
		if err != nil {
			it.reader.close()
			it.reader = nil
			return nil, err
		}
		if it.fromTs != nil && ev.Timestamp() < *it.fromTs {
			continue
		}
		return ev, nil
	}
}

// Close releases the open segment, if any.
func (it *Iterator) Close() error {
	if it.reader != nil {
		err := it.reader.close()
		it.reader = nil
		return err
	}
	return nil
}
