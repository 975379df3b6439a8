package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Segment file layout:
//
//	[magic u32 LE][version u32 LE][entry count u64 LE]   16-byte header
//	[length u32 LE][crc32 u32 LE][payload]*              records
//
// The entry count is rewritten on graceful close and is best-effort only:
// readers iterate until a short read, never trusting the header count.

const (
	segmentMagic   uint32 = 0x5351574C
	segmentVersion uint32 = 1
	headerSize            = 16

	// maxRecordSize bounds a single payload; a length prefix beyond this
	// is corruption, not a real record.
	maxRecordSize = 64 << 20

	writerBufSize = 64 * 1024
)

var (
	// ErrInvalidMagic marks a file that is not a WAL segment.
	ErrInvalidMagic = errors.New("wal: invalid segment magic")
	// ErrUnsupportedVersion marks a segment written by a newer format.
	ErrUnsupportedVersion = errors.New("wal: unsupported segment version")
	// ErrShortRead marks a record truncated by a crash; it terminates the
	// segment, earlier records remain valid.
	ErrShortRead = errors.New("wal: short read, truncated record")
)

// CRCMismatchError reports payload corruption in a single record.
type CRCMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("wal: crc mismatch: expected %08x, got %08x", e.Expected, e.Actual)
}

// segment is the active write-side segment.
type segment struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	size    uint64
	maxSize uint64
	entries uint64
}

// createSegment creates a fresh segment with a zero entry count header.
func createSegment(path string, maxSize uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, writerBufSize)

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], segmentVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], 0)
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write segment header: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush segment header: %w", err)
	}

	return &segment{path: path, f: f, w: w, size: headerSize, maxSize: maxSize}, nil
}

// isFull reports whether appending a payload of n bytes would exceed the
// segment budget.
func (s *segment) isFull(n int) bool {
	return s.size+8+uint64(n) > s.maxSize
}

// append writes one record. Buffered; durability comes from flush.
func (s *segment) append(payload []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], crc32.ChecksumIEEE(payload))
	if _, err := s.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("append record header: %w", err)
	}
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("append record payload: %w", err)
	}
	s.size += 8 + uint64(len(payload))
	s.entries++
	return nil
}

// flush drains the buffer and fsyncs.
func (s *segment) flush() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush segment: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync segment: %w", err)
	}
	return nil
}

// close flushes, rewrites the header entry count and closes the file.
func (s *segment) close() error {
	if err := s.flush(); err != nil {
		s.f.Close()
		return err
	}
	var cnt [8]byte
	binary.LittleEndian.PutUint64(cnt[:], s.entries)
	if _, err := s.f.WriteAt(cnt[:], 8); err != nil {
		s.f.Close()
		return fmt.Errorf("rewrite entry count: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("sync on close: %w", err)
	}
	return s.f.Close()
}

// segmentReader iterates the records of one segment.
type segmentReader struct {
	f       *os.File
	r       *bufio.Reader
	entries uint64
}

// openSegment validates the header and positions the reader at the first
// record.
func openSegment(path string) (*segmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	r := bufio.NewReaderSize(f, writerBufSize)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read segment header %s: %w", path, err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != segmentMagic {
		f.Close()
		return nil, fmt.Errorf("%w: %08x in %s", ErrInvalidMagic, magic, path)
	}
	if ver := binary.LittleEndian.Uint32(hdr[4:8]); ver != segmentVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %d in %s", ErrUnsupportedVersion, ver, path)
	}

	return &segmentReader{
		f:       f,
		r:       r,
		entries: binary.LittleEndian.Uint64(hdr[8:16]),
	}, nil
}

// readNext returns the next payload. io.EOF signals a clean end of segment;
// ErrShortRead a truncated tail; CRCMismatchError a corrupt record.
func (s *segmentReader) readNext() ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrShortRead
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	expected := binary.LittleEndian.Uint32(hdr[4:8])
	if length > maxRecordSize {
		return nil, ErrShortRead
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return nil, ErrShortRead
	}
	if actual := crc32.ChecksumIEEE(payload); actual != expected {
		return nil, &CRCMismatchError{Expected: expected, Actual: actual}
	}
	return payload, nil
}

func (s *segmentReader) close() error { return s.f.Close() }
