// Package store is the adapter to the tick-published SWMR record store.
//
// The engine keeps one fixed-size-slot data file per stream plus a single
// metadata file, the snapshot, that the writer republishes atomically once
// per tick. The snapshot is the only coordination channel between the
// writer and readers: a reader session decodes it once at open and holds
// its extents immutable for the session's lifetime. No locks are taken on
// the read path.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrReadOnly       = errors.New("session is read-only")
	ErrUnknownStream  = errors.New("stream not in snapshot")
	ErrSlotOutOfRange = errors.New("slot beyond extent")
)

// openHandles counts live sessions and stream handles across the
// process, for leak accounting in long-running tests.
var openHandles atomic.Int64

// OpenHandles reports the number of currently open sessions and stream
// handles.
func OpenHandles() int64 {
	return openHandles.Load()
}

// SWMRConfig carries the fixed parameters a session is opened with.
type SWMRConfig struct {
	// TickLen and MaxLag parameterize the engine's publication cadence
	// and the staleness bound a reader tolerates. The adapter passes
	// them through opaquely.
	TickLen int
	MaxLag  int

	// Writer selects the writer role. The verification harness always
	// opens with Writer=false.
	Writer bool

	// MetaPagesReserved is the page count the snapshot file is padded
	// to on publish.
	MetaPagesReserved int

	// MetaFilePath is the snapshot location, relative to the store
	// directory unless absolute.
	MetaFilePath string

	// PageCacheBytes bounds the per-session page cache.
	PageCacheBytes int64
}

func (c SWMRConfig) Validate() error {
	if c.TickLen <= 0 {
		return fmt.Errorf("tick length must be > 0, got %d", c.TickLen)
	}
	if c.MaxLag <= 0 {
		return fmt.Errorf("max lag must be > 0, got %d", c.MaxLag)
	}
	if c.MetaPagesReserved < 1 {
		return fmt.Errorf("reserved metadata pages must be >= 1, got %d", c.MetaPagesReserved)
	}
	if c.MetaFilePath == "" {
		return fmt.Errorf("metadata file path is required")
	}
	return nil
}

func (c SWMRConfig) metaPath(dir string) string {
	if filepath.IsAbs(c.MetaFilePath) {
		return c.MetaFilePath
	}
	return filepath.Join(dir, c.MetaFilePath)
}

// Session is a transient handle to the store. Reader sessions observe
// exactly the snapshot published at open time. A session owns every
// stream handle opened through it and releases them all on Close.
// Sessions are not safe for concurrent use.
type Session struct {
	dir    string
	cfg    SWMRConfig
	snap   *snapshot
	cache  *pageCache
	logger *zap.Logger

	// Open stream handles, for release on Close.
	streams map[*StreamHandle]struct{}

	// Writer-role state.
	pending map[string]uint64
	wfiles  map[string]*os.File

	closed bool
}

// Open opens the store at dir with the given fixed configuration. In
// the reader role a missing or corrupt snapshot is an open failure; in
// the writer role a missing snapshot starts the store empty.
func Open(dir string, cfg SWMRConfig, logger *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		dir:     dir,
		cfg:     cfg,
		cache:   newPageCache(cfg.PageCacheBytes),
		logger:  logger,
		streams: make(map[*StreamHandle]struct{}),
	}

	snap, err := readSnapshot(cfg.metaPath(dir))
	switch {
	case err == nil:
		s.snap = snap
	case cfg.Writer && errors.Is(err, os.ErrNotExist):
		s.snap = &snapshot{Extents: make(map[string]uint64)}
	default:
		return nil, fmt.Errorf("opening store at %s: %w", dir, err)
	}

	if cfg.Writer {
		s.pending = make(map[string]uint64, len(s.snap.Extents))
		for name, ext := range s.snap.Extents {
			s.pending[name] = ext
		}
		s.wfiles = make(map[string]*os.File)
		if err := os.MkdirAll(filepath.Join(dir, "streams"), 0755); err != nil {
			return nil, fmt.Errorf("creating stream dir: %w", err)
		}
	}

	openHandles.Add(1)
	logger.Debug("store opened",
		zap.String("dir", dir),
		zap.Bool("writer", cfg.Writer),
		zap.Uint64("tick", s.snap.Tick),
		zap.Int("streams", len(s.snap.Extents)),
	)
	return s, nil
}

// Tick reports the consistency tick of the snapshot this session
// observes.
func (s *Session) Tick() uint64 {
	return s.snap.Tick
}

// OpenStream opens one stream for reading at this session's snapshot.
// The returned handle must be closed; unclosed handles are released
// when the session closes.
func (s *Session) OpenStream(name string) (*StreamHandle, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	extent, ok := s.snap.Extents[name]
	if !ok {
		return nil, fmt.Errorf("opening stream %q: %w", name, ErrUnknownStream)
	}

	// A missing data file reads as zero-initialized storage: published
	// slots the writer has not backed yet carry the fill sentinel.
	f, err := os.Open(streamPath(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening stream %q: %w", name, err)
	}

	h := &StreamHandle{sess: s, name: name, extent: extent, f: f}
	s.streams[h] = struct{}{}
	openHandles.Add(1)
	return h, nil
}

// Close releases the session and every descriptor opened through it.
// Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for h := range s.streams {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.streams = nil

	for name, f := range s.wfiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing data file for %q: %w", name, err)
		}
	}
	s.wfiles = nil

	openHandles.Add(-1)
	s.logger.Debug("store closed", zap.String("dir", s.dir))
	return firstErr
}

// StreamHandle reads records out of one stream at the extent frozen by
// the owning session's snapshot.
type StreamHandle struct {
	sess   *Session
	name   string
	extent uint64
	f      *os.File
	buf    []byte
	closed bool
}

// Name returns the stream name.
func (h *StreamHandle) Name() string {
	return h.name
}

// Extent is the committed slot count published for this stream. It
// never changes for the lifetime of the handle.
func (h *StreamHandle) Extent() uint64 {
	return h.extent
}

// ReadAt reads the record at slot into rec using the given layout.
func (h *StreamHandle) ReadAt(slot uint64, rt RecordType, rec *Record) error {
	if h.closed {
		return ErrSessionClosed
	}
	if err := rt.Validate(); err != nil {
		return fmt.Errorf("reading %q: %w", h.name, err)
	}
	if slot >= h.extent {
		return fmt.Errorf("reading %q slot %d with extent %d: %w", h.name, slot, h.extent, ErrSlotOutOfRange)
	}

	if len(h.buf) != rt.Size {
		h.buf = make([]byte, rt.Size)
	}
	off := int64(slot) * int64(rt.Size)
	if err := h.sess.cache.read(h.f, h.name, off, h.buf); err != nil {
		return fmt.Errorf("reading %q slot %d: %w", h.name, slot, err)
	}
	return rt.Decode(h.buf, rec)
}

// Close releases the handle. Close is idempotent.
func (h *StreamHandle) Close() error {
	if h.closed {
		return nil
	}
	delete(h.sess.streams, h)
	return h.close()
}

func (h *StreamHandle) close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	openHandles.Add(-1)
	if h.f != nil {
		if err := h.f.Close(); err != nil {
			return fmt.Errorf("closing stream %q: %w", h.name, err)
		}
	}
	return nil
}
