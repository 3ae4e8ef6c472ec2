package store

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// The writer-role surface below exists for the single writer process and
// for tests that need to manufacture committed, fill, and corrupt slot
// states. The verification harness never opens a writer session.

// EnsureStream registers a stream with the writer at extent zero if it
// is not already tracked. The stream becomes visible to readers at the
// next PublishSnapshot.
func (s *Session) EnsureStream(name string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.cfg.Writer {
		return ErrReadOnly
	}
	if _, ok := s.pending[name]; !ok {
		s.pending[name] = 0
	}
	return nil
}

// Append commits the next record of a stream: the record id is the slot
// index, per the committed-record invariant. It returns the slot
// written. The new extent is not visible to readers until
// PublishSnapshot.
func (s *Session) Append(name string, rt RecordType, payload []byte) (uint64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	slot := s.pending[name]
	return s.AppendRecord(name, rt, Record{ID: slot, Payload: payload})
}

// AppendRecord writes rec verbatim into the next slot of a stream,
// without forcing the id/slot invariant. Tests use it to plant
// deliberately corrupt records.
func (s *Session) AppendRecord(name string, rt RecordType, rec Record) (uint64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	if !s.cfg.Writer {
		return 0, ErrReadOnly
	}
	if err := rt.Validate(); err != nil {
		return 0, fmt.Errorf("appending to %q: %w", name, err)
	}

	f, err := s.writeFile(name)
	if err != nil {
		return 0, err
	}

	slot := s.pending[name]
	buf := make([]byte, rt.Size)
	if err := rt.Encode(rec, buf); err != nil {
		return 0, fmt.Errorf("appending to %q: %w", name, err)
	}
	if _, err := f.WriteAt(buf, int64(slot)*int64(rt.Size)); err != nil {
		return 0, fmt.Errorf("appending to %q slot %d: %w", name, slot, err)
	}

	s.pending[name] = slot + 1
	return slot, nil
}

// Reserve grows a stream's pending extent by n slots without writing
// their storage. After the next PublishSnapshot, readers observe the
// grown extent and see the fill sentinel in the reserved slots — the
// benign race the harness must tolerate.
func (s *Session) Reserve(name string, n uint64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.cfg.Writer {
		return ErrReadOnly
	}
	s.pending[name] += n
	return nil
}

// PublishSnapshot advances the tick and atomically republishes the
// metadata file with every pending extent. Data files are synced first
// so a published slot is either committed on disk or still all-zero.
func (s *Session) PublishSnapshot() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.cfg.Writer {
		return ErrReadOnly
	}

	for name, f := range s.wfiles {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("syncing data file for %q: %w", name, err)
		}
	}

	next := &snapshot{
		Tick:    s.snap.Tick + 1,
		Extents: make(map[string]uint64, len(s.pending)),
	}
	for name, ext := range s.pending {
		next.Extents[name] = ext
	}

	if err := writeSnapshot(s.cfg.metaPath(s.dir), next, s.cfg.MetaPagesReserved); err != nil {
		return err
	}
	s.snap = next

	s.logger.Debug("snapshot published",
		zap.Uint64("tick", next.Tick),
		zap.Int("streams", len(next.Extents)),
	)
	return nil
}

func (s *Session) writeFile(name string) (*os.File, error) {
	if f, ok := s.wfiles[name]; ok {
		return f, nil
	}
	f, err := os.OpenFile(streamPath(s.dir, name), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening data file for %q: %w", name, err)
	}
	s.wfiles[name] = f
	return f, nil
}
