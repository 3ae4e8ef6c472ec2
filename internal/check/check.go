// Package check judges the most recent record of a stream as valid,
// benign fill, or corrupt.
package check

import (
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/tickstore-verify/internal/store"
	"go.uber.org/zap"
)

// CorruptionError reports a record whose identifier matches neither its
// slot index nor the fill sentinel. It is fatal to the run.
type CorruptionError struct {
	Time     time.Time
	Stream   string
	Extent   uint64
	Observed uint64
	Expected uint64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt record in stream %q: extent %d, observed id %d, expected %d",
		e.Stream, e.Extent, e.Observed, e.Expected)
}

// AsCorruption unwraps err to a *CorruptionError if one is in its chain.
func AsCorruption(err error) (*CorruptionError, bool) {
	var cerr *CorruptionError
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// Checker verifies streams against one fixed record layout. The scratch
// record is reused across checks, so a Checker must not be shared
// between goroutines.
type Checker struct {
	rt     store.RecordType
	rec    store.Record
	logger *zap.Logger
}

func New(rt store.RecordType, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{rt: rt, logger: logger}
}

// Check reads the last published slot of the named stream through the
// given session and applies the verification rule. It returns the
// number of benign fill values observed (0 or 1); any returned error is
// either an I/O failure or a *CorruptionError. The stream handle is
// released on every path.
func (c *Checker) Check(sess *store.Session, name string) (int, error) {
	h, err := sess.OpenStream(name)
	if err != nil {
		return 0, fmt.Errorf("checking stream %q: %w", name, err)
	}
	defer h.Close()

	extent := h.Extent()
	c.logger.Debug("checking stream",
		zap.String("stream", name),
		zap.Uint64("extent", extent),
	)
	if extent == 0 {
		return 0, nil
	}

	pos := extent - 1

	// Poison the scratch id so a silently failed read cannot masquerade
	// as a valid record.
	c.rec.ID = ^uint64(0)
	if err := h.ReadAt(pos, c.rt, &c.rec); err != nil {
		return 0, fmt.Errorf("checking stream %q: %w", name, err)
	}

	switch {
	case c.rec.ID == pos:
		if pos == 0 && c.rec.ID == 0 {
			// At slot 0 a committed identifier of 0 and the fill
			// sentinel are indistinguishable.
			c.logger.Debug("slot 0 id 0: fill value indistinguishable from valid record",
				zap.String("stream", name),
			)
		}
		return 0, nil

	case c.rec.ID == 0 && pos != 0:
		// The writer has published the grown extent but not yet
		// committed the slot's payload.
		return 1, nil

	default:
		cerr := &CorruptionError{
			Time:     time.Now(),
			Stream:   name,
			Extent:   extent,
			Observed: c.rec.ID,
			Expected: pos,
		}
		c.logger.Error("incorrect record value",
			zap.Time("time", cerr.Time),
			zap.String("stream", cerr.Stream),
			zap.Uint64("extent", cerr.Extent),
			zap.Uint64("observed_id", cerr.Observed),
			zap.Uint64("expected_id", cerr.Expected),
		)
		return 0, cerr
	}
}
