// Package poll drives the time-boxed verification loop: open the store,
// check every selected stream, close the store, sleep, repeat until the
// deadline.
package poll

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gftdcojp/tickstore-verify/internal/catalog"
	"github.com/gftdcojp/tickstore-verify/internal/check"
	"github.com/gftdcojp/tickstore-verify/internal/journal"
	"github.com/gftdcojp/tickstore-verify/internal/metrics"
	"github.com/gftdcojp/tickstore-verify/internal/sample"
	"github.com/gftdcojp/tickstore-verify/internal/store"
	"go.uber.org/zap"
)

// Config fixes one run's parameters before the loop starts.
type Config struct {
	StoreDir     string
	SWMR         store.SWMRConfig
	RecordType   store.RecordType
	PollInterval time.Duration
	TestDuration time.Duration
	NCommon      int
	NRandom      int
}

// Loop re-opens the store once per cycle so every cycle observes the
// latest published snapshot instead of metadata cached by a long-lived
// handle. That cold re-open is the behavior under test; do not replace
// it with a persistent session.
type Loop struct {
	cfg     Config
	cat     *catalog.Catalog
	rng     *rand.Rand
	checker *check.Checker
	journal *journal.Journal
	logger  *zap.Logger

	sel   sample.Selection
	fills int
}

// New builds a loop. The journal may be nil. The reader role is forced
// regardless of what cfg.SWMR carries.
func New(cfg Config, cat *catalog.Catalog, rng *rand.Rand, jrnl *journal.Journal, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SWMR.Writer = false
	return &Loop{
		cfg:     cfg,
		cat:     cat,
		rng:     rng,
		checker: check.New(cfg.RecordType, logger.Named("check")),
		journal: jrnl,
		logger:  logger,
	}
}

// Fills reports the total benign fill values observed so far.
func (l *Loop) Fills() int {
	return l.fills
}

// Selection returns the frozen selection, valid after Run has started.
func (l *Loop) Selection() sample.Selection {
	return l.sel
}

// Run draws the selection once, then polls until the deadline. Any
// corruption or I/O failure aborts the run immediately; there are no
// retries. Individual store calls carry no timeout so a hang in the
// engine surfaces as a test failure instead of being masked.
func (l *Loop) Run(ctx context.Context) error {
	sel, err := sample.Draw(l.cat, l.cfg.NCommon, l.cfg.NRandom, l.rng)
	if err != nil {
		return fmt.Errorf("selecting streams: %w", err)
	}
	l.sel = sel

	for i, s := range sel.Common {
		l.logger.Info("common stream selected", zap.Int("index", i), zap.String("stream", s.Name))
	}
	for i, s := range sel.Random {
		l.logger.Info("random stream selected", zap.Int("index", i), zap.String("stream", s.Name), zap.Int("tier", s.Tier))
	}

	deadline := time.Now().Add(l.cfg.TestDuration)
	l.logger.Info("starting poll loop",
		zap.Duration("test_duration", l.cfg.TestDuration),
		zap.Duration("poll_interval", l.cfg.PollInterval),
		zap.Int("streams_per_cycle", sel.Size()),
	)

	for cycle := uint64(0); time.Now().Before(deadline); cycle++ {
		if err := l.runCycle(cycle); err != nil {
			return err
		}
		metrics.PollCycles.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}

	l.logger.Info("poll loop done", zap.Int("total_fill_values", l.fills))
	return nil
}

func (l *Loop) runCycle(cycle uint64) error {
	start := time.Now()

	l.logger.Debug("opening store", zap.Uint64("cycle", cycle), zap.String("dir", l.cfg.StoreDir))
	sess, err := store.Open(l.cfg.StoreDir, l.cfg.SWMR, l.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("cycle %d: %w", cycle, err)
	}
	defer sess.Close()

	checked := 0
	fills := 0
	for _, subset := range []struct {
		name    string
		streams []catalog.Stream
	}{
		{"common", l.sel.Common},
		{"random", l.sel.Random},
	} {
		for _, s := range subset.streams {
			n, err := l.checker.Check(sess, s.Name)
			if err != nil {
				if _, ok := check.AsCorruption(err); ok {
					metrics.Corruptions.Inc()
				}
				return fmt.Errorf("cycle %d, %s subset: %w", cycle, subset.name, err)
			}
			metrics.StreamsChecked.WithLabelValues(subset.name).Inc()
			checked++
			if n > 0 {
				fills += n
				metrics.FillRaces.WithLabelValues(s.Name).Inc()
				l.logger.Warn("read fill value instead of committed record",
					zap.String("subset", subset.name),
					zap.String("stream", s.Name),
				)
			}
		}
	}

	if err := sess.Close(); err != nil {
		return fmt.Errorf("cycle %d: closing store: %w", cycle, err)
	}

	l.fills += fills
	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.OpenHandleGauge.Set(float64(store.OpenHandles()))

	if l.journal != nil {
		rec := journal.CycleRecord{Start: start, Elapsed: elapsed, Checked: checked, Fills: fills}
		if err := l.journal.RecordCycle(cycle, rec); err != nil {
			return fmt.Errorf("cycle %d: recording journal entry: %w", cycle, err)
		}
	}

	l.logger.Debug("cycle complete",
		zap.Uint64("cycle", cycle),
		zap.Int("checked", checked),
		zap.Int("fills", fills),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
