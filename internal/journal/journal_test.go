package journal

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRecordAndReadCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, 1234, zap.NewNop())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer j.Close()

	start := time.Now().Truncate(time.Nanosecond)
	for i := uint64(0); i < 3; i++ {
		rec := CycleRecord{
			Start:   start.Add(time.Duration(i) * time.Second),
			Elapsed: 50 * time.Millisecond,
			Checked: 15,
			Fills:   int(i),
		}
		if err := j.RecordCycle(i, rec); err != nil {
			t.Fatalf("recording cycle %d: %v", i, err)
		}
	}

	recs, err := j.Cycles()
	if err != nil {
		t.Fatalf("reading cycles: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 cycles, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.Fills != i {
			t.Errorf("cycle %d: fills %d", i, rec.Fills)
		}
		if rec.Checked != 15 {
			t.Errorf("cycle %d: checked %d", i, rec.Checked)
		}
		if rec.Elapsed != 50*time.Millisecond {
			t.Errorf("cycle %d: elapsed %v", i, rec.Elapsed)
		}
		want := start.Add(time.Duration(i) * time.Second)
		if !rec.Start.Equal(want) {
			t.Errorf("cycle %d: start %v, want %v", i, rec.Start, want)
		}
	}
}

func TestSeedsIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	a, err := Open(path, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.RecordCycle(0, CycleRecord{Start: time.Now(), Checked: 5}); err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := Open(path, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	recs, err := b.Cycles()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("seed 2 sees %d cycles from seed 1", len(recs))
	}
}
