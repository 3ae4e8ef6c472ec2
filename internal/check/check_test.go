package check

import (
	"testing"

	"github.com/gftdcojp/tickstore-verify/internal/store"
	"go.uber.org/zap"
)

func storeConfig(writer bool) store.SWMRConfig {
	return store.SWMRConfig{
		TickLen:           4,
		MaxLag:            5,
		Writer:            writer,
		MetaPagesReserved: 1,
		MetaFilePath:      "SNAPSHOT",
		PageCacheBytes:    64 * 1024,
	}
}

// buildStore publishes a store where stream "s" has the given extent and
// the last slot holds lastID (or the fill sentinel when fill is true).
func buildStore(t *testing.T, extent uint64, lastID uint64, fill bool) string {
	t.Helper()
	dir := t.TempDir()
	rt := store.DefaultRecordType()

	w, err := store.Open(dir, storeConfig(true), zap.NewNop())
	if err != nil {
		t.Fatalf("opening writer: %v", err)
	}
	defer w.Close()

	if extent > 0 {
		for slot := uint64(0); slot < extent-1; slot++ {
			if _, err := w.Append("s", rt, nil); err != nil {
				t.Fatalf("append slot %d: %v", slot, err)
			}
		}
		if fill {
			if err := w.Reserve("s", 1); err != nil {
				t.Fatalf("reserve: %v", err)
			}
		} else {
			if _, err := w.AppendRecord("s", rt, store.Record{ID: lastID}); err != nil {
				t.Fatalf("append last: %v", err)
			}
		}
	} else {
		if err := w.EnsureStream("s"); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}

	if err := w.PublishSnapshot(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return dir
}

func openReader(t *testing.T, dir string) *store.Session {
	t.Helper()
	sess, err := store.Open(dir, storeConfig(false), zap.NewNop())
	if err != nil {
		t.Fatalf("opening reader: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestCheckValidLastRecord(t *testing.T) {
	// Extent 5, observed id 4.
	dir := buildStore(t, 5, 4, false)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	fills, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if fills != 0 {
		t.Errorf("expected 0 fills, got %d", fills)
	}
}

func TestCheckBenignFill(t *testing.T) {
	// Extent 5, observed id 0 at slot 4.
	dir := buildStore(t, 5, 0, true)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	fills, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if fills != 1 {
		t.Errorf("expected 1 fill, got %d", fills)
	}
}

func TestCheckCorruption(t *testing.T) {
	// Extent 5, observed id 2.
	dir := buildStore(t, 5, 2, false)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	_, err := c.Check(sess, "s")
	if err == nil {
		t.Fatal("expected corruption error")
	}

	cerr, ok := AsCorruption(err)
	if !ok {
		t.Fatalf("expected *CorruptionError, got %T: %v", err, err)
	}
	if cerr.Stream != "s" {
		t.Errorf("stream: got %q", cerr.Stream)
	}
	if cerr.Extent != 5 {
		t.Errorf("extent: got %d", cerr.Extent)
	}
	if cerr.Observed != 2 {
		t.Errorf("observed: got %d", cerr.Observed)
	}
	if cerr.Expected != 4 {
		t.Errorf("expected id: got %d", cerr.Expected)
	}
	if cerr.Time.IsZero() {
		t.Error("corruption time not set")
	}
}

func TestCheckEmptyStream(t *testing.T) {
	dir := buildStore(t, 0, 0, false)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	fills, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if fills != 0 {
		t.Errorf("expected 0 fills for empty stream, got %d", fills)
	}
}

func TestCheckSingleSlotZeroID(t *testing.T) {
	// Extent 1, id 0: valid by the rule, ambiguous with fill.
	dir := buildStore(t, 1, 0, false)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	fills, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if fills != 0 {
		t.Errorf("expected slot 0 id 0 to be valid, got %d fills", fills)
	}
}

func TestCheckIdempotent(t *testing.T) {
	dir := buildStore(t, 5, 0, true)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	first, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	second, err := c.Check(sess, "s")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if first != second {
		t.Errorf("results differ with no intervening write: %d then %d", first, second)
	}
}

func TestCheckUnknownStreamIsError(t *testing.T) {
	dir := buildStore(t, 1, 0, false)
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	if _, err := c.Check(sess, "missing"); err == nil {
		t.Fatal("expected error for unknown stream")
	} else if _, ok := AsCorruption(err); ok {
		t.Fatal("unknown stream must not be reported as corruption")
	}
}

func TestCheckReleasesHandlesOnCorruption(t *testing.T) {
	dir := buildStore(t, 5, 2, false)

	base := store.OpenHandles()
	sess := openReader(t, dir)

	c := New(store.DefaultRecordType(), zap.NewNop())
	if _, err := c.Check(sess, "s"); err == nil {
		t.Fatal("expected corruption error")
	}

	// Only the session itself may remain open.
	if got := store.OpenHandles() - base; got != 1 {
		t.Errorf("expected 1 open handle after corruption, got %d", got)
	}
	sess.Close()
	if got := store.OpenHandles() - base; got != 0 {
		t.Errorf("expected 0 open handles after session close, got %d", got)
	}
}
