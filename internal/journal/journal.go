// Package journal persists per-cycle verification results to a BoltDB
// file so a run's behavior can be audited after the fact and correlated
// with its seed.
package journal

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bucket names in BoltDB.
var (
	bucketRuns = []byte("runs")
)

// cycleRecordSize: [8 start_ns][8 elapsed_ns][4 checked][4 fills]
const cycleRecordSize = 24

// CycleRecord summarizes one poll cycle.
type CycleRecord struct {
	Start   time.Time
	Elapsed time.Duration
	Checked int
	Fills   int
}

func encodeCycleRecord(rec CycleRecord) []byte {
	buf := make([]byte, cycleRecordSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(rec.Start.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(rec.Elapsed))
	binary.BigEndian.PutUint32(buf[16:20], uint32(rec.Checked))
	binary.BigEndian.PutUint32(buf[20:24], uint32(rec.Fills))
	return buf
}

func decodeCycleRecord(b []byte) (CycleRecord, error) {
	if len(b) != cycleRecordSize {
		return CycleRecord{}, fmt.Errorf("invalid cycle record length %d", len(b))
	}
	return CycleRecord{
		Start:   time.Unix(0, int64(binary.BigEndian.Uint64(b[0:8]))),
		Elapsed: time.Duration(binary.BigEndian.Uint64(b[8:16])),
		Checked: int(binary.BigEndian.Uint32(b[16:20])),
		Fills:   int(binary.BigEndian.Uint32(b[20:24])),
	}, nil
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Journal appends cycle records under a per-seed bucket.
type Journal struct {
	db     *bbolt.DB
	seed   uint64
	logger *zap.Logger
}

// Open opens or creates the journal database.
func Open(path string, seed uint64, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	j := &Journal{db: db, seed: seed, logger: logger}
	if err := db.Update(func(tx *bbolt.Tx) error {
		runs, err := tx.CreateBucketIfNotExists(bucketRuns)
		if err != nil {
			return err
		}
		_, err = runs.CreateBucketIfNotExists(uint64ToBytes(seed))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// RecordCycle stores one cycle's summary at the given cycle index.
func (j *Journal) RecordCycle(cycle uint64, rec CycleRecord) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		run := tx.Bucket(bucketRuns).Bucket(uint64ToBytes(j.seed))
		if run == nil {
			return fmt.Errorf("run bucket for seed %d missing", j.seed)
		}
		return run.Put(uint64ToBytes(cycle), encodeCycleRecord(rec))
	})
}

// Cycles returns every recorded cycle for this journal's seed, in cycle
// order.
func (j *Journal) Cycles() ([]CycleRecord, error) {
	var recs []CycleRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		run := tx.Bucket(bucketRuns).Bucket(uint64ToBytes(j.seed))
		if run == nil {
			return nil
		}
		return run.ForEach(func(k, v []byte) error {
			rec, err := decodeCycleRecord(v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

func (j *Journal) Close() error {
	return j.db.Close()
}
