package store

import (
	"encoding/binary"
	"fmt"
)

const (
	// IDSize is the fixed width of the record identifier at the head of
	// every slot.
	IDSize = 8

	// DefaultRecordSize is the default total slot width in bytes.
	DefaultRecordSize = 64
)

// RecordType describes the fixed on-disk layout of one record slot:
// [8 bytes id][payload]. The id of a committed record equals its slot
// index; an all-zero slot is the fill sentinel for a slot the writer has
// not committed yet.
type RecordType struct {
	Size int
}

// DefaultRecordType returns the layout the harness and writer agree on
// by default.
func DefaultRecordType() RecordType {
	return RecordType{Size: DefaultRecordSize}
}

func (rt RecordType) Validate() error {
	if rt.Size < IDSize {
		return fmt.Errorf("record size %d smaller than id width %d", rt.Size, IDSize)
	}
	return nil
}

// PayloadSize is the number of opaque payload bytes per slot.
func (rt RecordType) PayloadSize() int {
	return rt.Size - IDSize
}

// Record is a decoded slot value. Instances are scratch storage: readers
// reuse one Record across many slots.
type Record struct {
	ID      uint64
	Payload []byte
}

// Encode writes rec into buf, which must be exactly rt.Size bytes.
// A short payload is zero-padded.
func (rt RecordType) Encode(rec Record, buf []byte) error {
	if len(buf) != rt.Size {
		return fmt.Errorf("encode buffer is %d bytes, record type needs %d", len(buf), rt.Size)
	}
	if len(rec.Payload) > rt.PayloadSize() {
		return fmt.Errorf("payload is %d bytes, record type holds %d", len(rec.Payload), rt.PayloadSize())
	}
	binary.BigEndian.PutUint64(buf[:IDSize], rec.ID)
	n := copy(buf[IDSize:], rec.Payload)
	for i := IDSize + n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// Decode reads one slot out of buf into rec, reusing rec.Payload's
// backing array when it is large enough.
func (rt RecordType) Decode(buf []byte, rec *Record) error {
	if len(buf) != rt.Size {
		return fmt.Errorf("decode buffer is %d bytes, record type needs %d", len(buf), rt.Size)
	}
	rec.ID = binary.BigEndian.Uint64(buf[:IDSize])
	if cap(rec.Payload) < rt.PayloadSize() {
		rec.Payload = make([]byte, rt.PayloadSize())
	}
	rec.Payload = rec.Payload[:rt.PayloadSize()]
	copy(rec.Payload, buf[IDSize:])
	return nil
}
