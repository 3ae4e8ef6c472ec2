package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
)

const (
	// snapshotMagic identifies the published metadata format ("SWMS").
	snapshotMagic = uint32(0x53574D53)

	snapshotVersion = uint32(1)

	// snapshotHeaderSize: [4 magic][4 version][8 tick][4 entry count]
	snapshotHeaderSize = 20
)

// ErrSnapshotCorrupt reports a metadata file that fails structural or
// checksum validation.
var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// snapshot is the engine's published consistency state: one tick number
// and the committed extent of every stream. A reader that decodes a
// snapshot sees, for each stream with extent N, slot N-1 either fully
// committed or carrying the fill sentinel. Snapshots are immutable once
// decoded.
type snapshot struct {
	Tick    uint64
	Extents map[string]uint64
}

// encodeSnapshot serializes in name order so identical state always
// produces identical bytes.
func encodeSnapshot(s *snapshot) ([]byte, error) {
	names := make([]string, 0, len(s.Extents))
	for name := range s.Extents {
		if len(name) > 0xFFFF {
			return nil, fmt.Errorf("stream name %q too long", name[:32])
		}
		names = append(names, name)
	}
	sort.Strings(names)

	size := snapshotHeaderSize
	for _, name := range names {
		size += 2 + len(name) + 8
	}
	buf := make([]byte, 0, size+4)

	hdr := make([]byte, snapshotHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], snapshotMagic)
	binary.BigEndian.PutUint32(hdr[4:8], snapshotVersion)
	binary.BigEndian.PutUint64(hdr[8:16], s.Tick)
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(names)))
	buf = append(buf, hdr...)

	var scratch [8]byte
	for _, name := range names {
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(name)))
		buf = append(buf, scratch[:2]...)
		buf = append(buf, name...)
		binary.BigEndian.PutUint64(scratch[:8], s.Extents[name])
		buf = append(buf, scratch[:8]...)
	}

	binary.BigEndian.PutUint32(scratch[:4], crc32.ChecksumIEEE(buf))
	buf = append(buf, scratch[:4]...)
	return buf, nil
}

// decodeSnapshot parses and checksums a published metadata image.
// Trailing reserved-page padding beyond the checksum is ignored.
func decodeSnapshot(raw []byte) (*snapshot, error) {
	if len(raw) < snapshotHeaderSize+4 {
		return nil, fmt.Errorf("%w: %d bytes is too small", ErrSnapshotCorrupt, len(raw))
	}

	magic := binary.BigEndian.Uint32(raw[0:4])
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrSnapshotCorrupt, magic)
	}
	version := binary.BigEndian.Uint32(raw[4:8])
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, version)
	}

	s := &snapshot{
		Tick:    binary.BigEndian.Uint64(raw[8:16]),
		Extents: make(map[string]uint64),
	}
	count := int(binary.BigEndian.Uint32(raw[16:20]))

	pos := snapshotHeaderSize
	for i := 0; i < count; i++ {
		if pos+2 > len(raw) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrSnapshotCorrupt, i)
		}
		nameLen := int(binary.BigEndian.Uint16(raw[pos : pos+2]))
		pos += 2
		if pos+nameLen+8 > len(raw) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrSnapshotCorrupt, i)
		}
		name := string(raw[pos : pos+nameLen])
		pos += nameLen
		s.Extents[name] = binary.BigEndian.Uint64(raw[pos : pos+8])
		pos += 8
	}

	if pos+4 > len(raw) {
		return nil, fmt.Errorf("%w: missing checksum", ErrSnapshotCorrupt)
	}
	want := binary.BigEndian.Uint32(raw[pos : pos+4])
	got := crc32.ChecksumIEEE(raw[:pos])
	if want != got {
		return nil, fmt.Errorf("%w: checksum mismatch (stored 0x%08X, computed 0x%08X)", ErrSnapshotCorrupt, want, got)
	}

	return s, nil
}

// readSnapshot loads the published metadata file.
func readSnapshot(path string) (*snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

// writeSnapshot publishes atomically: encode, pad to the reserved
// metadata page count, write a temp file, then rename over the old
// image. Concurrent lock-free readers see either the old snapshot or
// the new one, never a torn mix.
func writeSnapshot(path string, s *snapshot, reservedPages int) error {
	data, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if reserved := reservedPages * pageSize; len(data) < reserved {
		padded := make([]byte, reserved)
		copy(padded, data)
		data = padded
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

func streamPath(dir, name string) string {
	return filepath.Join(dir, "streams", name+".rec")
}
