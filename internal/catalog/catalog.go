package catalog

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrNotGenerated is returned by lookups against a catalog that has not
// been built with Generate.
var ErrNotGenerated = errors.New("catalog not generated")

// Stream identifies one append-only record stream in the store.
// Tier 0 streams are the ones the writer updates most frequently.
type Stream struct {
	Name string
	Tier int
}

// Catalog is the read-only table of all stream names, grouped by tier.
// It is built exactly once per run and never mutated afterwards.
type Catalog struct {
	tiers [][]Stream
	total int
}

// Generate builds the catalog from per-tier population counts, tier 0
// first. Names are derived deterministically from tier and offset so
// that the writer and every reader agree on them without coordination.
func Generate(counts []int) (*Catalog, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("generating catalog: no tiers given")
	}

	c := &Catalog{tiers: make([][]Stream, len(counts))}
	for tier, n := range counts {
		if n <= 0 {
			return nil, fmt.Errorf("generating catalog: tier %d count must be > 0, got %d", tier, n)
		}
		streams := make([]Stream, n)
		for off := range streams {
			streams[off] = Stream{
				Name: StreamName(tier, off),
				Tier: tier,
			}
		}
		c.tiers[tier] = streams
		c.total += n
	}
	return c, nil
}

// StreamName returns the deterministic name for the stream at the given
// tier and offset.
func StreamName(tier, offset int) string {
	return fmt.Sprintf("stream_%d_%d", tier, offset)
}

// Levels returns the number of tiers.
func (c *Catalog) Levels() int {
	if c == nil {
		return 0
	}
	return len(c.tiers)
}

// StreamCount returns the population of one tier.
func (c *Catalog) StreamCount(tier int) (int, error) {
	if c == nil || c.total == 0 {
		return 0, ErrNotGenerated
	}
	if tier < 0 || tier >= len(c.tiers) {
		return 0, fmt.Errorf("tier %d out of range [0,%d)", tier, len(c.tiers))
	}
	return len(c.tiers[tier]), nil
}

// StreamAt returns the stream at a fixed tier/offset position.
func (c *Catalog) StreamAt(tier, offset int) (Stream, error) {
	if c == nil || c.total == 0 {
		return Stream{}, ErrNotGenerated
	}
	if tier < 0 || tier >= len(c.tiers) {
		return Stream{}, fmt.Errorf("tier %d out of range [0,%d)", tier, len(c.tiers))
	}
	if offset < 0 || offset >= len(c.tiers[tier]) {
		return Stream{}, fmt.Errorf("offset %d out of range [0,%d) in tier %d", offset, len(c.tiers[tier]), tier)
	}
	return c.tiers[tier][offset], nil
}

// RandomStream draws one stream uniformly at random across the whole
// catalog. Every stream is equally likely regardless of tier size.
func (c *Catalog) RandomStream(rng *rand.Rand) (Stream, error) {
	if c == nil || c.total == 0 {
		return Stream{}, ErrNotGenerated
	}
	idx := rng.Intn(c.total)
	for tier := range c.tiers {
		if idx < len(c.tiers[tier]) {
			return c.tiers[tier][idx], nil
		}
		idx -= len(c.tiers[tier])
	}
	// Unreachable: idx < total by construction.
	return Stream{}, fmt.Errorf("random index out of range")
}

// Total returns the number of streams across all tiers.
func (c *Catalog) Total() int {
	if c == nil {
		return 0
	}
	return c.total
}
