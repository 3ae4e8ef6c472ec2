package sample

import (
	"fmt"
	"math/rand"

	"github.com/gftdcojp/tickstore-verify/internal/catalog"
)

// Selection is the fixed set of streams one run monitors. It is drawn
// once at startup and never re-sampled between poll cycles, so the
// statistical properties of the draw hold for the whole test.
type Selection struct {
	// Common stresses tier 0, the tier the writer updates most often.
	Common []catalog.Stream
	// Random stresses the whole catalog.
	Random []catalog.Stream
}

// Size returns the total number of streams checked per cycle.
func (s Selection) Size() int {
	return len(s.Common) + len(s.Random)
}

// Draw builds a Selection: ncommon independent draws uniformly with
// replacement from tier 0, then nrandom draws uniformly across the whole
// catalog. Streams may repeat within and across the two subsets.
func Draw(cat *catalog.Catalog, ncommon, nrandom int, rng *rand.Rand) (Selection, error) {
	if ncommon < 0 || nrandom < 0 {
		return Selection{}, fmt.Errorf("sampling: negative subset size (ncommon=%d, nrandom=%d)", ncommon, nrandom)
	}

	var sel Selection

	if ncommon > 0 {
		n0, err := cat.StreamCount(0)
		if err != nil {
			return Selection{}, fmt.Errorf("sampling common subset: %w", err)
		}
		sel.Common = make([]catalog.Stream, ncommon)
		for i := range sel.Common {
			s, err := cat.StreamAt(0, rng.Intn(n0))
			if err != nil {
				return Selection{}, fmt.Errorf("sampling common subset: %w", err)
			}
			sel.Common[i] = s
		}
	}

	if nrandom > 0 {
		sel.Random = make([]catalog.Stream, nrandom)
		for i := range sel.Random {
			s, err := cat.RandomStream(rng)
			if err != nil {
				return Selection{}, fmt.Errorf("sampling random subset: %w", err)
			}
			sel.Random[i] = s
		}
	}

	return sel, nil
}
