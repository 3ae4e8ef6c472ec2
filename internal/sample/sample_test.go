package sample

import (
	"math/rand"
	"testing"

	"github.com/gftdcojp/tickstore-verify/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Generate([]int{20, 10, 5})
	if err != nil {
		t.Fatalf("generating catalog: %v", err)
	}
	return cat
}

func TestDrawSizes(t *testing.T) {
	cat := testCatalog(t)
	rng := rand.New(rand.NewSource(7))

	sel, err := Draw(cat, 5, 10, rng)
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	if len(sel.Common) != 5 {
		t.Errorf("expected 5 common streams, got %d", len(sel.Common))
	}
	if len(sel.Random) != 10 {
		t.Errorf("expected 10 random streams, got %d", len(sel.Random))
	}
	if sel.Size() != 15 {
		t.Errorf("expected size 15, got %d", sel.Size())
	}
}

func TestDrawCommonRestrictedToTierZero(t *testing.T) {
	cat := testCatalog(t)
	rng := rand.New(rand.NewSource(7))

	sel, err := Draw(cat, 50, 0, rng)
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	for i, s := range sel.Common {
		if s.Tier != 0 {
			t.Errorf("common stream %d (%s) from tier %d, want 0", i, s.Name, s.Tier)
		}
	}
}

func TestDrawDeterministicForSeed(t *testing.T) {
	cat := testCatalog(t)

	a, err := Draw(cat, 5, 10, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Draw(cat, 5, 10, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Common {
		if a.Common[i] != b.Common[i] {
			t.Fatalf("common[%d]: %v != %v", i, a.Common[i], b.Common[i])
		}
	}
	for i := range a.Random {
		if a.Random[i] != b.Random[i] {
			t.Fatalf("random[%d]: %v != %v", i, a.Random[i], b.Random[i])
		}
	}
}

func TestDrawZeroSubsets(t *testing.T) {
	cat := testCatalog(t)
	sel, err := Draw(cat, 0, 0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	if sel.Size() != 0 {
		t.Errorf("expected empty selection, got %d streams", sel.Size())
	}
}

func TestDrawRejectsNegative(t *testing.T) {
	cat := testCatalog(t)
	if _, err := Draw(cat, -1, 0, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for negative ncommon")
	}
}

func TestDrawNotGeneratedCatalog(t *testing.T) {
	var cat *catalog.Catalog
	if _, err := Draw(cat, 1, 1, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for nil catalog")
	}
}
