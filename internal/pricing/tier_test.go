package pricing

import (
	"errors"
	"testing"
)

func TestDefaultCatalogRates(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		id          TierID
		name        string
		transaction float64
	}{
		{Gold, "Gold Tier", 26},
		{Silver, "Silver Tier", 22},
		{Bronze, "Bronze Tier", 18},
	}
	for _, tc := range cases {
		tier, err := catalog.Lookup(tc.id)
		if err != nil {
			t.Fatalf("lookup %s: %v", tc.id, err)
		}
		if tier.Name != tc.name || tier.TransactionRate != tc.transaction {
			t.Fatalf("unexpected tier %#v", tier)
		}
		if tier.StatementRate != 160 || tier.Discount != 0.20 {
			t.Fatalf("unexpected statement rate or discount %#v", tier)
		}
	}
}

func TestCatalogLookupUnknown(t *testing.T) {
	_, err := DefaultCatalog().Lookup(TierID("platinum"))
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
	var typed *UnknownTierError
	if !errors.As(err, &typed) || typed.ID != "platinum" || typed.Index != -1 {
		t.Fatalf("expected UnknownTierError carrying id, got %v", err)
	}

	if _, err := DefaultCatalog().Lookup(""); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected zero tier id to be rejected, got %v", err)
	}
}

func TestCatalogAllOrder(t *testing.T) {
	all := DefaultCatalog().All()
	if len(all) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(all))
	}
	if all[0].ID != Gold || all[1].ID != Silver || all[2].ID != Bronze {
		t.Fatalf("unexpected order %v", all)
	}
}

func TestNormalizeTierID(t *testing.T) {
	if id := NormalizeTierID("  Silver "); id != Silver {
		t.Fatalf("expected silver, got %q", id)
	}
	if id := NormalizeTierID("Diamond"); id != TierID("diamond") || id.Valid() {
		t.Fatalf("expected invalid diamond, got %q", id)
	}
}

func TestTierLabel(t *testing.T) {
	if Gold.Label() != "Gold" || Bronze.Label() != "Bronze" {
		t.Fatalf("unexpected labels %q %q", Gold.Label(), Bronze.Label())
	}
	if TierID("").Label() != "" {
		t.Fatal("expected empty label for zero id")
	}
}
