package types

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEffectivePricePrefersLanded(t *testing.T) {
	t.Parallel()
	landed := dec("26.49")
	o := Offer{Price: dec("25.99"), LandedPrice: &landed}
	if !o.EffectivePrice().Equal(landed) {
		t.Errorf("effective = %s, want landed 26.49", o.EffectivePrice())
	}

	o.LandedPrice = nil
	if !o.EffectivePrice().Equal(dec("25.99")) {
		t.Errorf("effective = %s, want listing 25.99", o.EffectivePrice())
	}
}

func TestConditionMatchesIgnoresCase(t *testing.T) {
	t.Parallel()
	if !Condition("new").Matches(ConditionNew) {
		t.Error("lowercase condition should match")
	}
	if ConditionNew.Matches(ConditionUsed) {
		t.Error("NEW should not match USED")
	}
}

func TestProductUnmarshalAliases(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"listed_price": "30.00",
		"min": "20.00",
		"max": "40.00",
		"inventory_quantity": 7,
		"status": "active",
		"repricer_enabled": true
	}`)
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.MinPrice == nil || !p.MinPrice.Equal(dec("20.00")) {
		t.Errorf("min = %v, want 20.00 from alias", p.MinPrice)
	}
	if p.MaxPrice == nil || !p.MaxPrice.Equal(dec("40.00")) {
		t.Errorf("max = %v, want 40.00 from alias", p.MaxPrice)
	}
	if p.Quantity != 7 {
		t.Errorf("quantity = %d, want 7 from inventory_quantity", p.Quantity)
	}
	if !p.Active() {
		t.Error("status 'active' should be Active case-insensitively")
	}
}

func TestProductCanonicalFieldsWin(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"min_price": "21.00", "min": "20.00"}`)
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.MinPrice == nil || !p.MinPrice.Equal(dec("21.00")) {
		t.Errorf("min = %v, canonical min_price must win over alias", p.MinPrice)
	}
}

func TestStrategyAppliesTo(t *testing.T) {
	t.Parallel()
	s := &Strategy{}
	if !s.AppliesTo(ConditionUsed) {
		t.Error("empty condition list covers everything")
	}
	s.Conditions = []Condition{ConditionNew}
	if s.AppliesTo(ConditionUsed) {
		t.Error("USED not covered by NEW-only strategy")
	}
	if !s.AppliesTo(Condition("new")) {
		t.Error("condition match must ignore case")
	}
}

func TestInWindow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		reset  int
		resume int
		hour   int
		want   bool
	}{
		{"simple window inside", 9, 17, 12, true},
		{"simple window edge start", 9, 17, 9, true},
		{"simple window edge end", 9, 17, 17, true},
		{"simple window outside", 9, 17, 8, false},
		{"cross midnight late evening", 23, 3, 23, true},
		{"cross midnight after midnight", 23, 3, 1, true},
		{"cross midnight edge resume", 23, 3, 3, true},
		{"cross midnight outside", 23, 3, 12, false},
		{"equal hours means no window", 5, 5, 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := ResetRuleSet{ResetHour: tc.reset, ResumeHour: tc.resume}
			if got := r.InWindow(tc.hour); got != tc.want {
				t.Errorf("InWindow(%d) with [%d,%d] = %v, want %v",
					tc.hour, tc.reset, tc.resume, got, tc.want)
			}
		})
	}
}

func TestTierOffers(t *testing.T) {
	t.Parallel()
	oc := &OfferChange{Offers: []Offer{
		{SellerID: "C1", Price: dec("25.00")},
		{SellerID: "C1", Price: dec("24.00"), QuantityTier: 5},
		{SellerID: "C2", Price: dec("23.50"), QuantityTier: 5},
		{SellerID: "C1", Price: dec("22.00"), QuantityTier: 10},
	}}
	tiers := oc.TierOffers()
	if len(tiers) != 2 {
		t.Fatalf("tiers = %v, want 2", tiers)
	}
	if len(tiers[5]) != 2 || len(tiers[10]) != 1 {
		t.Errorf("tier sizes = %d/%d, want 2/1", len(tiers[5]), len(tiers[10]))
	}
}

func TestCalculatedPriceRoundTrip(t *testing.T) {
	t.Parallel()
	comp := dec("26.49")
	in := CalculatedPrice{
		ASIN:            "B07TEST123",
		SKU:             "T1",
		SellerID:        "A1",
		OldPrice:        dec("30.00"),
		NewPrice:        dec("26.48"),
		StrategyUsed:    "ChaseBuyBox",
		StrategyID:      "s1",
		CompetitorPrice: &comp,
		TierPrices:      map[int]decimal.Decimal{5: dec("24.49")},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out CalculatedPrice
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.NewPrice.Equal(in.NewPrice) || !out.OldPrice.Equal(in.OldPrice) {
		t.Errorf("prices round-tripped to %s/%s", out.OldPrice, out.NewPrice)
	}
	if out.CompetitorPrice == nil || !out.CompetitorPrice.Equal(comp) {
		t.Errorf("competitor price = %v, want 26.49", out.CompetitorPrice)
	}
	if !out.TierPrices[5].Equal(dec("24.49")) {
		t.Errorf("tier prices = %v", out.TierPrices)
	}
}

func TestOutcomeTerminal(t *testing.T) {
	t.Parallel()
	if !Priced(&CalculatedPrice{}).Terminal() {
		t.Error("priced is terminal")
	}
	if !Unchanged().Terminal() {
		t.Error("unchanged is terminal")
	}
	if !Skipped(SkipPaused).Terminal() {
		t.Error("skipped is terminal")
	}
	if Failed(Transientf("x")).Terminal() {
		t.Error("failed is not terminal")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()
	if !IsMalformed(Malformedf("bad field %q", "x")) {
		t.Error("Malformedf must wrap ErrMalformed")
	}
	if !IsTransient(Transientf("timeout after %d ms", 100)) {
		t.Error("Transientf must wrap ErrTransient")
	}
	if IsMalformed(Transientf("x")) {
		t.Error("transient is not malformed")
	}
}

func TestPriceBoundsErrorMessage(t *testing.T) {
	t.Parallel()
	minP, maxP := dec("20"), dec("50")
	e := &PriceBoundsError{Candidate: dec("55.01"), Min: &minP, Max: &maxP}
	want := "price 55.01 outside bounds [20, 50]"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
