package pricing

import (
	"context"
	"testing"
	"time"

	"repricer/pkg/types"
)

type fakeCatalog struct {
	sku      string
	product  *types.Product
	strategy *types.Strategy
	paused   bool
	rules    *types.ResetRuleSet
}

func (f *fakeCatalog) GetProduct(_ context.Context, _, _, _ string) (*types.Product, error) {
	return f.product, nil
}

func (f *fakeCatalog) FindSKU(_ context.Context, _, _ string) (string, error) {
	return f.sku, nil
}

func (f *fakeCatalog) FindSeller(_ context.Context, _ string) (string, error) {
	if f.product == nil {
		return "", nil
	}
	return f.product.SellerID, nil
}

func (f *fakeCatalog) GetStrategy(_ context.Context, _ string) (*types.Strategy, error) {
	return f.strategy, nil
}

func (f *fakeCatalog) IsPaused(_ context.Context, _, _ string) (bool, error) {
	return f.paused, nil
}

func (f *fakeCatalog) GetResetRules(_ context.Context, _ string, _ types.Marketplace) (*types.ResetRuleSet, error) {
	return f.rules, nil
}

func eligibleCatalog() *fakeCatalog {
	return &fakeCatalog{
		sku:      "T1",
		product:  testProduct(),
		strategy: testStrategy(),
	}
}

func eligibleChange() *types.OfferChange {
	return makeChange("A1", 0,
		types.Offer{SellerID: "A1", Price: dec("30.00"), Condition: types.ConditionNew},
		types.Offer{SellerID: "C1", Price: dec("25.99"), LandedPrice: decp("26.49"), Condition: types.ConditionNew, IsBuyBoxWinner: true},
	)
}

func TestGateResolvesMissingSeller(t *testing.T) {
	t.Parallel()
	g := NewGate(eligibleCatalog(), testLogger())

	oc := eligibleChange()
	oc.SellerID = ""
	d, out := g.Evaluate(context.Background(), oc)
	if d == nil {
		t.Fatalf("Evaluate outcome = %+v, want decision", out)
	}
	if oc.SellerID != "A1" {
		t.Errorf("seller = %q, want A1 resolved from the listing records", oc.SellerID)
	}
}

func TestGateMissingSellerUnknownASIN(t *testing.T) {
	t.Parallel()
	g := NewGate(&fakeCatalog{}, testLogger())

	oc := eligibleChange()
	oc.SellerID = ""
	d, out := g.Evaluate(context.Background(), oc)
	if d != nil {
		t.Fatal("expected skip for unlisted ASIN")
	}
	if out.Reason != types.SkipProductNotFound {
		t.Errorf("reason = %s, want %s", out.Reason, types.SkipProductNotFound)
	}
}

func TestGatePassesEligibleEvent(t *testing.T) {
	t.Parallel()
	g := NewGate(eligibleCatalog(), testLogger())

	d, out := g.Evaluate(context.Background(), eligibleChange())
	if d == nil {
		t.Fatalf("Evaluate outcome = %+v, want decision", out)
	}
	if d.Product.SKU != "T1" || d.Strategy.ID != "s1" {
		t.Errorf("decision = %+v, wrong product or strategy", d)
	}
}

func TestGateSkipOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*fakeCatalog)
		want   types.SkipReason
	}{
		{"product not found", func(f *fakeCatalog) { f.sku = "" }, types.SkipProductNotFound},
		{"product missing", func(f *fakeCatalog) { f.product = nil }, types.SkipProductNotFound},
		{"paused", func(f *fakeCatalog) { f.paused = true }, types.SkipPaused},
		{"out of stock", func(f *fakeCatalog) { f.product.Quantity = 0 }, types.SkipOutOfStock},
		{"inactive", func(f *fakeCatalog) { f.product.Status = types.StatusInactive }, types.SkipInactive},
		{"repricer disabled", func(f *fakeCatalog) { f.product.RepricerEnabled = false }, types.SkipRepricerDisabled},
		{"strategy not found", func(f *fakeCatalog) { f.strategy = nil }, types.SkipStrategyNotFound},
		{"strategy disabled", func(f *fakeCatalog) { f.strategy.Enabled = false }, types.SkipStrategyDisabled},
		{"condition not covered", func(f *fakeCatalog) {
			f.strategy.Conditions = []types.Condition{types.ConditionUsed}
		}, types.SkipStrategyDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cat := eligibleCatalog()
			tc.mutate(cat)
			g := NewGate(cat, testLogger())

			d, out := g.Evaluate(context.Background(), eligibleChange())
			if d != nil {
				t.Fatal("expected skip, got decision")
			}
			if out.Status != types.OutcomeSkipped || out.Reason != tc.want {
				t.Errorf("outcome = %+v, want skip %q", out, tc.want)
			}
		})
	}
}

func TestGateResetWindowSkip(t *testing.T) {
	t.Parallel()
	cat := eligibleCatalog()
	cat.rules = &types.ResetRuleSet{
		SellerID:    "A1",
		Marketplace: types.MarketplaceUS,
		Enabled:     true,
		ResetHour:   23,
		ResumeHour:  3,
	}
	g := NewGate(cat, testLogger())
	g.now = func() time.Time {
		// 06:30 UTC is 01:30 in America/New_York during DST: inside 23→3.
		return time.Date(2025, 7, 15, 6, 30, 0, 0, time.UTC)
	}

	_, out := g.Evaluate(context.Background(), eligibleChange())
	if out.Status != types.OutcomeSkipped || out.Reason != types.SkipResetWindow {
		t.Errorf("outcome = %+v, want skip reset-window", out)
	}
}

func TestGateDisabledResetRulesIgnored(t *testing.T) {
	t.Parallel()
	cat := eligibleCatalog()
	cat.rules = &types.ResetRuleSet{Enabled: false, ResetHour: 0, ResumeHour: 23}
	g := NewGate(cat, testLogger())

	d, _ := g.Evaluate(context.Background(), eligibleChange())
	if d == nil {
		t.Error("disabled reset rules must not block repricing")
	}
}

func TestGateSelfCompetitionSkip(t *testing.T) {
	t.Parallel()
	g := NewGate(eligibleCatalog(), testLogger())

	oc := makeChange("A1", 0,
		types.Offer{SellerID: "A1", Price: dec("24.99"), LandedPrice: decp("25.49"), Condition: types.ConditionNew},
		types.Offer{SellerID: "C1", Price: dec("28.99"), Condition: types.ConditionNew},
	)
	_, out := g.Evaluate(context.Background(), oc)
	if out.Status != types.OutcomeSkipped || out.Reason != types.SkipSelfCompetition {
		t.Errorf("outcome = %+v, want skip self-competition", out)
	}
}

func TestGateSingleOfferIsNotSelfCompetition(t *testing.T) {
	t.Parallel()
	cat := eligibleCatalog()
	cat.product.DefaultPrice = decp("35.00")
	g := NewGate(cat, testLogger())

	oc := makeChange("A1", 1,
		types.Offer{SellerID: "A1", Price: dec("30.00"), Condition: types.ConditionNew, IsBuyBoxWinner: true},
	)
	d, out := g.Evaluate(context.Background(), oc)
	if d == nil {
		t.Fatalf("Evaluate outcome = %+v, want decision for only-seller market", out)
	}
}
