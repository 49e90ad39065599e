package reset

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"repricer/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decp(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

type fakeStore struct {
	mu       sync.Mutex
	rules    []types.ResetRuleSet
	products map[string][]types.Product
	paused   map[string]bool
	putErr   error
}

func (f *fakeStore) ResetRuleSets(_ context.Context) ([]types.ResetRuleSet, error) {
	return f.rules, nil
}

func (f *fakeStore) SellerProducts(_ context.Context, sellerID string) ([]types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[sellerID], nil
}

func (f *fakeStore) PutProduct(_ context.Context, p *types.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	list := f.products[p.SellerID]
	for i := range list {
		if list[i].ASIN == p.ASIN && list[i].SKU == p.SKU {
			list[i] = *p
		}
	}
	return nil
}

func (f *fakeStore) SetPaused(_ context.Context, sellerID, asin string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[sellerID+":"+asin] = paused
	return nil
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []*types.CalculatedPrice
}

func (r *recordingSaver) Persist(_ context.Context, cp *types.CalculatedPrice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, cp)
	return nil
}

func usRule(resetHour, resumeHour int) types.ResetRuleSet {
	return types.ResetRuleSet{
		SellerID:         "A1",
		Marketplace:      types.MarketplaceUS,
		Enabled:          true,
		ResetHour:        resetHour,
		ResumeHour:       resumeHour,
		ProductCondition: "ALL",
	}
}

func sellerProducts() map[string][]types.Product {
	return map[string][]types.Product{
		"A1": {
			{
				ASIN: "B001", SKU: "S1", SellerID: "A1",
				Marketplace:   types.MarketplaceUS,
				ListedPrice:   *decp("25.00"),
				DefaultPrice:  decp("30.00"),
				ItemCondition: types.ConditionNew,
			},
			{
				ASIN: "B002", SKU: "S2", SellerID: "A1",
				Marketplace:   types.MarketplaceUS,
				ListedPrice:   *decp("12.00"),
				ItemCondition: types.ConditionNew, // no default price
			},
		},
	}
}

// newTestScheduler pins the clock so the given US-local hour is current.
func newTestScheduler(store *fakeStore, saver *recordingSaver, localHour int) *Scheduler {
	s := NewScheduler(store, saver, 4, testLogger())
	loc := types.MarketplaceUS.Location()
	s.now = func() time.Time {
		return time.Date(2025, 7, 15, localHour, 0, 0, 0, loc)
	}
	return s
}

func TestSweepResetHour(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		rules:    []types.ResetRuleSet{usRule(23, 3)},
		products: sellerProducts(),
		paused:   make(map[string]bool),
	}
	saver := &recordingSaver{}
	s := newTestScheduler(store, saver, 23)

	report := s.Sweep(context.Background())

	if report.SellersReset != 1 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.PricesReset != 1 {
		t.Errorf("prices reset = %d, want 1 (one product has no default)", report.PricesReset)
	}
	saver.mu.Lock()
	if len(saver.saved) != 1 || !saver.saved[0].NewPrice.Equal(*decp("30.00")) {
		t.Errorf("saved = %+v, want default 30.00", saver.saved)
	}
	if saver.saved[0].StrategyUsed != "Reset" {
		t.Errorf("strategy = %q, want Reset", saver.saved[0].StrategyUsed)
	}
	saver.mu.Unlock()

	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.paused["A1:B001"] {
		t.Error("pause flag not raised for reset product")
	}
	if store.paused["A1:B002"] {
		t.Error("pause flag raised for product without default price")
	}
	if got := store.products["A1"][0].ListedPrice; !got.Equal(*decp("30.00")) {
		t.Errorf("listed price after reset = %s, want 30.00", got)
	}
}

func TestSweepResumeHour(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		rules:    []types.ResetRuleSet{usRule(23, 3)},
		products: sellerProducts(),
		paused:   map[string]bool{"A1:B001": true, "A1:B002": true},
	}
	s := newTestScheduler(store, &recordingSaver{}, 3)

	report := s.Sweep(context.Background())

	if report.SellersResumed != 1 {
		t.Fatalf("report = %+v, want one resumed seller", report)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for key, paused := range store.paused {
		if paused {
			t.Errorf("flag %s still set after resume", key)
		}
	}
}

func TestSweepOutsideWindowDoesNothing(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		rules:    []types.ResetRuleSet{usRule(23, 3)},
		products: sellerProducts(),
		paused:   make(map[string]bool),
	}
	saver := &recordingSaver{}
	s := newTestScheduler(store, saver, 12)

	report := s.Sweep(context.Background())
	if report.SellersReset != 0 || report.SellersResumed != 0 || report.PricesReset != 0 {
		t.Errorf("report = %+v, want no action at hour 12", report)
	}
}

func TestSweepDisabledRuleIgnored(t *testing.T) {
	t.Parallel()
	rule := usRule(23, 3)
	rule.Enabled = false
	store := &fakeStore{
		rules:    []types.ResetRuleSet{rule},
		products: sellerProducts(),
		paused:   make(map[string]bool),
	}
	s := newTestScheduler(store, &recordingSaver{}, 23)

	report := s.Sweep(context.Background())
	if report.SellersReset != 0 {
		t.Errorf("report = %+v, disabled rule must not sweep", report)
	}
}

func TestSweepConditionFilter(t *testing.T) {
	t.Parallel()
	rule := usRule(23, 3)
	rule.ProductCondition = "USED"
	store := &fakeStore{
		rules:    []types.ResetRuleSet{rule},
		products: sellerProducts(), // both products are NEW
		paused:   make(map[string]bool),
	}
	saver := &recordingSaver{}
	s := newTestScheduler(store, saver, 23)

	report := s.Sweep(context.Background())
	if report.PricesReset != 0 {
		t.Errorf("prices reset = %d, want 0 for non-matching condition", report.PricesReset)
	}
}

func TestSweepErrorDoesNotStopOtherProducts(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		rules:    []types.ResetRuleSet{usRule(23, 3)},
		products: sellerProducts(),
		paused:   make(map[string]bool),
		putErr:   types.Transientf("store down"),
	}
	saver := &recordingSaver{}
	s := newTestScheduler(store, saver, 23)

	report := s.Sweep(context.Background())
	if report.Errors == 0 {
		t.Error("expected errors recorded")
	}
	// The sweep still visited every product.
	if report.SellersReset != 1 {
		t.Errorf("report = %+v", report)
	}
}
