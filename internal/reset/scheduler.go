// Package reset implements the daily price-reset scheduler.
//
// Once an hour, on the hour, every enabled reset-rule set is evaluated
// against the seller's marketplace-local wall clock. In the reset hour all
// of the seller's products are forced to their default price and paused;
// in the resume hour the pause flags are cleared and repricing takes over
// again.
package reset

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"repricer/pkg/types"
)

// Store is the slice of the store the scheduler sweeps over.
type Store interface {
	ResetRuleSets(ctx context.Context) ([]types.ResetRuleSet, error)
	SellerProducts(ctx context.Context, sellerID string) ([]types.Product, error)
	PutProduct(ctx context.Context, p *types.Product) error
	SetPaused(ctx context.Context, sellerID, asin string, paused bool) error
}

// PriceSaver persists a calculated price; implemented by engine.Persister.
type PriceSaver interface {
	Persist(ctx context.Context, cp *types.CalculatedPrice) error
}

// Report aggregates one sweep's per-product outcomes. A failure on one
// product never stops the sweep.
type Report struct {
	SellersReset   int
	SellersResumed int
	PricesReset    int
	FlagsCleared   int
	Errors         int
}

// Scheduler drives the hourly sweeps.
type Scheduler struct {
	store   Store
	saver   PriceSaver
	workers int
	logger  *slog.Logger
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler sweeping with the given worker bound.
func NewScheduler(store Store, saver PriceSaver, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:   store,
		saver:   saver,
		workers: workers,
		logger:  logger.With("component", "reset"),
		now:     time.Now,
	}
}

// Start begins the hourly loop. A single goroutine runs the sweeps, so two
// sweeps for the same seller can never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	s.logger.Info("reset scheduler started", "workers", s.workers)
}

// Stop halts the loop; a sweep in progress finishes.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("reset scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		next := s.now().Truncate(time.Hour).Add(time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(s.now())):
		}
		report := s.Sweep(ctx)
		s.logger.Info("reset sweep finished",
			"sellers_reset", report.SellersReset,
			"sellers_resumed", report.SellersResumed,
			"prices_reset", report.PricesReset,
			"flags_cleared", report.FlagsCleared,
			"errors", report.Errors)
	}
}

// Sweep evaluates every rule set once against the current local hour.
func (s *Scheduler) Sweep(ctx context.Context) Report {
	var report Report

	rules, err := s.store.ResetRuleSets(ctx)
	if err != nil {
		s.logger.Error("loading reset rules failed", "error", err)
		report.Errors++
		return report
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		hour := s.now().In(rule.Marketplace.Location()).Hour()
		switch hour {
		case rule.ResetHour:
			report.SellersReset++
			s.resetSeller(ctx, rule, &report)
		case rule.ResumeHour:
			report.SellersResumed++
			s.resumeSeller(ctx, rule, &report)
		}
	}
	return report
}

// matchesCondition applies the rule's product-condition filter.
func matchesCondition(rule types.ResetRuleSet, p types.Product) bool {
	if rule.ProductCondition == "" || strings.EqualFold(rule.ProductCondition, "ALL") {
		return true
	}
	return p.ItemCondition.Matches(types.Condition(rule.ProductCondition))
}

// resetSeller writes every product's default price through the persister
// (reset always writes, never change-only) and raises the pause flag.
func (s *Scheduler) resetSeller(ctx context.Context, rule types.ResetRuleSet, report *Report) {
	products, err := s.store.SellerProducts(ctx, rule.SellerID)
	if err != nil {
		s.logger.Error("listing seller products failed",
			"seller_id", rule.SellerID, "error", err)
		report.Errors++
		return
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range products {
		product := products[i]
		if !matchesCondition(rule, product) {
			continue
		}
		p.Go(func() {
			reset, err := s.resetProduct(ctx, product)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				s.logger.Error("product reset failed",
					"asin", product.ASIN, "seller_id", product.SellerID, "error", err)
				return
			}
			if reset {
				report.PricesReset++
			}
		})
	}
	p.Wait()
}

// resetProduct returns false with no error when the product has no default
// price to reset to.
func (s *Scheduler) resetProduct(ctx context.Context, product types.Product) (bool, error) {
	if product.DefaultPrice == nil || !product.DefaultPrice.IsPositive() {
		return false, nil
	}

	cp := &types.CalculatedPrice{
		ASIN:         product.ASIN,
		SKU:          product.SKU,
		SellerID:     product.SellerID,
		OldPrice:     product.ListedPrice,
		NewPrice:     product.DefaultPrice.Round(2),
		StrategyUsed: "Reset",
		CalculatedAt: time.Now().UTC(),
	}
	if err := s.saver.Persist(ctx, cp); err != nil {
		return false, err
	}

	// Write the new listed price back so post-resume change-only
	// comparisons start from the reset price.
	product.ListedPrice = cp.NewPrice
	if err := s.store.PutProduct(ctx, &product); err != nil {
		return false, err
	}
	if err := s.store.SetPaused(ctx, product.SellerID, product.ASIN, true); err != nil {
		return false, err
	}
	return true, nil
}

// resumeSeller clears the pause flags raised by the reset hour.
func (s *Scheduler) resumeSeller(ctx context.Context, rule types.ResetRuleSet, report *Report) {
	products, err := s.store.SellerProducts(ctx, rule.SellerID)
	if err != nil {
		s.logger.Error("listing seller products failed",
			"seller_id", rule.SellerID, "error", err)
		report.Errors++
		return
	}

	seen := make(map[string]bool, len(products))
	for _, product := range products {
		if seen[product.ASIN] {
			continue
		}
		seen[product.ASIN] = true
		if err := s.store.SetPaused(ctx, product.SellerID, product.ASIN, false); err != nil {
			report.Errors++
			s.logger.Error("clearing pause flag failed",
				"asin", product.ASIN, "seller_id", product.SellerID, "error", err)
			continue
		}
		report.FlagsCleared++
	}
}
