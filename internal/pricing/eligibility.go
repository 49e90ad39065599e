// Package pricing holds the decision core of the repricer: the eligibility
// gate, competitor selection, the three strategies, and the bounds rules.
// Everything here is a pure function of the event, the product state, and
// the strategy configuration; only the gate reads the store, and nothing
// here ever writes.
package pricing

import (
	"context"
	"log/slog"
	"time"

	"repricer/pkg/types"
)

// Catalog is the read-only slice of the store the eligibility gate needs.
type Catalog interface {
	GetProduct(ctx context.Context, asin, sellerID, sku string) (*types.Product, error)
	FindSKU(ctx context.Context, asin, sellerID string) (string, error)
	FindSeller(ctx context.Context, asin string) (string, error)
	GetStrategy(ctx context.Context, id string) (*types.Strategy, error)
	IsPaused(ctx context.Context, sellerID, asin string) (bool, error)
	GetResetRules(ctx context.Context, sellerID string, m types.Marketplace) (*types.ResetRuleSet, error)
}

// Decision is what the gate hands to the strategy engine when an event
// passes every check.
type Decision struct {
	Product  *types.Product
	Strategy *types.Strategy
	Change   *types.OfferChange
}

// Gate applies the skip rules in a fixed order; the first hit
// short-circuits with its reason. The gate never mutates state.
type Gate struct {
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewGate creates an eligibility gate.
func NewGate(catalog Catalog, logger *slog.Logger) *Gate {
	return &Gate{
		catalog: catalog,
		logger:  logger.With("component", "eligibility"),
		now:     time.Now,
	}
}

// Evaluate runs the ordered checks: reset window, product lookup, pause
// flag, stock, active status, repricer toggle, strategy lookup, and
// strategy-aware self-competition. When the returned Decision is nil the
// Outcome carries the skip reason or error.
func (g *Gate) Evaluate(ctx context.Context, oc *types.OfferChange) (*Decision, types.Outcome) {
	// 0. Marketplace notifications omit the seller id; resolve ours from
	// the listing records before anything seller-keyed runs.
	if oc.SellerID == "" {
		sellerID, err := g.catalog.FindSeller(ctx, oc.ProductID)
		if err != nil {
			return nil, types.Failed(err)
		}
		if sellerID == "" {
			return nil, types.Skipped(types.SkipProductNotFound)
		}
		oc.SellerID = sellerID
	}

	// 1. Reset window: repricing is suspended while the seller's daily
	// reset is in effect.
	rules, err := g.catalog.GetResetRules(ctx, oc.SellerID, oc.Marketplace)
	if err != nil {
		return nil, types.Failed(err)
	}
	if rules != nil && rules.Enabled {
		hour := g.now().In(oc.Marketplace.Location()).Hour()
		if rules.InWindow(hour) {
			return nil, types.Skipped(types.SkipResetWindow)
		}
	}

	// 2. Resolve the listing. Walmart item ids share the ASIN keyspace.
	asin := oc.ProductID
	sku, err := g.catalog.FindSKU(ctx, asin, oc.SellerID)
	if err != nil {
		return nil, types.Failed(err)
	}
	if sku == "" {
		return nil, types.Skipped(types.SkipProductNotFound)
	}
	product, err := g.catalog.GetProduct(ctx, asin, oc.SellerID, sku)
	if err != nil {
		return nil, types.Failed(err)
	}
	if product == nil {
		return nil, types.Skipped(types.SkipProductNotFound)
	}

	// 3. Pause flag.
	paused, err := g.catalog.IsPaused(ctx, oc.SellerID, asin)
	if err != nil {
		return nil, types.Failed(err)
	}
	if paused {
		return nil, types.Skipped(types.SkipPaused)
	}

	// 4. Stock.
	if product.Quantity <= 0 {
		return nil, types.Skipped(types.SkipOutOfStock)
	}

	// 5. Active status.
	if !product.Active() {
		return nil, types.Skipped(types.SkipInactive)
	}
	if !product.RepricerEnabled {
		return nil, types.Skipped(types.SkipRepricerDisabled)
	}

	// 6. Strategy.
	strategy, err := g.catalog.GetStrategy(ctx, product.StrategyID)
	if err != nil {
		return nil, types.Failed(err)
	}
	if strategy == nil {
		return nil, types.Skipped(types.SkipStrategyNotFound)
	}
	if !strategy.Enabled || !strategy.AppliesTo(oc.ItemCondition) {
		return nil, types.Skipped(types.SkipStrategyDisabled)
	}

	// 7. Self-competition: if the slot the strategy competes against is
	// our own offer, there is nothing to chase.
	if isSelfCompeting(oc, strategy.CompeteWith) {
		return nil, types.Skipped(types.SkipSelfCompetition)
	}

	return &Decision{Product: product, Strategy: strategy, Change: oc}, types.Outcome{}
}

// isSelfCompeting checks the summary slot matching the strategy's
// compete_with mode against our seller id. A single-offer market is never
// self-competition: the only offer is ours and the OnlySeller strategy
// handles it without a competitor.
func isSelfCompeting(oc *types.OfferChange, cw types.CompeteWith) bool {
	if oc.Summary.TotalOffers <= 1 {
		return false
	}
	var slot *types.Offer
	switch cw {
	case types.CompeteLowestPrice:
		slot = oc.Summary.LowestPrice
	case types.CompeteLowestFBAPrice:
		slot = oc.Summary.LowestFBA
	case types.CompeteMatchBuyBox:
		slot = oc.Summary.BuyBoxWinner
	}
	return slot != nil && slot.SellerID == oc.SellerID
}
