package pricing

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"repricer/pkg/types"
)

// centTolerance is the change-only threshold: a computed price within one
// cent of the listed price is not worth persisting.
var centTolerance = decimal.NewFromFloat(0.01)

// Result is the priced outcome of one event before persistence.
type Result struct {
	NewPrice        decimal.Decimal
	StrategyUsed    Kind
	CompetitorPrice *decimal.Decimal
	TierPrices      map[int]decimal.Decimal
}

// Compute runs the pure half of the pipeline for one eligible event:
// strategy selection, candidate computation, bounds rules, B2B tiers, and
// the change-only check. Pure; no store access.
func Compute(d *Decision, logger *slog.Logger) (*Result, types.Outcome) {
	kind := Choose(d.Change)
	band := d.Product.Bounds()

	var (
		candidate  decimal.Decimal
		competitor *types.Offer
		out        types.Outcome
	)
	switch kind {
	case KindOnlySeller:
		candidate, out = onlySeller(band)
	case KindMaximiseProfit:
		competitor, out = SelectCompetitor(d.Change, d.Strategy.CompeteWith)
		if out.Status == "" {
			candidate, out = maximiseProfit(competitor, d.Product.ListedPrice)
		}
	default:
		competitor, out = SelectCompetitor(d.Change, d.Strategy.CompeteWith)
		if out.Status == "" {
			candidate = chaseBuyBox(competitor, d.Strategy.BeatBy)
		}
	}
	if out.Status != "" {
		return nil, out
	}

	final, out := ApplyRules(candidate, band, d.Strategy, competitor)
	if out.Status != "" {
		return nil, out
	}

	if final.Sub(d.Product.ListedPrice.Round(2)).Abs().LessThanOrEqual(centTolerance) {
		return nil, types.Unchanged()
	}

	res := &Result{NewPrice: final, StrategyUsed: kind}
	if competitor != nil {
		cp := competitor.EffectivePrice()
		res.CompetitorPrice = &cp
	}
	if d.Product.IsB2B && kind == KindChaseBuyBox {
		res.TierPrices = computeTierPrices(d, logger)
	}
	return res, types.Outcome{}
}

// computeTierPrices reprices each B2B quantity tier against its own
// competitor and price band. A tier that cannot be priced is dropped, not
// fatal for the event.
func computeTierPrices(d *Decision, logger *slog.Logger) map[int]decimal.Decimal {
	competitors := selectTierCompetitors(d.Change)
	if len(competitors) == 0 {
		return nil
	}
	prices := make(map[int]decimal.Decimal, len(competitors))
	for tier, comp := range competitors {
		band, ok := d.Product.BusinessPricing[tier]
		if !ok {
			continue
		}
		candidate := chaseBuyBox(comp, d.Strategy.BeatBy)
		final, out := ApplyRules(candidate, band, d.Strategy, comp)
		if out.Status != "" {
			logger.Debug("tier not priced",
				"asin", d.Product.ASIN, "tier", tier, "reason", out.Reason)
			continue
		}
		prices[tier] = final
	}
	if len(prices) == 0 {
		return nil
	}
	return prices
}
