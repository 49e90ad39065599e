package pricing

import (
	"github.com/shopspring/decimal"

	"repricer/pkg/types"
)

// applyBoundRule resolves one crossed bound according to the configured
// rule. competitor may be nil (OnlySeller has none); MATCH_COMPETITOR
// without one degrades to a do-nothing skip.
func applyBoundRule(rule types.PriceRule, band types.PriceBand, competitor *types.Offer) (decimal.Decimal, types.Outcome) {
	switch rule {
	case types.RuleJumpToMin:
		if band.MinPrice == nil {
			return decimal.Decimal{}, types.Skipped(types.SkipMissingBounds)
		}
		return *band.MinPrice, types.Outcome{}
	case types.RuleJumpToMax:
		if band.MaxPrice == nil {
			return decimal.Decimal{}, types.Skipped(types.SkipMissingBounds)
		}
		return *band.MaxPrice, types.Outcome{}
	case types.RuleMatchCompetitor:
		if competitor == nil {
			return decimal.Decimal{}, types.Skipped(types.SkipDoNothing)
		}
		return competitor.EffectivePrice(), types.Outcome{}
	case types.RuleDefaultPrice:
		if band.DefaultPrice == nil || !band.DefaultPrice.IsPositive() {
			return decimal.Decimal{}, types.Skipped(types.SkipDoNothing)
		}
		return *band.DefaultPrice, types.Outcome{}
	}
	// DO_NOTHING and anything unrecognized.
	return decimal.Decimal{}, types.Skipped(types.SkipDoNothing)
}

// ApplyRules turns a strategy candidate into a final price: the min/max
// rule fires for a crossed bound, then the hard bounds check rejects
// anything still outside [min, max], then the price is rounded half-up to
// two decimals.
func ApplyRules(candidate decimal.Decimal, band types.PriceBand, strategy *types.Strategy, competitor *types.Offer) (decimal.Decimal, types.Outcome) {
	final := candidate

	if band.MinPrice != nil && final.LessThan(*band.MinPrice) {
		var out types.Outcome
		final, out = applyBoundRule(strategy.MinPriceRule, band, competitor)
		if out.Status != "" {
			return decimal.Decimal{}, out
		}
	} else if band.MaxPrice != nil && final.GreaterThan(*band.MaxPrice) {
		var out types.Outcome
		final, out = applyBoundRule(strategy.MaxPriceRule, band, competitor)
		if out.Status != "" {
			return decimal.Decimal{}, out
		}
	}

	if (band.MinPrice != nil && final.LessThan(*band.MinPrice)) ||
		(band.MaxPrice != nil && final.GreaterThan(*band.MaxPrice)) {
		return decimal.Decimal{}, types.Outcome{
			Status: types.OutcomeSkipped,
			Reason: types.SkipPriceBounds,
			Err:    &types.PriceBoundsError{Candidate: candidate, Min: band.MinPrice, Max: band.MaxPrice},
		}
	}

	return final.Round(2), types.Outcome{}
}
