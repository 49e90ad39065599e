package pricing

import (
	"github.com/shopspring/decimal"

	"repricer/pkg/types"
)

// Kind is the strategy actually applied to one event. The strategy stored
// on the product is advisory; Choose picks the kind from market position.
type Kind string

const (
	KindChaseBuyBox    Kind = "ChaseBuyBox"
	KindOnlySeller     Kind = "OnlySeller"
	KindMaximiseProfit Kind = "MaximiseProfit"
)

// Choose selects the strategy kind for one event: a single-offer market
// means we are the only seller; holding the buy box means we maximise
// profit; otherwise we chase the box.
func Choose(oc *types.OfferChange) Kind {
	if oc.Summary.TotalOffers == 1 {
		return KindOnlySeller
	}
	if bb := oc.Summary.BuyBoxWinner; bb != nil && bb.SellerID == oc.SellerID {
		return KindMaximiseProfit
	}
	return KindChaseBuyBox
}

// chaseBuyBox undercuts (or overcuts, beat_by is signed) the competitor's
// effective price.
func chaseBuyBox(competitor *types.Offer, beatBy decimal.Decimal) decimal.Decimal {
	return competitor.EffectivePrice().Add(beatBy)
}

// onlySeller prices without a competitor: the default price when set, else
// the midpoint of the bounds.
func onlySeller(band types.PriceBand) (decimal.Decimal, types.Outcome) {
	if band.DefaultPrice != nil && band.DefaultPrice.IsPositive() {
		return *band.DefaultPrice, types.Outcome{}
	}
	if band.MinPrice != nil && band.MaxPrice != nil {
		two := decimal.NewFromInt(2)
		return band.MinPrice.Add(*band.MaxPrice).Div(two), types.Outcome{}
	}
	return decimal.Decimal{}, types.Skipped(types.SkipMissingBounds)
}

// maximiseProfit moves up toward the competitor while we hold the box.
// A competitor at or below our listed price gives us no room.
func maximiseProfit(competitor *types.Offer, listed decimal.Decimal) (decimal.Decimal, types.Outcome) {
	cp := competitor.EffectivePrice()
	if cp.LessThanOrEqual(listed) {
		return decimal.Decimal{}, types.Skipped(types.SkipCompetitorNotHigher)
	}
	return cp, types.Outcome{}
}
