package pricing

import (
	"repricer/pkg/types"
)

// SelectCompetitor picks exactly one competitor offer from the summary
// according to the strategy's compete_with mode. A missing slot fails with
// a mode-specific skip reason.
func SelectCompetitor(oc *types.OfferChange, cw types.CompeteWith) (*types.Offer, types.Outcome) {
	switch cw {
	case types.CompeteLowestPrice:
		if oc.Summary.LowestPrice == nil {
			return nil, types.Skipped(types.SkipNoCompetitor)
		}
		return oc.Summary.LowestPrice, types.Outcome{}
	case types.CompeteLowestFBAPrice:
		if oc.Summary.LowestFBA == nil {
			return nil, types.Skipped(types.SkipNoFBACompetitor)
		}
		return oc.Summary.LowestFBA, types.Outcome{}
	case types.CompeteMatchBuyBox:
		if oc.Summary.BuyBoxWinner == nil {
			return nil, types.Skipped(types.SkipNoBuyBox)
		}
		return oc.Summary.BuyBoxWinner, types.Outcome{}
	}
	return nil, types.Skipped(types.SkipNoCompetitor)
}

// selectTierCompetitors picks the cheapest non-self offer per quantity tier.
// Tiers with only our own offers are dropped.
func selectTierCompetitors(oc *types.OfferChange) map[int]*types.Offer {
	tiers := oc.TierOffers()
	if len(tiers) == 0 {
		return nil
	}
	picked := make(map[int]*types.Offer, len(tiers))
	for tier, offers := range tiers {
		var best *types.Offer
		for i := range offers {
			o := &offers[i]
			if o.SellerID == oc.SellerID {
				continue
			}
			if best == nil || o.EffectivePrice().LessThan(best.EffectivePrice()) {
				best = o
			}
		}
		if best != nil {
			picked[tier] = best
		}
	}
	return picked
}
