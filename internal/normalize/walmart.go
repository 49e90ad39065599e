package normalize

import (
	"strings"

	"github.com/goccy/go-json"

	"repricer/pkg/types"
)

// walmartWebhook is the flat JSON body of the Walmart buybox-changed webhook.
type walmartWebhook struct {
	EventType           string          `json:"eventType"`
	ItemID              string          `json:"itemId"`
	SellerID            string          `json:"sellerId"`
	Marketplace         string          `json:"marketplace"`
	EventTime           string          `json:"eventTime"`
	CurrentBuyboxPrice  *float64        `json:"currentBuyboxPrice"`
	CurrentBuyboxWinner string          `json:"currentBuyboxWinner"`
	Offers              []walmartOffer  `json:"offers"`
}

type walmartOffer struct {
	SellerID           string   `json:"sellerId"`
	Price              *float64 `json:"price"`
	Shipping           *float64 `json:"shipping"`
	Condition          string   `json:"condition"`
	FulfillmentLagTime int      `json:"fulfillmentLagTime"`
}

// ParseWalmart normalizes a Walmart webhook payload. Item condition
// defaults to NEW and the marketplace to US. Unlike the Amazon feed, the
// webhook identifies our own seller, so our offers are excluded from the
// summary here rather than in the eligibility gate.
func (n *Normalizer) ParseWalmart(body []byte) (*types.OfferChange, error) {
	var wh walmartWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, types.Malformedf("decode walmart webhook: %v", err)
	}
	if wh.ItemID == "" {
		return nil, types.Malformedf("walmart webhook has no itemId")
	}
	if wh.SellerID == "" {
		return nil, types.Malformedf("walmart webhook has no sellerId")
	}

	marketplace := types.MarketplaceUS
	if wh.Marketplace != "" {
		marketplace = types.Marketplace(strings.ToUpper(wh.Marketplace))
	}

	totalOffers := len(wh.Offers)
	offers := make([]types.Offer, 0, len(wh.Offers))
	for _, wo := range wh.Offers {
		if wo.Price == nil || wo.SellerID == wh.SellerID {
			continue
		}
		o := types.Offer{
			SellerID:       wo.SellerID,
			Price:          floatDecimal(*wo.Price),
			Condition:      types.ConditionNew,
			Fulfillment:    types.FulfillmentFBM,
			IsBuyBoxWinner: wo.SellerID == wh.CurrentBuyboxWinner,
		}
		if wo.Condition != "" {
			o.Condition = types.Condition(strings.ToUpper(wo.Condition))
		}
		if wo.Shipping != nil {
			d := floatDecimal(*wo.Shipping)
			o.Shipping = &d
			landed := o.Price.Add(d)
			o.LandedPrice = &landed
		}
		offers = append(offers, o)
	}

	// No offer list but a known buybox holder: synthesize that one
	// competitor so the pipeline still has something to price against.
	if len(offers) == 0 && wh.CurrentBuyboxPrice != nil &&
		wh.CurrentBuyboxWinner != "" && wh.CurrentBuyboxWinner != wh.SellerID {
		offers = append(offers, types.Offer{
			SellerID:       wh.CurrentBuyboxWinner,
			Price:          floatDecimal(*wh.CurrentBuyboxPrice),
			Condition:      types.ConditionNew,
			Fulfillment:    types.FulfillmentFBM,
			IsBuyBoxWinner: true,
		})
		if totalOffers == 0 {
			totalOffers = 2 // the buybox holder plus us
		}
	}
	sortOffers(offers)

	oc := &types.OfferChange{
		ProductID:     wh.ItemID,
		SellerID:      wh.SellerID,
		Marketplace:   marketplace,
		Platform:      types.PlatformWalmart,
		EventTime:     n.parseTime(wh.EventTime),
		ItemCondition: types.ConditionNew,
		Offers:        offers,
	}
	oc.Summary = deriveSummary(offers, types.ConditionNew, totalOffers)
	return oc, nil
}
