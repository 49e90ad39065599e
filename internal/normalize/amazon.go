package normalize

import (
	"strings"

	"github.com/goccy/go-json"

	"repricer/pkg/types"
)

// ParseAmazon normalizes an AnyOfferChanged queue message. The body is
// either the notification itself or an SNS envelope whose Message field is
// a JSON string wrapping it. Field casing is accepted in both PascalCase
// and camelCase at every level.
func (n *Normalizer) ParseAmazon(body []byte) (*types.OfferChange, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, types.Malformedf("decode amazon message: %v", err)
	}

	notification := envelope
	if getString(envelope, "type") == "Notification" {
		inner := getString(envelope, "message")
		if inner == "" {
			return nil, types.Malformedf("sns envelope has no Message")
		}
		notification = nil
		if err := json.Unmarshal([]byte(inner), &notification); err != nil {
			return nil, types.Malformedf("decode sns message: %v", err)
		}
	}

	payload := getObject(notification, "payload")
	if payload == nil {
		return nil, types.Malformedf("notification has no Payload")
	}
	// The SP-API wraps the notification body one level deeper; internal
	// producers flatten it.
	if inner := getObject(payload, "anyOfferChangedNotification"); inner != nil {
		payload = inner
	}

	trigger := getObject(payload, "offerChangeTrigger")
	if trigger == nil {
		return nil, types.Malformedf("payload has no OfferChangeTrigger")
	}

	asin := getString(trigger, "asin")
	if asin == "" {
		return nil, types.Malformedf("trigger has no ASIN")
	}
	cond := types.Condition(strings.ToUpper(getString(trigger, "itemCondition")))
	if cond == "" {
		cond = types.ConditionNew
	}

	offers := parseAmazonOffers(getArray(payload, "offers"))
	summaryData := getObject(payload, "summary")

	// Offers[] can be elided by the marketplace when the summary alone
	// changed; synthesize offers from the summary price lists so the
	// competitor slots still populate.
	if len(offers) == 0 && summaryData != nil {
		offers = offersFromSummary(summaryData)
	}
	sortOffers(offers)

	// SP-API notifications do not carry a seller id in the trigger; internal
	// producers do. When absent the eligibility gate resolves our seller from
	// the listing records for the ASIN.
	sellerID := getString(trigger, "sellerId")

	oc := &types.OfferChange{
		ProductID:     asin,
		SellerID:      sellerID,
		Marketplace:   types.MarketplaceFromID(getString(trigger, "marketplaceId")),
		Platform:      types.PlatformAmazon,
		EventTime:     n.parseTime(getString(trigger, "timeOfOfferChange")),
		ItemCondition: cond,
		Offers:        offers,
	}
	oc.Summary = deriveSummary(offers, cond, totalOfferCount(summaryData))
	return oc, nil
}

func parseAmazonOffers(raw []any) []types.Offer {
	offers := make([]types.Offer, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, ok := getDecimal(getObject(m, "listingPrice"), "amount")
		if !ok {
			continue
		}

		o := types.Offer{
			SellerID:       getString(m, "sellerId"),
			Price:          price,
			LandedPrice:    moneyAmount(m, "landedPrice"),
			Shipping:       moneyAmount(m, "shipping"),
			Condition:      types.Condition(strings.ToUpper(getString(m, "subCondition"))),
			Fulfillment:    types.FulfillmentFBM,
			IsBuyBoxWinner: getBool(m, "isBuyBoxWinner"),
		}
		if o.Condition == "" {
			o.Condition = types.ConditionNew
		}
		if getBool(m, "isFulfilledByAmazon") {
			o.Fulfillment = types.FulfillmentFBA
		}
		if prime := getObject(m, "primeInformation"); prime != nil {
			o.IsPrime = getBool(prime, "isPrime") || getBool(prime, "isOfferPrime")
		}
		if tier, ok := getInt(m, "quantityTier"); ok {
			o.QuantityTier = tier
		}
		offers = append(offers, o)
	}
	return offers
}

// offersFromSummary rebuilds a minimal offer list from Summary.LowestPrices
// and Summary.BuyBoxPrices when the Offers array is absent.
func offersFromSummary(summary map[string]any) []types.Offer {
	var offers []types.Offer

	for _, item := range getArray(summary, "lowestPrices") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, ok := getDecimal(getObject(m, "listingPrice"), "amount")
		if !ok {
			continue
		}
		o := types.Offer{
			SellerID:    getString(m, "sellerId"),
			Price:       price,
			LandedPrice: moneyAmount(m, "landedPrice"),
			Condition:   summaryCondition(m),
			Fulfillment: types.FulfillmentFBM,
		}
		if strings.EqualFold(getString(m, "fulfillmentChannel"), "Amazon") {
			o.Fulfillment = types.FulfillmentFBA
		}
		offers = append(offers, o)
	}

	for _, item := range getArray(summary, "buyBoxPrices") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, ok := getDecimal(getObject(m, "listingPrice"), "amount")
		if !ok {
			continue
		}
		offers = append(offers, types.Offer{
			SellerID:       getString(m, "sellerId"),
			Price:          price,
			LandedPrice:    moneyAmount(m, "landedPrice"),
			Condition:      summaryCondition(m),
			Fulfillment:    types.FulfillmentFBM,
			IsBuyBoxWinner: true,
		})
	}
	return offers
}

// summaryCondition reads a summary entry's condition, defaulting to NEW the
// same way parseAmazonOffers does so synthesized offers still match the
// item condition.
func summaryCondition(m map[string]any) types.Condition {
	if c := strings.ToUpper(getString(m, "condition")); c != "" {
		return types.Condition(c)
	}
	return types.ConditionNew
}

// totalOfferCount reads the summary's offer count; 0 means "derive from the
// offer list".
func totalOfferCount(summary map[string]any) int {
	if summary == nil {
		return 0
	}
	if n, ok := getInt(summary, "totalOfferCount"); ok {
		return n
	}
	total := 0
	for _, item := range getArray(summary, "numberOfOffers") {
		if m, ok := item.(map[string]any); ok {
			if n, ok := getInt(m, "offerCount"); ok {
				total += n
			}
		}
	}
	return total
}
