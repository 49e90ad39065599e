// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the repricer — products,
// strategies, normalized offer-change events, and calculated prices. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Platform identifies which marketplace produced an offer-change event.
type Platform string

const (
	PlatformAmazon  Platform = "AMAZON"
	PlatformWalmart Platform = "WALMART"
)

// Condition is the item condition of a listing or a competing offer.
// Stored uppercase; comparisons are case-insensitive.
type Condition string

const (
	ConditionNew         Condition = "NEW"
	ConditionUsed        Condition = "USED"
	ConditionCollectible Condition = "COLLECTIBLE"
	ConditionRefurbished Condition = "REFURBISHED"
)

// Matches reports whether two conditions are equal ignoring case.
func (c Condition) Matches(other Condition) bool {
	return strings.EqualFold(string(c), string(other))
}

// Fulfillment distinguishes Amazon-fulfilled offers from merchant-fulfilled.
type Fulfillment string

const (
	FulfillmentFBA Fulfillment = "FBA"
	FulfillmentFBM Fulfillment = "FBM"
)

// ListingStatus is the lifecycle state of a product listing. Only Active
// listings are repriced.
type ListingStatus string

const (
	StatusActive     ListingStatus = "Active"
	StatusInactive   ListingStatus = "Inactive"
	StatusIncomplete ListingStatus = "Incomplete"
	StatusSuppressed ListingStatus = "Suppressed"
)

// StrategyType is the seller's configured intent. The engine treats it as
// advisory: the actual strategy is selected per event from market position.
type StrategyType string

const (
	StrategyWinBuyBox      StrategyType = "WIN_BUYBOX"
	StrategyMaximiseProfit StrategyType = "MAXIMISE_PROFIT"
	StrategyOnlySeller     StrategyType = "ONLY_SELLER"
)

// CompeteWith selects which competitor slot of the offer summary a strategy
// prices against.
type CompeteWith string

const (
	CompeteLowestPrice    CompeteWith = "LOWEST_PRICE"
	CompeteLowestFBAPrice CompeteWith = "LOWEST_FBA_PRICE"
	CompeteMatchBuyBox    CompeteWith = "MATCH_BUYBOX"
)

// PriceRule is applied when a strategy's candidate price crosses a bound.
type PriceRule string

const (
	RuleJumpToMin       PriceRule = "JUMP_TO_MIN"
	RuleJumpToMax       PriceRule = "JUMP_TO_MAX"
	RuleMatchCompetitor PriceRule = "MATCH_COMPETITOR"
	RuleDefaultPrice    PriceRule = "DEFAULT_PRICE"
	RuleDoNothing       PriceRule = "DO_NOTHING"
)

// ————————————————————————————————————————————————————————————————————————
// Products and strategies
// ————————————————————————————————————————————————————————————————————————

// PriceBand holds the min/max/default bounds for a listing or one quantity
// tier of a B2B listing.
type PriceBand struct {
	MinPrice     *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice     *decimal.Decimal `json:"max_price,omitempty"`
	DefaultPrice *decimal.Decimal `json:"default_price,omitempty"`
}

// Product is one listing of an ASIN by a seller, keyed (asin, seller_id, sku).
// Created and updated by external listing-sync jobs; the core only reads it.
type Product struct {
	ASIN        string      `json:"asin"`
	SKU         string      `json:"sku"`
	SellerID    string      `json:"seller_id"`
	Marketplace Marketplace `json:"marketplace"`

	ListedPrice  decimal.Decimal  `json:"listed_price"`
	MinPrice     *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice     *decimal.Decimal `json:"max_price,omitempty"`
	DefaultPrice *decimal.Decimal `json:"default_price,omitempty"`

	ItemCondition   Condition     `json:"item_condition"`
	Quantity        int           `json:"quantity"`
	Status          ListingStatus `json:"status"`
	RepricerEnabled bool          `json:"repricer_enabled"`
	StrategyID      string        `json:"strategy_id"`

	IsB2B           bool              `json:"is_b2b"`
	BusinessPricing map[int]PriceBand `json:"business_pricing,omitempty"`
	InventoryAge    int               `json:"inventory_age"`
}

// UnmarshalJSON accepts the abbreviated field names the listing-sync jobs
// write ("min"/"max", "inventory_quantity") alongside the canonical ones.
func (p *Product) UnmarshalJSON(data []byte) error {
	type ProductAlias Product
	aux := struct {
		*ProductAlias
		Min          *decimal.Decimal `json:"min"`
		Max          *decimal.Decimal `json:"max"`
		InventoryQty *int             `json:"inventory_quantity"`
	}{ProductAlias: (*ProductAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.MinPrice == nil {
		p.MinPrice = aux.Min
	}
	if p.MaxPrice == nil {
		p.MaxPrice = aux.Max
	}
	if aux.InventoryQty != nil {
		p.Quantity = *aux.InventoryQty
	}
	return nil
}

// Active reports whether the listing status is Active, case-insensitively.
func (p *Product) Active() bool {
	return strings.EqualFold(string(p.Status), string(StatusActive))
}

// Bounds returns the top-level price band of the product.
func (p *Product) Bounds() PriceBand {
	return PriceBand{MinPrice: p.MinPrice, MaxPrice: p.MaxPrice, DefaultPrice: p.DefaultPrice}
}

// Strategy is a seller's repricing configuration, shared by many products.
// An empty ASIN scope applies to all of the seller's ASINs unless overridden.
type Strategy struct {
	ID       string       `json:"id"`
	SellerID string       `json:"seller_id"`
	ASIN     string       `json:"asin,omitempty"`
	Type     StrategyType `json:"type"`

	CompeteWith  CompeteWith     `json:"compete_with"`
	BeatBy       decimal.Decimal `json:"beat_by"` // signed: negative undercuts
	MinPriceRule PriceRule       `json:"min_price_rule"`
	MaxPriceRule PriceRule       `json:"max_price_rule"`

	Enabled    bool        `json:"enabled"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// AppliesTo reports whether the strategy covers the given item condition.
// An empty condition list covers everything.
func (s *Strategy) AppliesTo(cond Condition) bool {
	if len(s.Conditions) == 0 {
		return true
	}
	for _, c := range s.Conditions {
		if c.Matches(cond) {
			return true
		}
	}
	return false
}

// ————————————————————————————————————————————————————————————————————————
// Offer-change events
// ————————————————————————————————————————————————————————————————————————

// Offer is a single competing offer inside an offer-change event.
// Prices are kept as received; EffectivePrice is the comparison price.
type Offer struct {
	SellerID       string           `json:"seller_id"`
	Price          decimal.Decimal  `json:"price"`
	LandedPrice    *decimal.Decimal `json:"landed_price,omitempty"`
	Shipping       *decimal.Decimal `json:"shipping,omitempty"`
	Condition      Condition        `json:"condition"`
	Fulfillment    Fulfillment      `json:"fulfillment"`
	IsBuyBoxWinner bool             `json:"is_buybox_winner"`
	IsPrime        bool             `json:"is_prime"`
	QuantityTier   int              `json:"quantity_tier,omitempty"` // 0 = standard offer
}

// EffectivePrice is the landed price when present, else the listing price.
// All downstream comparisons use this value.
func (o Offer) EffectivePrice() decimal.Decimal {
	if o.LandedPrice != nil {
		return *o.LandedPrice
	}
	return o.Price
}

// OfferSummary is derived from the raw offer list during normalization.
// Competitor slots are the best offer as seen from the raw data — possibly
// our own seller; self-filtering happens in the eligibility gate.
type OfferSummary struct {
	TotalOffers  int    `json:"total_offers"`
	LowestPrice  *Offer `json:"lowest_price_competitor,omitempty"`
	LowestFBA    *Offer `json:"lowest_fba_competitor,omitempty"`
	BuyBoxWinner *Offer `json:"buybox_winner,omitempty"`
}

// OfferChange is the uniform offer-change record both ingress paths
// normalize into. Transient; lives only for one event's processing.
type OfferChange struct {
	ProductID     string       `json:"product_id"` // ASIN or Walmart item id
	SellerID      string       `json:"seller_id"`
	Marketplace   Marketplace  `json:"marketplace"`
	Platform      Platform     `json:"platform"`
	EventTime     time.Time    `json:"event_time"`
	ItemCondition Condition    `json:"item_condition"`
	Offers        []Offer      `json:"offers"`
	Summary       OfferSummary `json:"summary"`
}

// TierOffers groups offers by quantity tier, excluding the standard tier 0.
// Used for B2B per-tier competitor selection.
func (oc *OfferChange) TierOffers() map[int][]Offer {
	var tiers map[int][]Offer
	for _, o := range oc.Offers {
		if o.QuantityTier == 0 {
			continue
		}
		if tiers == nil {
			tiers = make(map[int][]Offer)
		}
		tiers[o.QuantityTier] = append(tiers[o.QuantityTier], o)
	}
	return tiers
}

// ————————————————————————————————————————————————————————————————————————
// Output artifacts
// ————————————————————————————————————————————————————————————————————————

// CalculatedPrice is the engine's output, written to the store with a
// 2-hour TTL and drained by an external publisher.
type CalculatedPrice struct {
	ASIN     string `json:"asin"`
	SKU      string `json:"sku"`
	SellerID string `json:"seller_id"`

	OldPrice decimal.Decimal `json:"old_price"`
	NewPrice decimal.Decimal `json:"new_price"`

	StrategyUsed    string           `json:"strategy_used"`
	StrategyID      string           `json:"strategy_id"`
	CompetitorPrice *decimal.Decimal `json:"competitor_price,omitempty"`

	// TierPrices carries per-quantity-tier prices for B2B listings.
	TierPrices map[int]decimal.Decimal `json:"tier_prices,omitempty"`

	CalculatedAt     time.Time `json:"calculated_at"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
}

// ResetRuleSet is a seller's daily reset window configuration. Hours are
// wall-clock hour-of-day in the seller's marketplace timezone.
type ResetRuleSet struct {
	SellerID         string      `json:"seller_id"`
	Marketplace      Marketplace `json:"marketplace"`
	Enabled          bool        `json:"enabled"`
	ResetHour        int         `json:"reset_hour"`
	ResumeHour       int         `json:"resume_hour"`
	ProductCondition string      `json:"product_condition"` // "ALL" or a condition
}

// InWindow reports whether hour falls inside the reset window. Windows may
// cross midnight (reset 23 → resume 3 skips 23,0,1,2,3). Equal hours mean
// no window is configured.
func (r ResetRuleSet) InWindow(hour int) bool {
	if r.ResetHour == r.ResumeHour {
		return false
	}
	if r.ResetHour < r.ResumeHour {
		return hour >= r.ResetHour && hour <= r.ResumeHour
	}
	return hour >= r.ResetHour || hour <= r.ResumeHour
}
