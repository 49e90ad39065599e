// Package normalize parses marketplace-specific offer-change payloads into
// the uniform OfferChange record the pipeline consumes.
//
// Two entry points, one output: ParseAmazon handles AnyOfferChanged queue
// messages (bare or SNS-wrapped, PascalCase or camelCase at every level);
// ParseWalmart handles the flat buybox-changed webhook JSON. Malformed
// payloads fail with types.ErrMalformed and are never retried.
package normalize

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"repricer/pkg/types"
)

// Normalizer converts raw ingress payloads into OfferChange records.
// Stateless apart from the one-shot timestamp warning.
type Normalizer struct {
	logger   *slog.Logger
	now      func() time.Time
	warnOnce sync.Once
}

// New creates a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With("component", "normalizer"),
		now:    time.Now,
	}
}

// parseTime parses ISO-8601 tolerantly: trailing Z, explicit offsets, or no
// zone at all (interpreted as UTC). Unparseable values substitute the
// current UTC time; that substitution is logged once per process.
func (n *Normalizer) parseTime(s string) time.Time {
	if s == "" {
		return n.now().UTC()
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	n.warnOnce.Do(func() {
		n.logger.Warn("unparseable event timestamp, substituting current time", "value", s)
	})
	return n.now().UTC()
}

// deriveSummary computes the competitor slots from the typed offer list.
// Slots are the best offers as seen from the raw data; whether our own
// seller appears in them is the caller's concern (the Amazon feed does not
// identify us, so self-filtering happens in the eligibility gate).
func deriveSummary(offers []types.Offer, cond types.Condition, totalOffers int) types.OfferSummary {
	sum := types.OfferSummary{TotalOffers: totalOffers}
	if sum.TotalOffers == 0 {
		sum.TotalOffers = len(offers)
	}

	for i := range offers {
		o := &offers[i]
		if o.QuantityTier != 0 || !o.Condition.Matches(cond) {
			continue
		}
		if sum.LowestPrice == nil || o.EffectivePrice().LessThan(sum.LowestPrice.EffectivePrice()) {
			sum.LowestPrice = o
		}
		if o.Fulfillment == types.FulfillmentFBA {
			if sum.LowestFBA == nil || o.EffectivePrice().LessThan(sum.LowestFBA.EffectivePrice()) {
				sum.LowestFBA = o
			}
		}
		if o.IsBuyBoxWinner && sum.BuyBoxWinner == nil {
			sum.BuyBoxWinner = o
		}
	}
	return sum
}

// sortOffers orders offers by effective price ascending, for stable output.
func sortOffers(offers []types.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].EffectivePrice().LessThan(offers[j].EffectivePrice())
	})
}

// ————————————————————————————————————————————————————————————————————————
// Mixed-case field access
// ————————————————————————————————————————————————————————————————————————
// The real marketplace sends PascalCase; internal producers send camelCase.
// Lookups are case-insensitive so one canonical name covers both.

func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func getString(m map[string]any, name string) string {
	if v, ok := lookup(m, name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getObject(m map[string]any, name string) map[string]any {
	if v, ok := lookup(m, name); ok {
		if o, ok := v.(map[string]any); ok {
			return o
		}
	}
	return nil
}

func getArray(m map[string]any, name string) []any {
	if v, ok := lookup(m, name); ok {
		if a, ok := v.([]any); ok {
			return a
		}
	}
	return nil
}

func getBool(m map[string]any, name string) bool {
	if v, ok := lookup(m, name); ok {
		if b, ok := v.(bool); ok {
			return b
		}
		if s, ok := v.(string); ok {
			return strings.EqualFold(s, "true")
		}
	}
	return false
}

func getDecimal(m map[string]any, name string) (decimal.Decimal, bool) {
	v, ok := lookup(m, name)
	if !ok || v == nil {
		return decimal.Decimal{}, false
	}
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

func getInt(m map[string]any, name string) (int, bool) {
	d, ok := getDecimal(m, name)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

func floatDecimal(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// moneyAmount reads the Amount field of a money object like
// {"Amount": 26.49, "CurrencyCode": "USD"}.
func moneyAmount(m map[string]any, name string) *decimal.Decimal {
	money := getObject(m, name)
	if money == nil {
		return nil
	}
	if d, ok := getDecimal(money, "amount"); ok {
		return &d
	}
	return nil
}
