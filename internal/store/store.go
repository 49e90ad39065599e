// Package store is the typed facade over Redis that owns all persistent
// repricer state: product records, strategies, calculated prices, pause
// flags, and reset-rule sets.
//
// Key layout (shared with the listing-sync jobs and the price publisher):
//
//	ASIN_{asin}                      hash, field "{seller_id}:{sku}" → product JSON
//	CALCULATED_PRICES:{seller_id}    hash, field "{sku}" → calculated price JSON, TTL 2h
//	repricing_paused:{seller}:{asin} string, presence = paused, value = timestamp
//	strategy:{id}                    hash of strategy fields
//	reset_rules:{seller}:{market}    hash of reset-rule fields ("all" = any market)
//
// Redis errors surface as Transient (retryable); undecodable stored JSON
// surfaces as Malformed (fatal for the event). No cross-event state is kept
// in-process.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"repricer/internal/config"
	"repricer/pkg/types"
)

const (
	asinKeyPrefix      = "ASIN_"
	calcPricePrefix    = "CALCULATED_PRICES:"
	pausedKeyPrefix    = "repricing_paused:"
	strategyKeyPrefix  = "strategy:"
	resetRuleKeyPrefix = "reset_rules:"
)

// Store wraps a pooled Redis client with the repricer's access patterns.
// Every operation runs under its own OpTimeout-bounded context.
type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
	priceTTL  time.Duration
	logger    *slog.Logger
}

// Open connects to Redis and verifies the connection.
func Open(cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	s := &Store{
		rdb:       rdb,
		opTimeout: cfg.OpTimeout,
		priceTTL:  cfg.PriceTTL,
		logger:    logger.With("component", "store"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping reports store health.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return types.Transientf("ping")
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func asinKey(asin string) string          { return asinKeyPrefix + asin }
func productField(seller, sku string) string { return seller + ":" + sku }
func calcPriceKey(seller string) string   { return calcPricePrefix + seller }
func pausedKey(seller, asin string) string {
	return pausedKeyPrefix + seller + ":" + asin
}

// GetProduct fetches one product record. Returns nil, nil when absent.
func (s *Store) GetProduct(ctx context.Context, asin, sellerID, sku string) (*types.Product, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	raw, err := s.rdb.HGet(ctx, asinKey(asin), productField(sellerID, sku)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, types.Transientf("get product %s/%s/%s: %v", asin, sellerID, sku, err)
	}

	var p types.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, types.Malformedf("decode product %s/%s/%s: %v", asin, sellerID, sku, err)
	}
	// The hash field is authoritative for identity.
	p.ASIN, p.SellerID, p.SKU = asin, sellerID, sku
	return &p, nil
}

// FindSKU walks the "{seller_id}:{sku}" fields under ASIN_{asin} and returns
// the first SKU listed by the seller, or "" when the seller has no listing.
func (s *Store) FindSKU(ctx context.Context, asin, sellerID string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	fields, err := s.rdb.HKeys(ctx, asinKey(asin)).Result()
	if err != nil {
		return "", types.Transientf("list skus for %s: %v", asin, err)
	}
	prefix := sellerID + ":"
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix), nil
		}
	}
	return "", nil
}

// FindSeller returns the first seller with a listing under ASIN_{asin}, or
// "" when nobody lists it. Marketplace notifications omit the seller id, so
// the gate resolves ours from the hash fields.
func (s *Store) FindSeller(ctx context.Context, asin string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	fields, err := s.rdb.HKeys(ctx, asinKey(asin)).Result()
	if err != nil {
		return "", types.Transientf("list sellers for %s: %v", asin, err)
	}
	for _, f := range fields {
		if seller, _, ok := strings.Cut(f, ":"); ok {
			return seller, nil
		}
	}
	return "", nil
}

// GetStock returns the current quantity for a listing. The second return is
// false when the product does not exist.
func (s *Store) GetStock(ctx context.Context, asin, sellerID, sku string) (int, bool, error) {
	p, err := s.GetProduct(ctx, asin, sellerID, sku)
	if err != nil {
		return 0, false, err
	}
	if p == nil {
		return 0, false, nil
	}
	return p.Quantity, true, nil
}

// GetStrategy fetches a strategy by id. Returns nil, nil when absent.
func (s *Store) GetStrategy(ctx context.Context, id string) (*types.Strategy, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	raw, err := s.rdb.HGetAll(ctx, strategyKeyPrefix+id).Result()
	if err != nil {
		return nil, types.Transientf("get strategy %s: %v", id, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	st, err := parseStrategy(id, raw)
	if err != nil {
		return nil, types.Malformedf("decode strategy %s: %v", id, err)
	}
	return st, nil
}

// parseStrategy converts the flat string hash Redis stores into a Strategy.
func parseStrategy(id string, raw map[string]string) (*types.Strategy, error) {
	st := &types.Strategy{
		ID:           id,
		SellerID:     raw["seller_id"],
		ASIN:         raw["asin"],
		Type:         types.StrategyType(raw["type"]),
		CompeteWith:  types.CompeteWith(raw["compete_with"]),
		MinPriceRule: types.PriceRule(raw["min_price_rule"]),
		MaxPriceRule: types.PriceRule(raw["max_price_rule"]),
	}
	if st.CompeteWith == "" {
		st.CompeteWith = types.CompeteMatchBuyBox
	}
	if st.MinPriceRule == "" {
		st.MinPriceRule = types.RuleJumpToMin
	}
	if st.MaxPriceRule == "" {
		st.MaxPriceRule = types.RuleJumpToMax
	}
	if v, ok := raw["beat_by"]; ok && v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("beat_by %q: %w", v, err)
		}
		st.BeatBy = d
	}
	if v, ok := raw["enabled"]; ok {
		st.Enabled = strings.EqualFold(v, "true") || v == "1"
	} else {
		st.Enabled = true
	}
	if v, ok := raw["conditions"]; ok && v != "" {
		for _, c := range strings.Split(v, ",") {
			st.Conditions = append(st.Conditions, types.Condition(strings.ToUpper(strings.TrimSpace(c))))
		}
	}
	return st, nil
}

// SaveCalculatedPrice writes one calculated price into the seller's hash and
// refreshes the 2-hour TTL. The HSET and EXPIRE are pipelined so a crash
// between them leaves either both or neither. Change-only semantics are the
// caller's responsibility.
func (s *Store) SaveCalculatedPrice(ctx context.Context, cp *types.CalculatedPrice) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	data, err := json.Marshal(cp)
	if err != nil {
		return types.Malformedf("encode calculated price %s/%s: %v", cp.SellerID, cp.SKU, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, calcPriceKey(cp.SellerID), cp.SKU, data)
	pipe.Expire(ctx, calcPriceKey(cp.SellerID), s.priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.Transientf("save calculated price %s/%s: %v", cp.SellerID, cp.SKU, err)
	}

	s.logger.Info("calculated price saved",
		"asin", cp.ASIN,
		"seller_id", cp.SellerID,
		"sku", cp.SKU,
		"old_price", cp.OldPrice,
		"new_price", cp.NewPrice,
		"strategy", cp.StrategyUsed,
	)
	return nil
}

// GetCalculatedPrice reads back a previously calculated price. Returns
// nil, nil when absent or expired.
func (s *Store) GetCalculatedPrice(ctx context.Context, sellerID, sku string) (*types.CalculatedPrice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	raw, err := s.rdb.HGet(ctx, calcPriceKey(sellerID), sku).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, types.Transientf("get calculated price %s/%s: %v", sellerID, sku, err)
	}
	var cp types.CalculatedPrice
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, types.Malformedf("decode calculated price %s/%s: %v", sellerID, sku, err)
	}
	return &cp, nil
}

// IsPaused reports whether repricing is suppressed for (seller, asin).
func (s *Store) IsPaused(ctx context.Context, sellerID, asin string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.rdb.Exists(ctx, pausedKey(sellerID, asin)).Result()
	if err != nil {
		return false, types.Transientf("check pause flag %s:%s: %v", sellerID, asin, err)
	}
	return n > 0, nil
}

// SetPaused sets or clears the pause flag. The flag value is the timestamp
// the pause was set, for operator inspection.
func (s *Store) SetPaused(ctx context.Context, sellerID, asin string, paused bool) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	key := pausedKey(sellerID, asin)
	var err error
	if paused {
		err = s.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), 0).Err()
	} else {
		err = s.rdb.Del(ctx, key).Err()
	}
	if err != nil {
		return types.Transientf("set pause flag %s:%s: %v", sellerID, asin, err)
	}
	return nil
}

// GetResetRules fetches the seller's reset rules for a marketplace, falling
// back to the seller's "all"-markets rule set. Returns nil, nil when the
// seller has none.
func (s *Store) GetResetRules(ctx context.Context, sellerID string, m types.Marketplace) (*types.ResetRuleSet, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	for _, market := range []string{string(m), "all"} {
		raw, err := s.rdb.HGetAll(ctx, resetRuleKeyPrefix+sellerID+":"+market).Result()
		if err != nil {
			return nil, types.Transientf("get reset rules %s:%s: %v", sellerID, market, err)
		}
		if len(raw) == 0 {
			continue
		}
		rules := parseResetRules(sellerID, m, raw)
		return &rules, nil
	}
	return nil, nil
}

func parseResetRules(sellerID string, m types.Marketplace, raw map[string]string) types.ResetRuleSet {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	cond := raw["product_condition"]
	if cond == "" {
		cond = "ALL"
	}
	return types.ResetRuleSet{
		SellerID:         sellerID,
		Marketplace:      m,
		Enabled:          strings.EqualFold(raw["enabled"], "true") || raw["enabled"] == "1",
		ResetHour:        atoi(raw["reset_hour"]),
		ResumeHour:       atoi(raw["resume_hour"]),
		ProductCondition: cond,
	}
}

// ResetRuleSets scans all configured reset-rule sets. Used by the reset
// scheduler's hourly sweep.
func (s *Store) ResetRuleSets(ctx context.Context) ([]types.ResetRuleSet, error) {
	var out []types.ResetRuleSet

	iter := s.rdb.Scan(ctx, 0, resetRuleKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rest := strings.TrimPrefix(key, resetRuleKeyPrefix)
		idx := strings.LastIndex(rest, ":")
		if idx < 0 {
			continue
		}
		seller, market := rest[:idx], rest[idx+1:]

		raw, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, types.Transientf("get reset rules %s: %v", key, err)
		}
		if len(raw) == 0 {
			continue
		}
		m := types.MarketplaceUS
		if market != "all" {
			m = types.Marketplace(strings.ToUpper(market))
		}
		out = append(out, parseResetRules(seller, m, raw))
	}
	if err := iter.Err(); err != nil {
		return nil, types.Transientf("scan reset rules: %v", err)
	}
	return out, nil
}

// SellerProducts scans every ASIN hash and collects the given seller's
// listings. Only used by the reset sweep and manual operations; the hot
// path never scans.
func (s *Store) SellerProducts(ctx context.Context, sellerID string) ([]types.Product, error) {
	var out []types.Product

	iter := s.rdb.Scan(ctx, 0, asinKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		asin := strings.TrimPrefix(key, asinKeyPrefix)

		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, types.Transientf("get asin hash %s: %v", key, err)
		}
		for field, raw := range fields {
			seller, sku, ok := strings.Cut(field, ":")
			if !ok || seller != sellerID {
				continue
			}
			var p types.Product
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				s.logger.Warn("skipping undecodable product record",
					"key", key, "field", field, "error", err)
				continue
			}
			p.ASIN, p.SellerID, p.SKU = asin, seller, sku
			out = append(out, p)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, types.Transientf("scan products: %v", err)
	}
	return out, nil
}

// PutProduct writes a product record. The core never calls this on the hot
// path; it exists for the reset sweep's default-price write-back and tests.
func (s *Store) PutProduct(ctx context.Context, p *types.Product) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return types.Malformedf("encode product %s/%s/%s: %v", p.ASIN, p.SellerID, p.SKU, err)
	}
	if err := s.rdb.HSet(ctx, asinKey(p.ASIN), productField(p.SellerID, p.SKU), data).Err(); err != nil {
		return types.Transientf("put product %s/%s/%s: %v", p.ASIN, p.SellerID, p.SKU, err)
	}
	return nil
}
