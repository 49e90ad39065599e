package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"repricer/internal/engine"
	"repricer/internal/normalize"
	"repricer/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Catalog is the store surface the management endpoints read from.
type Catalog interface {
	GetProduct(ctx context.Context, asin, sellerID, sku string) (*types.Product, error)
	Ping(ctx context.Context) error
}

// PriceSaver persists a calculated price; implemented by engine.Persister.
type PriceSaver interface {
	Persist(ctx context.Context, cp *types.CalculatedPrice) error
}

// Dispatcher runs one normalized event through the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, oc *types.OfferChange) types.Outcome
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	catalog      Catalog
	saver        PriceSaver
	dispatcher   Dispatcher
	normalizer   *normalize.Normalizer
	stats        *engine.Stats
	hub          *Hub
	eventTimeout time.Duration
	logger       *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(catalog Catalog, saver PriceSaver, dispatcher Dispatcher, n *normalize.Normalizer, stats *engine.Stats, hub *Hub, eventTimeout time.Duration, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:      catalog,
		saver:        saver,
		dispatcher:   dispatcher,
		normalizer:   n,
		stats:        stats,
		hub:          hub,
		eventTimeout: eventTimeout,
		logger:       logger.With("component", "api-handlers"),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// HandleWalmartWebhook validates and accepts a buybox-changed payload. The
// event is processed asynchronously; the producer only learns about
// validation failures.
func (h *Handlers) HandleWalmartWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var probe struct {
		ItemID   string `json:"itemId"`
		SellerID string `json:"sellerId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if probe.ItemID == "" {
		writeDetail(w, http.StatusBadRequest, "itemId is required")
		return
	}
	if probe.SellerID == "" {
		writeDetail(w, http.StatusBadRequest, "sellerId is required")
		return
	}

	oc, err := h.normalizer.ParseWalmart(body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.eventTimeout)
		defer cancel()
		out := h.dispatcher.Dispatch(ctx, oc)
		if out.Status == types.OutcomeFailed {
			h.logger.Error("walmart event failed",
				"item_id", oc.ProductID, "seller_id", oc.SellerID, "error", out.Err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"item_id":   probe.ItemID,
		"seller_id": probe.SellerID,
	})
}

type manualRequest struct {
	ASIN     string           `json:"asin"`
	SellerID string           `json:"seller_id"`
	SKU      string           `json:"sku"`
	NewPrice *decimal.Decimal `json:"new_price"`
	Reason   string           `json:"reason"`
}

// HandleManualReprice writes an operator-supplied price directly through
// the persister, after bounds validation. Bypasses the strategy engine and
// the change-only contract.
func (h *Handlers) HandleManualReprice(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPrice == nil || !req.NewPrice.IsPositive() {
		writeDetail(w, http.StatusBadRequest, "Invalid new_price")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ASIN, req.SellerID, req.SKU)
	if err != nil {
		h.logger.Error("manual reprice lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if product == nil {
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	if product.MaxPrice != nil && req.NewPrice.GreaterThan(*product.MaxPrice) {
		writeDetail(w, http.StatusBadRequest, "Price above maximum price")
		return
	}
	if product.MinPrice != nil && req.NewPrice.LessThan(*product.MinPrice) {
		writeDetail(w, http.StatusBadRequest, "Price below minimum price")
		return
	}

	now := time.Now().UTC()
	cp := &types.CalculatedPrice{
		ASIN:         product.ASIN,
		SKU:          product.SKU,
		SellerID:     product.SellerID,
		OldPrice:     product.ListedPrice,
		NewPrice:     req.NewPrice.Round(2),
		StrategyUsed: "Manual",
		CalculatedAt: now,
	}
	if err := h.saver.Persist(r.Context(), cp); err != nil {
		h.logger.Error("manual reprice persist failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "persist failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"new_price":  cp.NewPrice,
		"old_price":  cp.OldPrice,
		"updated_at": now.Format(time.RFC3339),
		"reason":     req.Reason,
	})
}

type resetRequest struct {
	ASIN     string `json:"asin"`
	SellerID string `json:"seller_id"`
	SKU      string `json:"sku"`
	Reason   string `json:"reason"`
}

// HandlePriceReset forces a single product back to its default price.
func (h *Handlers) HandlePriceReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ASIN, req.SellerID, req.SKU)
	if err != nil {
		h.logger.Error("price reset lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if product == nil {
		writeDetail(w, http.StatusNotFound, "Product not found")
		return
	}
	if product.DefaultPrice == nil || !product.DefaultPrice.IsPositive() {
		writeDetail(w, http.StatusBadRequest, "Product has no default price")
		return
	}

	now := time.Now().UTC()
	cp := &types.CalculatedPrice{
		ASIN:         product.ASIN,
		SKU:          product.SKU,
		SellerID:     product.SellerID,
		OldPrice:     product.ListedPrice,
		NewPrice:     product.DefaultPrice.Round(2),
		StrategyUsed: "Reset",
		CalculatedAt: now,
	}
	if err := h.saver.Persist(r.Context(), cp); err != nil {
		h.logger.Error("price reset persist failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "persist failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"new_price": cp.NewPrice,
		"reset_at":  now.Format(time.RFC3339),
		"reason":    req.Reason,
	})
}

// HandleHealth reports service health including store reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "repricer",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "repricer",
	})
}

// HandleStats returns the processing counters.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// HandleStatsReset zeroes the processing counters.
func (h *Handlers) HandleStatsReset(w http.ResponseWriter, r *http.Request) {
	h.stats.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleWebSocket upgrades the connection and subscribes the client to
// live decision events.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}
