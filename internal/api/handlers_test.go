package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"repricer/internal/engine"
	"repricer/internal/normalize"
	"repricer/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fakeCatalog struct {
	product *types.Product
	pingErr error
}

func (f *fakeCatalog) GetProduct(_ context.Context, _, _, _ string) (*types.Product, error) {
	return f.product, nil
}

func (f *fakeCatalog) Ping(_ context.Context) error { return f.pingErr }

type fakeSaver struct {
	saved []*types.CalculatedPrice
	err   error
}

func (f *fakeSaver) Persist(_ context.Context, cp *types.CalculatedPrice) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, cp)
	return nil
}

type chanDispatcher struct {
	ch chan *types.OfferChange
}

func (d *chanDispatcher) Dispatch(_ context.Context, oc *types.OfferChange) types.Outcome {
	d.ch <- oc
	return types.Skipped(types.SkipProductNotFound)
}

func testHandlers(cat *fakeCatalog, saver *fakeSaver, d Dispatcher) *Handlers {
	if d == nil {
		d = &chanDispatcher{ch: make(chan *types.OfferChange, 8)}
	}
	return NewHandlers(cat, saver, d, normalize.New(testLogger()), engine.NewStats(), NewHub(testLogger()), 5*time.Second, testLogger())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestWalmartWebhookValidation(t *testing.T) {
	t.Parallel()
	h := testHandlers(&fakeCatalog{}, &fakeSaver{}, nil)

	cases := []struct {
		name   string
		body   string
		detail string
	}{
		{"missing itemId", `{"sellerId":"S1"}`, "itemId is required"},
		{"missing sellerId", `{"itemId":"W1"}`, "sellerId is required"},
		{"bad json", `{`, "invalid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/walmart/webhook", strings.NewReader(tc.body))
			h.HandleWalmartWebhook(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeBody(t, rec)["detail"]; got != tc.detail {
				t.Errorf("detail = %v, want %q", got, tc.detail)
			}
		})
	}
}

func TestWalmartWebhookAccepted(t *testing.T) {
	t.Parallel()
	d := &chanDispatcher{ch: make(chan *types.OfferChange, 1)}
	h := testHandlers(&fakeCatalog{}, &fakeSaver{}, d)

	body := `{"eventType":"buybox_changed","itemId":"W1","sellerId":"S1",
		"offers":[{"sellerId":"C1","price":24.99}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/walmart/webhook", strings.NewReader(body))
	h.HandleWalmartWebhook(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "accepted" || resp["item_id"] != "W1" || resp["seller_id"] != "S1" {
		t.Errorf("response = %v", resp)
	}

	select {
	case oc := <-d.ch:
		if oc.ProductID != "W1" || oc.Platform != types.PlatformWalmart {
			t.Errorf("dispatched event = %+v", oc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never dispatched")
	}
}

func manualProduct() *types.Product {
	return &types.Product{
		ASIN:        "B07TEST123",
		SKU:         "T1",
		SellerID:    "A1",
		ListedPrice: dec("30.00"),
		MinPrice:    decp("20.00"),
		MaxPrice:    decp("40.00"),
	}
}

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	h(rec, req)
	return rec
}

func TestManualRepriceSuccess(t *testing.T) {
	t.Parallel()
	saver := &fakeSaver{}
	h := testHandlers(&fakeCatalog{product: manualProduct()}, saver, nil)

	rec := postJSON(h.HandleManualReprice, "/pricing/manual",
		`{"asin":"B07TEST123","seller_id":"A1","sku":"T1","new_price":25.50,"reason":"ops"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "success" || resp["reason"] != "ops" {
		t.Errorf("response = %v", resp)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("saved %d prices, want 1", len(saver.saved))
	}
	cp := saver.saved[0]
	if !cp.NewPrice.Equal(dec("25.50")) || !cp.OldPrice.Equal(dec("30.00")) {
		t.Errorf("saved price = %+v", cp)
	}
	if cp.StrategyUsed != "Manual" {
		t.Errorf("strategy = %q, want Manual", cp.StrategyUsed)
	}
}

func TestManualRepriceErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		product *types.Product
		body    string
		code    int
		detail  string
	}{
		{"invalid price", manualProduct(), `{"asin":"a","seller_id":"s","sku":"k","new_price":"abc"}`, 400, "Invalid new_price"},
		{"missing price", manualProduct(), `{"asin":"a","seller_id":"s","sku":"k"}`, 400, "Invalid new_price"},
		{"negative price", manualProduct(), `{"asin":"a","seller_id":"s","sku":"k","new_price":-1}`, 400, "Invalid new_price"},
		{"not found", nil, `{"asin":"a","seller_id":"s","sku":"k","new_price":25}`, 404, "Product not found"},
		{"above max", manualProduct(), `{"asin":"a","seller_id":"s","sku":"k","new_price":41.00}`, 400, "Price above maximum price"},
		{"below min", manualProduct(), `{"asin":"a","seller_id":"s","sku":"k","new_price":19.99}`, 400, "Price below minimum price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := testHandlers(&fakeCatalog{product: tc.product}, &fakeSaver{}, nil)
			rec := postJSON(h.HandleManualReprice, "/pricing/manual", tc.body)

			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.code, rec.Body.String())
			}
			if got := decodeBody(t, rec)["detail"]; got != tc.detail {
				t.Errorf("detail = %v, want %q", got, tc.detail)
			}
		})
	}
}

func TestPriceResetSuccess(t *testing.T) {
	t.Parallel()
	p := manualProduct()
	p.DefaultPrice = decp("35.00")
	saver := &fakeSaver{}
	h := testHandlers(&fakeCatalog{product: p}, saver, nil)

	rec := postJSON(h.HandlePriceReset, "/pricing/reset",
		`{"asin":"B07TEST123","seller_id":"A1","sku":"T1","reason":"eod"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(saver.saved) != 1 || !saver.saved[0].NewPrice.Equal(dec("35.00")) {
		t.Errorf("saved = %+v, want default price 35.00", saver.saved)
	}
	if saver.saved[0].StrategyUsed != "Reset" {
		t.Errorf("strategy = %q, want Reset", saver.saved[0].StrategyUsed)
	}
}

func TestPriceResetErrors(t *testing.T) {
	t.Parallel()

	noDefault := manualProduct()
	cases := []struct {
		name    string
		product *types.Product
		code    int
	}{
		{"not found", nil, 404},
		{"no default price", noDefault, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := testHandlers(&fakeCatalog{product: tc.product}, &fakeSaver{}, nil)
			rec := postJSON(h.HandlePriceReset, "/pricing/reset",
				`{"asin":"a","seller_id":"s","sku":"k"}`)
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := testHandlers(&fakeCatalog{}, &fakeSaver{}, nil)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "healthy" || resp["service"] != "repricer" {
		t.Errorf("response = %v", resp)
	}
}

func TestHealthStoreDown(t *testing.T) {
	t.Parallel()
	h := testHandlers(&fakeCatalog{pingErr: types.Transientf("down")}, &fakeSaver{}, nil)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatsAndReset(t *testing.T) {
	t.Parallel()
	h := testHandlers(&fakeCatalog{}, &fakeSaver{}, nil)
	h.stats.Record(types.Priced(&types.CalculatedPrice{}), 10*time.Millisecond)

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	resp := decodeBody(t, rec)
	if resp["total_processed"].(float64) != 1 {
		t.Errorf("total_processed = %v, want 1", resp["total_processed"])
	}

	rec = httptest.NewRecorder()
	h.HandleStatsReset(rec, httptest.NewRequest(http.MethodPost, "/stats/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	resp = decodeBody(t, rec)
	if resp["total_processed"].(float64) != 0 {
		t.Errorf("total_processed after reset = %v, want 0", resp["total_processed"])
	}
}
