package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"repricer/pkg/types"
)

// PriceWriter is the single store operation the persister depends on.
type PriceWriter interface {
	SaveCalculatedPrice(ctx context.Context, cp *types.CalculatedPrice) error
}

// Persister writes calculated prices with bounded retry. Only transient
// store errors are retried; malformed payloads fail immediately.
type Persister struct {
	store    PriceWriter
	logger   *slog.Logger
	maxTries int
}

// NewPersister creates a persister retrying transient failures up to
// maxTries attempts total.
func NewPersister(store PriceWriter, maxTries int, logger *slog.Logger) *Persister {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Persister{
		store:    store,
		logger:   logger.With("component", "persister"),
		maxTries: maxTries,
	}
}

// Persist writes one calculated price, retrying transient failures with
// exponential backoff until the attempt budget or the context runs out.
func (p *Persister) Persist(ctx context.Context, cp *types.CalculatedPrice) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	for attempt := 1; ; attempt++ {
		err := p.store.SaveCalculatedPrice(ctx, cp)
		if err == nil {
			return nil
		}
		if !types.IsTransient(err) || attempt >= p.maxTries {
			return err
		}

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			return err
		}
		p.logger.Warn("persist retry",
			"seller_id", cp.SellerID, "sku", cp.SKU,
			"attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return types.Transientf("persist %s/%s: %v", cp.SellerID, cp.SKU, ctx.Err())
		case <-time.After(sleep):
		}
	}
}
