// Package engine is the central orchestrator of the repricer.
//
// It runs the event pipeline behind a sharded worker pool:
//
//  1. Ingress (queue consumer or webhook) normalizes a payload and calls
//     Dispatch.
//  2. Dispatch routes the event to a shard keyed on (product, seller), so
//     two events for the same listing can never race.
//  3. The shard worker runs gate → compute → persist and answers with an
//     Outcome the caller uses to ack, nack, or DLQ the message.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop().
package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"repricer/internal/config"
	"repricer/internal/pricing"
	"repricer/pkg/types"
)

// Backend is the store surface the pipeline needs: the gate's reads plus
// the persister's write.
type Backend interface {
	pricing.Catalog
	PriceWriter
}

// DecisionEvent is the per-event record broadcast to live dashboard
// subscribers.
type DecisionEvent struct {
	ASIN      string    `json:"asin"`
	SellerID  string    `json:"seller_id"`
	SKU       string    `json:"sku,omitempty"`
	Platform  string    `json:"platform"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	OldPrice  string    `json:"old_price,omitempty"`
	NewPrice  string    `json:"new_price,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives decision events. Implemented by the API hub; a nil
// notifier disables broadcasting.
type Notifier interface {
	NotifyDecision(DecisionEvent)
}

type task struct {
	oc     *types.OfferChange
	result chan types.Outcome
}

// Engine owns the shard workers and the per-event pipeline.
type Engine struct {
	cfg       config.EngineConfig
	backend   Backend
	gate      *pricing.Gate
	persister *Persister
	stats     *Stats
	metrics   *Metrics
	logger    *slog.Logger

	notifier   Notifier
	notifierMu sync.RWMutex

	shards []chan task
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New wires the pipeline. maxPersistTries bounds the persister's retry
// budget; metrics may be shared with other components.
func New(cfg config.EngineConfig, backend Backend, maxPersistTries int, metrics *Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		backend:   backend,
		gate:      pricing.NewGate(backend, logger),
		persister: NewPersister(backend, maxPersistTries, logger),
		stats:     NewStats(),
		metrics:   metrics,
		logger:    logger.With("component", "engine"),
	}
}

// SetNotifier attaches a decision-event sink. Safe to call before Start.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifierMu.Lock()
	e.notifier = n
	e.notifierMu.Unlock()
}

// Stats exposes the processing counters for the API layer.
func (e *Engine) Stats() *Stats { return e.stats }

// Persister exposes the retrying price writer for the manual and reset
// paths, which bypass the pipeline.
func (e *Engine) Persister() *Persister { return e.persister }

// Start spawns the shard workers.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	e.shards = make([]chan task, e.cfg.Workers)
	for i := range e.shards {
		e.shards[i] = make(chan task, e.cfg.QueueDepth)
		e.wg.Add(1)
		go e.worker(e.shards[i])
	}
	e.logger.Info("engine started", "workers", e.cfg.Workers, "queue_depth", e.cfg.QueueDepth)
}

// Stop drains the shards: no new events are accepted, in-flight ones
// finish. Blocks until every worker has exited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, sh := range e.shards {
		close(sh)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// shardIndex routes an event to its shard. Events for the same
// (product, seller) pair always map to the same worker, which serializes
// them; the SKU is resolved later but is a deterministic function of the
// same pair.
func (e *Engine) shardIndex(oc *types.OfferChange) int {
	h := fnv.New32a()
	h.Write([]byte(oc.ProductID))
	h.Write([]byte{'|'})
	h.Write([]byte(oc.SellerID))
	return int(h.Sum32() % uint32(len(e.shards)))
}

// Dispatch hands one normalized event to its shard worker and waits for
// the outcome. The caller's context bounds the wait; a timeout surfaces as
// a transient failure so queue redelivery can retry.
func (e *Engine) Dispatch(ctx context.Context, oc *types.OfferChange) types.Outcome {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return types.Failed(types.Transientf("engine not running"))
	}
	sh := e.shards[e.shardIndex(oc)]
	e.mu.Unlock()

	t := task{oc: oc, result: make(chan types.Outcome, 1)}
	select {
	case sh <- t:
	case <-ctx.Done():
		return types.Failed(types.Transientf("dispatch %s/%s: %v", oc.ProductID, oc.SellerID, ctx.Err()))
	}

	select {
	case out := <-t.result:
		return out
	case <-ctx.Done():
		return types.Failed(types.Transientf("await %s/%s: %v", oc.ProductID, oc.SellerID, ctx.Err()))
	}
}

func (e *Engine) worker(shard chan task) {
	defer e.wg.Done()
	for t := range shard {
		t.result <- e.process(t.oc)
	}
}

// process runs one event through gate → compute → persist under the
// per-event deadline, then records stats, metrics, and the decision event.
func (e *Engine) process(oc *types.OfferChange) types.Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.EventTimeout)
	defer cancel()

	if e.metrics != nil {
		e.metrics.InFlight.Inc()
		defer e.metrics.InFlight.Dec()
	}

	start := time.Now()
	out := e.runPipeline(ctx, oc, start)
	elapsed := time.Since(start)

	e.stats.Record(out, elapsed)
	e.record(oc, out, elapsed)
	return out
}

func (e *Engine) runPipeline(ctx context.Context, oc *types.OfferChange, start time.Time) types.Outcome {
	d, out := e.gate.Evaluate(ctx, oc)
	if d == nil {
		return out
	}

	res, out := pricing.Compute(d, e.logger)
	if res == nil {
		return out
	}

	cp := &types.CalculatedPrice{
		ASIN:            d.Product.ASIN,
		SKU:             d.Product.SKU,
		SellerID:        d.Product.SellerID,
		OldPrice:        d.Product.ListedPrice,
		NewPrice:        res.NewPrice,
		StrategyUsed:    string(res.StrategyUsed),
		StrategyID:      d.Strategy.ID,
		CompetitorPrice: res.CompetitorPrice,
		TierPrices:      res.TierPrices,
		CalculatedAt:    time.Now().UTC(),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err := e.persister.Persist(ctx, cp); err != nil {
		return types.Failed(err)
	}
	return types.Priced(cp)
}

// record emits the log line, metrics, and dashboard event for one outcome.
func (e *Engine) record(oc *types.OfferChange, out types.Outcome, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.EventsTotal.WithLabelValues(string(oc.Platform), string(out.Status)).Inc()
		e.metrics.ProcessingSeconds.Observe(elapsed.Seconds())
		if out.Status == types.OutcomeSkipped {
			e.metrics.SkipsTotal.WithLabelValues(string(out.Reason)).Inc()
		}
		if out.Status == types.OutcomePriced {
			e.metrics.PricesUpdated.Inc()
		}
	}

	ev := DecisionEvent{
		ASIN:      oc.ProductID,
		SellerID:  oc.SellerID,
		Platform:  string(oc.Platform),
		Outcome:   string(out.Status),
		Reason:    string(out.Reason),
		Timestamp: time.Now().UTC(),
	}

	switch out.Status {
	case types.OutcomePriced:
		ev.SKU = out.Price.SKU
		ev.OldPrice = out.Price.OldPrice.String()
		ev.NewPrice = out.Price.NewPrice.String()
		ev.Strategy = out.Price.StrategyUsed
		e.logger.Info("repriced",
			"asin", oc.ProductID, "seller_id", oc.SellerID, "sku", out.Price.SKU,
			"old_price", out.Price.OldPrice, "new_price", out.Price.NewPrice,
			"strategy", out.Price.StrategyUsed, "elapsed_ms", elapsed.Milliseconds())
	case types.OutcomeSkipped:
		if out.Err != nil {
			// Bounds violations carry detail worth surfacing.
			e.logger.Warn("skipped",
				"asin", oc.ProductID, "seller_id", oc.SellerID,
				"reason", out.Reason, "detail", out.Err)
		} else {
			e.logger.Debug("skipped",
				"asin", oc.ProductID, "seller_id", oc.SellerID, "reason", out.Reason)
		}
	case types.OutcomeUnchanged:
		e.logger.Debug("price unchanged",
			"asin", oc.ProductID, "seller_id", oc.SellerID)
	case types.OutcomeFailed:
		ev.Reason = out.Err.Error()
		e.logger.Error("event failed",
			"asin", oc.ProductID, "seller_id", oc.SellerID, "error", out.Err)
	}

	e.notifierMu.RLock()
	n := e.notifier
	e.notifierMu.RUnlock()
	if n != nil {
		n.NotifyDecision(ev)
	}
}
