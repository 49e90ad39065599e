// Repricer — an event-driven marketplace repricing engine.
//
// Architecture:
//
//	main.go               — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	engine/engine.go      — sharded pipeline: gate → strategy → bounds → persist per offer-change event
//	pricing/eligibility.go— ordered skip checks (reset window, pause, stock, status, strategy, self-competition)
//	pricing/strategy.go   — ChaseBuyBox / OnlySeller / MaximiseProfit, selected per event from market position
//	pricing/rules.go      — min/max price rules, hard bounds check, half-up rounding
//	normalize/            — Amazon AnyOfferChanged and Walmart webhook payloads → one OfferChange shape
//	queue/consumer.go     — SQS long-poll, ack/redeliver/DLQ per outcome
//	api/server.go         — Walmart webhook, manual repricing, health, stats, metrics, live WS stream
//	reset/scheduler.go    — hourly default-price resets and pause-flag handling per seller timezone
//	store/store.go        — Redis facade: products, strategies, calculated prices, pause flags, reset rules
//
// How it prices:
//
//	Marketplaces push an event whenever the competitive landscape of a
//	listing changes. The engine normalizes the event, checks the listing
//	is eligible, picks a strategy from the market position (only seller,
//	holding the buy box, or chasing it), computes a candidate against the
//	chosen competitor's landed price, clamps it by the seller's rules and
//	bounds, and writes the result for the price publisher to pick up.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"repricer/internal/api"
	"repricer/internal/config"
	"repricer/internal/engine"
	"repricer/internal/normalize"
	"repricer/internal/queue"
	"repricer/internal/reset"
	"repricer/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("REPRICER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)
	eng := engine.New(cfg.Engine, st, cfg.Queue.MaxRetries, metrics, logger)
	normalizer := normalize.New(logger)

	hub := api.NewHub(logger)
	eng.SetNotifier(hub)
	handlers := api.NewHandlers(st, eng.Persister(), eng, normalizer, eng.Stats(), hub, cfg.Engine.EventTimeout, logger)
	server := api.NewServer(cfg.Server, handlers, hub, logger)

	ctx := context.Background()

	var consumer *queue.Consumer
	if cfg.Queue.URL != "" {
		client, err := queue.NewClient(ctx, cfg.Queue)
		if err != nil {
			logger.Error("failed to create sqs client", "error", err)
			os.Exit(1)
		}
		consumer = queue.NewConsumer(client, cfg.Queue, normalizer, eng, logger)
	} else {
		logger.Warn("no queue url configured, amazon ingress disabled")
	}

	var scheduler *reset.Scheduler
	if cfg.Reset.Enabled {
		scheduler = reset.NewScheduler(st, eng.Persister(), cfg.Reset.SweepWorkers, logger)
	}

	eng.Start()
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server failed", "error", err)
		}
	}()
	if consumer != nil {
		consumer.Start(ctx)
	}
	if scheduler != nil {
		scheduler.Start(ctx)
	}

	logger.Info("repricer started",
		"workers", cfg.Engine.Workers,
		"queue", cfg.Queue.URL != "",
		"reset", cfg.Reset.Enabled,
		"addr", cfg.Server.Addr,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop ingress first so nothing new enters the pipeline, then drain.
	if consumer != nil {
		consumer.Stop()
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
