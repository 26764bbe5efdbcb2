package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/context8/marketd/internal/config"
	"github.com/context8/marketd/internal/coord"
	"github.com/context8/marketd/internal/engine"
	"github.com/context8/marketd/internal/feed"
	"github.com/context8/marketd/internal/kv"
	"github.com/context8/marketd/internal/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	nodeID := cfg.Coordination.NodeID
	log.Info().Str("node", nodeID).Str("mode", cfg.Mode()).
		Strs("symbols", cfg.Symbols).Msg("Starting marketd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := kv.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	metrics := telemetry.NewMetrics()
	leases := coord.NewLeaseManager(rdb, nodeID)

	var (
		membership *coord.Membership
		controller *coord.Controller
	)
	leaseTTL := time.Duration(cfg.Coordination.LeaseTTLMs) * time.Millisecond
	minHold := time.Duration(cfg.Coordination.MinHoldMs) * time.Millisecond
	if cfg.Coordination.Enabled {
		hostname, _ := os.Hostname()
		metricsURL := fmt.Sprintf("http://%s%s/metrics", hostname, cfg.MetricsAddr)
		// Membership TTL is several heartbeats so one missed beat doesn't
		// evict the node.
		memberTTL := 5 * time.Duration(cfg.Coordination.HeartbeatIntervalMs) * time.Millisecond
		membership = coord.NewMembership(rdb, nodeID, metricsURL, memberTTL).
			WithKeyPrefix(cfg.Coordination.KeyPrefix)
		controller = coord.NewController(membership, leases, cfg.Symbols,
			leaseTTL, minHold, cfg.Coordination.StickyPct)
	} else {
		controller = coord.NewController(coord.SoloMembership{ID: nodeID}, leases,
			cfg.Symbols, leaseTTL, minHold, cfg.Coordination.StickyPct)
	}

	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = feed.DefaultStreamURL
	}
	client := feed.NewBinanceClient(feedURL)
	client.OnResubscribe = func(reason string) {
		metrics.WSResubscribeTotal.WithLabelValues(reason).Inc()
	}

	opts := engine.Options{
		NodeID:            nodeID,
		Mode:              cfg.Mode(),
		FastPeriod:        time.Duration(cfg.ReportPeriodMs) * time.Millisecond,
		SlowPeriod:        time.Duration(cfg.SlowPeriodMs) * time.Millisecond,
		TickSize:          cfg.TickSize,
		HeartbeatInterval: time.Duration(cfg.Coordination.HeartbeatIntervalMs) * time.Millisecond,
		RebalanceInterval: time.Duration(cfg.Coordination.RebalanceIntervalMs) * time.Millisecond,
		LeaseTTL:          leaseTTL,
		Feed:              client,
		Publisher:         kv.NewPublisher(rdb),
		Controller:        controller,
		Leases:            leases,
		KV:                rdb,
		Metrics:           metrics,
	}
	if membership != nil {
		opts.Membership = membership
	}
	eng := engine.New(opts)

	startedAt := time.Now()
	server := telemetry.NewServer(cfg.MetricsAddr, metrics, func() telemetry.HealthPayload {
		return telemetry.HealthPayload{
			Status:        "ok",
			NodeID:        nodeID,
			UptimeSeconds: time.Since(startedAt).Seconds(),
			Coordination: telemetry.CoordinationStatus{
				Enabled:           cfg.Coordination.Enabled,
				OwnedSymbols:      controller.OwnedCount(),
				ConfiguredSymbols: len(cfg.Symbols),
			},
		}
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
