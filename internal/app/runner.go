// Package app wires the trade stream, detection engine, and alert
// sinks together and owns the service lifecycle.
package app

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"polywatch/clients/polymarketstream"
	"polywatch/config"
	"polywatch/internal/alerting"
	"polywatch/internal/detector"
	"polywatch/internal/store"
)

// statsInterval is how often the runner logs pipeline counters.
const statsInterval = time.Minute

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// TradeSource is the live feed the runner consumes.
type TradeSource interface {
	Trades() <-chan polymarketstream.Trade
	Connect(ctx context.Context) error
	Disconnect()
	OnConnect(fn func())
	OnDisconnect(fn func())
	Stats() polymarketstream.Stats
}

type Runner struct {
	logger   *zap.Logger
	cfg      *config.Config
	stream   TradeSource
	provider detector.HistoryProvider
	store    *store.Store
	notifier alerting.Notifier

	engine *detector.Engine
}

func NewRunner(logger *zap.Logger, cfg *config.Config, stream TradeSource, provider detector.HistoryProvider, st *store.Store, notifier alerting.Notifier) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := detector.NewEngine(logger, st)
	det := cfg.Detection
	engine.AddDetector(detector.NewLowHistoryDetector(
		logger, provider, st,
		det.LargeTradeUSD, det.LowHistoryThreshold, det.CacheTTL(),
	))
	engine.AddDetector(detector.NewConcentratedBettingDetector(
		logger, provider,
		det.MinVolumeUSD, det.MaxTradesForConcentration, det.MinAvgTradeUSD,
	))
	engine.AddDetector(detector.NewProfitableTraderDetector(
		logger,
		det.MinTradesForAnalysis, det.MinProfitFactor, det.MinWinRate,
		float64(det.HighFrequencyThreshold),
	))

	return &Runner{
		logger:   logger,
		cfg:      cfg,
		stream:   stream,
		provider: provider,
		store:    st,
		notifier: notifier,
		engine:   engine,
	}
}

// Run drives the watcher until ctx is canceled. It returns only after
// the stream has fully stopped and the consumer loop has drained, so
// the caller can safely close the store afterwards.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting watcher",
		zap.String("commit", BuildCommit),
		zap.Int("detectors", r.engine.Stats().DetectorsActive),
		zap.Float64("largeTradeUSD", r.cfg.Detection.LargeTradeUSD),
	)

	r.stream.OnConnect(func() {
		r.logger.Info("trade feed connected")
	})
	r.stream.OnDisconnect(func() {
		r.logger.Info("trade feed disconnected")
	})

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		r.consume(ctx)
	}()

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- r.stream.Connect(ctx)
	}()

	<-ctx.Done()
	r.logger.Info("shutdown requested")

	// Stop the feed first. Detector state and the store must not be
	// touched by in-flight trades after this returns.
	r.stream.Disconnect()
	err := <-streamErr
	<-consumerDone

	stats := r.engine.Stats()
	r.logger.Info("watcher stopped",
		zap.Int64("tradesProcessed", stats.TradesProcessed),
		zap.Int64("alertsGenerated", stats.AlertsGenerated),
	)
	return err
}

// consume is the single consumer of the trade feed. Trades are
// processed one at a time; detector state relies on this.
func (r *Runner) consume(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-r.stream.Trades():
			if !ok {
				return
			}
			for _, alert := range r.engine.Process(ctx, trade) {
				r.notifier.Notify(alert)
			}
		case <-ticker.C:
			r.logStats()
		}
	}
}

func (r *Runner) logStats() {
	engineStats := r.engine.Stats()
	streamStats := r.stream.Stats()
	r.logger.Info("pipeline stats",
		zap.Int64("tradesProcessed", engineStats.TradesProcessed),
		zap.Int64("alertsGenerated", engineStats.AlertsGenerated),
		zap.Uint64("feedMessages", streamStats.MessageCount),
		zap.Uint64("tradesDropped", streamStats.TradesDropped),
		zap.Uint64("reconnects", streamStats.ReconnectCount),
	)
}

// Engine exposes the detection engine for diagnostics.
func (r *Runner) Engine() *detector.Engine {
	return r.engine
}
