package detector

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

// Engine drives every trade through the registered detectors in
// order. A failing detector is logged and skipped so one bad rule
// never blocks the others or the pipeline.
type Engine struct {
	logger    *zap.Logger
	store     AlertStore
	detectors []Detector

	tradeCount atomic.Int64
	alertCount atomic.Int64
}

// EngineStats is a snapshot of the engine's running counters.
type EngineStats struct {
	TradesProcessed int64
	AlertsGenerated int64
	DetectorsActive int
}

func NewEngine(logger *zap.Logger, alertStore AlertStore) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		store:  alertStore,
	}
}

// AddDetector registers a detector. Registration order is evaluation
// order. Detectors must be added before streaming starts.
func (e *Engine) AddDetector(d Detector) {
	e.detectors = append(e.detectors, d)
	e.logger.Info("added detector", zap.String("alert_type", d.AlertType()))
}

// Process runs trade through every detector, persists any alerts, and
// best-effort records the raw trade. It never returns an error; every
// failure in the detection path is contained here.
func (e *Engine) Process(ctx context.Context, trade polymarketstream.Trade) []store.Alert {
	e.tradeCount.Add(1)

	var alerts []store.Alert
	for _, d := range e.detectors {
		alert := e.runDetector(ctx, d, trade)
		if alert == nil {
			continue
		}
		if _, err := e.store.SaveAlert(ctx, alert); err != nil {
			e.logger.Error("failed to persist alert",
				zap.String("alert_type", alert.Type),
				zap.String("wallet", shortAddr(alert.WalletAddress)),
				zap.Error(err),
			)
			continue
		}
		e.alertCount.Add(1)
		alerts = append(alerts, *alert)
	}

	if err := e.store.SaveTrade(ctx, &store.TradeRecord{
		TransactionHash: trade.TransactionHash,
		Asset:           trade.Asset,
		WalletAddress:   trade.ProxyWallet,
		ConditionID:     trade.ConditionID,
		Slug:            trade.Slug,
		Outcome:         trade.Outcome,
		Side:            trade.Side,
		Price:           trade.Price,
		Size:            trade.Size,
		USDValue:        trade.USDValue(),
		Timestamp:       trade.Timestamp,
	}); err != nil {
		e.logger.Debug("failed to save trade", zap.Error(err))
	}

	if trade.ProxyWallet != "" {
		if err := e.store.IncrementWalletTradeCount(ctx, trade.ProxyWallet); err != nil {
			e.logger.Debug("failed to increment wallet trade count",
				zap.String("wallet", shortAddr(trade.ProxyWallet)),
				zap.Error(err),
			)
		}
	}

	return alerts
}

// runDetector isolates one detector invocation, containing both
// returned errors and panics.
func (e *Engine) runDetector(ctx context.Context, d Detector, trade polymarketstream.Trade) (alert *store.Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panicked",
				zap.String("alert_type", d.AlertType()),
				zap.Any("panic", r),
			)
			alert = nil
		}
	}()

	alert, err := d.Analyze(ctx, trade)
	if err != nil {
		e.logger.Error("detector failed",
			zap.String("alert_type", d.AlertType()),
			zap.Error(err),
		)
		return nil
	}
	return alert
}

// Stats returns the engine's running counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		TradesProcessed: e.tradeCount.Load(),
		AlertsGenerated: e.alertCount.Load(),
		DetectorsActive: len(e.detectors),
	}
}
