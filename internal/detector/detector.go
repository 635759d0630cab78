// Package detector implements the anomaly detection rules and the
// engine that drives every trade through them.
package detector

import (
	"context"
	"time"

	"polywatch/clients/polymarketdata"
	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

// unknownTradeCount is returned when a wallet's history cannot be
// fetched. Uncertain wallets are treated as seasoned so provider
// outages don't produce a flood of false positives.
const unknownTradeCount = 999

// Detector is a single detection rule. Analyze returns a nil alert
// when the trade is unremarkable.
type Detector interface {
	AlertType() string
	Analyze(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error)
}

// HistoryProvider fetches a wallet's historical activity.
type HistoryProvider interface {
	GetActivity(ctx context.Context, address string, limit int, activityType string) (*polymarketdata.WalletSummary, error)
}

// WalletCache is the wallet stats cache the detectors read and refill.
type WalletCache interface {
	CachedWalletIfFresh(ctx context.Context, address string, ttl time.Duration) (*store.CachedWallet, error)
	CacheWallet(ctx context.Context, address string, tradeCount int, firstTradeAt *time.Time) error
}

// AlertStore persists what the engine produces.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *store.Alert) (int64, error)
	SaveTrade(ctx context.Context, trade *store.TradeRecord) error
	IncrementWalletTradeCount(ctx context.Context, address string) error
}

func shortAddr(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}
