package detector

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

// LowHistoryDetector flags a single large trade made by a wallet with
// little prior trading history.
type LowHistoryDetector struct {
	logger   *zap.Logger
	provider HistoryProvider
	cache    WalletCache

	largeTradeUSD       float64
	lowHistoryThreshold int
	cacheTTL            time.Duration
}

func NewLowHistoryDetector(logger *zap.Logger, provider HistoryProvider, cache WalletCache, largeTradeUSD float64, lowHistoryThreshold int, cacheTTL time.Duration) *LowHistoryDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowHistoryDetector{
		logger:              logger,
		provider:            provider,
		cache:               cache,
		largeTradeUSD:       largeTradeUSD,
		lowHistoryThreshold: lowHistoryThreshold,
		cacheTTL:            cacheTTL,
	}
}

func (d *LowHistoryDetector) AlertType() string {
	return store.AlertLowHistoryLargeTrade
}

func (d *LowHistoryDetector) Analyze(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error) {
	usdValue := trade.USDValue()
	if usdValue < d.largeTradeUSD {
		return nil, nil
	}
	if trade.ProxyWallet == "" {
		return nil, nil
	}

	d.logger.Debug("large trade detected",
		zap.Float64("usd_value", usdValue),
		zap.String("wallet", shortAddr(trade.ProxyWallet)),
	)

	tradeCount := d.walletTradeCount(ctx, trade.ProxyWallet)
	if tradeCount >= d.lowHistoryThreshold {
		d.logger.Debug("wallet has ample history",
			zap.String("wallet", shortAddr(trade.ProxyWallet)),
			zap.Int("trade_count", tradeCount),
		)
		return nil, nil
	}

	return &store.Alert{
		Type:             d.AlertType(),
		WalletAddress:    strings.ToLower(trade.ProxyWallet),
		WalletTradeCount: tradeCount,
		ConditionID:      trade.ConditionID,
		Slug:             trade.Slug,
		Outcome:          trade.Outcome,
		Side:             trade.Side,
		Price:            trade.Price,
		USDValue:         usdValue,
		TransactionHash:  trade.TransactionHash,
		Details: map[string]any{
			"price":      trade.Price,
			"size":       trade.Size,
			"event_slug": trade.EventSlug,
			"pseudonym":  trade.Pseudonym,
		},
		CreatedAt: time.Now(),
	}, nil
}

// walletTradeCount resolves a wallet's trade count through the cache.
// On a miss it fetches fresh history and refills the cache. A provider
// failure yields unknownTradeCount so the wallet is not flagged.
func (d *LowHistoryDetector) walletTradeCount(ctx context.Context, address string) int {
	cached, err := d.cache.CachedWalletIfFresh(ctx, address, d.cacheTTL)
	if err != nil {
		d.logger.Warn("wallet cache read failed",
			zap.String("wallet", shortAddr(address)),
			zap.Error(err),
		)
	} else if cached != nil {
		d.logger.Debug("wallet cache hit",
			zap.String("wallet", shortAddr(address)),
			zap.Int("trade_count", cached.TradeCount),
		)
		return cached.TradeCount
	}

	summary, err := d.provider.GetActivity(ctx, address, 500, "TRADE")
	if err != nil {
		d.logger.Error("failed to fetch wallet history",
			zap.String("wallet", shortAddr(address)),
			zap.Error(err),
		)
		return unknownTradeCount
	}

	if err := d.cache.CacheWallet(ctx, address, summary.TotalTrades, summary.FirstTradeAt); err != nil {
		d.logger.Warn("failed to cache wallet stats",
			zap.String("wallet", shortAddr(address)),
			zap.Error(err),
		)
	}

	return summary.TotalTrades
}
