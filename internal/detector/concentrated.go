package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"polywatch/clients/polymarketdata"
	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

// ConcentratedBettingDetector flags accounts whose total volume is
// concentrated in very few trades. Each wallet is analyzed at most
// once per process, even if its on-chain activity changes later.
type ConcentratedBettingDetector struct {
	logger   *zap.Logger
	provider HistoryProvider

	minVolumeUSD   float64
	maxTrades      int
	minAvgTradeUSD float64

	analyzed map[string]struct{}
}

func NewConcentratedBettingDetector(logger *zap.Logger, provider HistoryProvider, minVolumeUSD float64, maxTrades int, minAvgTradeUSD float64) *ConcentratedBettingDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConcentratedBettingDetector{
		logger:         logger,
		provider:       provider,
		minVolumeUSD:   minVolumeUSD,
		maxTrades:      maxTrades,
		minAvgTradeUSD: minAvgTradeUSD,
		analyzed:       make(map[string]struct{}),
	}
}

func (d *ConcentratedBettingDetector) AlertType() string {
	return store.AlertConcentratedBetting
}

func (d *ConcentratedBettingDetector) Analyze(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error) {
	if trade.ProxyWallet == "" {
		return nil, nil
	}
	return d.AnalyzeWallet(ctx, trade.ProxyWallet)
}

// AnalyzeWallet inspects a wallet's trading pattern. Repeat calls for
// a wallet already seen this session always return nil.
func (d *ConcentratedBettingDetector) AnalyzeWallet(ctx context.Context, address string) (*store.Alert, error) {
	addr := strings.ToLower(address)
	if _, seen := d.analyzed[addr]; seen {
		return nil, nil
	}
	d.analyzed[addr] = struct{}{}

	summary, err := d.provider.GetActivity(ctx, addr, 500, "TRADE")
	if err != nil {
		return nil, fmt.Errorf("analyze wallet %s: %w", shortAddr(addr), err)
	}

	trades := summary.Activities
	totalTrades := len(trades)
	if totalTrades == 0 {
		return nil, nil
	}
	if totalTrades > d.maxTrades {
		d.logger.Debug("wallet trade count above concentration threshold",
			zap.String("wallet", shortAddr(addr)),
			zap.Int("trade_count", totalTrades),
		)
		return nil, nil
	}

	var totalVolume float64
	for _, t := range trades {
		totalVolume += t.USDSize
	}
	if totalVolume < d.minVolumeUSD {
		d.logger.Debug("wallet volume below concentration threshold",
			zap.String("wallet", shortAddr(addr)),
			zap.Float64("total_volume", totalVolume),
		)
		return nil, nil
	}

	avgTradeSize := totalVolume / float64(totalTrades)
	if avgTradeSize < d.minAvgTradeUSD {
		d.logger.Debug("wallet average trade size below threshold",
			zap.String("wallet", shortAddr(addr)),
			zap.Float64("avg_trade_size", avgTradeSize),
		)
		return nil, nil
	}

	volumes := polymarketdata.AggregateMarketVolumes(trades)
	topConcentration := 0.0
	if len(volumes) > 0 && totalVolume > 0 {
		topConcentration = volumes[0].Volume / totalVolume * 100
	}

	titles := make([]string, 0, 5)
	for _, mv := range volumes {
		if len(titles) == 5 {
			break
		}
		title := mv.Title
		if title == "" {
			title = mv.ConditionID
			if len(title) > 20 {
				title = title[:20]
			}
		}
		titles = append(titles, title)
	}

	d.logger.Info("concentrated betting detected",
		zap.String("wallet", shortAddr(addr)),
		zap.Float64("total_volume", totalVolume),
		zap.Int("trade_count", totalTrades),
	)

	marketName := titles
	if len(marketName) > 3 {
		marketName = marketName[:3]
	}
	return &store.Alert{
		Type:             d.AlertType(),
		WalletAddress:    addr,
		WalletTradeCount: totalTrades,
		Slug:             strings.Join(marketName, ", "),
		USDValue:         totalVolume,
		Details: map[string]any{
			"total_volume":             totalVolume,
			"avg_trade_size":           avgTradeSize,
			"unique_markets":           len(volumes),
			"top_market_concentration": topConcentration,
			"markets":                  titles,
		},
		CreatedAt: time.Now(),
	}, nil
}
