package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

// maxRetainedTrades caps the per-wallet trade window.
const maxRetainedTrades = 1000

// WalletStats is the rolling per-wallet window the profitability rule
// maintains in memory. It is never persisted and resets on restart.
type WalletStats struct {
	Address   string
	Trades    []polymarketstream.Trade
	FirstSeen time.Time
	LastSeen  time.Time

	TotalVolume  float64
	EstimatedPnl float64
	WinCount     int
	LossCount    int
}

func (s *WalletStats) TradeCount() int {
	return len(s.Trades)
}

func (s *WalletStats) WinRate() float64 {
	total := s.WinCount + s.LossCount
	if total == 0 {
		return 0
	}
	return float64(s.WinCount) / float64(total)
}

func (s *WalletStats) TradesPerDay() float64 {
	days := int(s.LastSeen.Sub(s.FirstSeen).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return float64(s.TradeCount()) / float64(days)
}

// openPosition is one unmatched BUY awaiting a SELL on the same
// wallet and market+outcome key.
type openPosition struct {
	price float64
	size  float64
}

// ProfitableTraderDetector flags wallets showing a sustained pattern
// of suspicious profitability. It needs at least two of three signals
// to fire: high win rate, high approximate profit factor, and
// high-frequency trading.
//
// State is mutated without locking. The engine invokes detectors from
// a single consumer loop, one trade at a time.
type ProfitableTraderDetector struct {
	logger *zap.Logger

	minTradesForAnalysis int
	minProfitFactor      float64
	minWinRate           float64
	highFrequency        float64

	stats     map[string]*WalletStats
	positions map[string][]openPosition
	alerted   map[string]struct{}
}

func NewProfitableTraderDetector(logger *zap.Logger, minTradesForAnalysis int, minProfitFactor, minWinRate, highFrequency float64) *ProfitableTraderDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfitableTraderDetector{
		logger:               logger,
		minTradesForAnalysis: minTradesForAnalysis,
		minProfitFactor:      minProfitFactor,
		minWinRate:           minWinRate,
		highFrequency:        highFrequency,
		stats:                make(map[string]*WalletStats),
		positions:            make(map[string][]openPosition),
		alerted:              make(map[string]struct{}),
	}
}

func (d *ProfitableTraderDetector) AlertType() string {
	return store.AlertProfitableTrader
}

func (d *ProfitableTraderDetector) Analyze(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error) {
	wallet := strings.ToLower(trade.ProxyWallet)
	if wallet == "" {
		return nil, nil
	}

	stats := d.updateStats(wallet, trade)
	d.trackPosition(wallet, trade, stats)

	if stats.TradeCount() < d.minTradesForAnalysis {
		return nil, nil
	}
	if _, done := d.alerted[wallet]; done {
		return nil, nil
	}

	alert := d.checkForAnomalies(stats, trade)
	if alert != nil {
		d.alerted[wallet] = struct{}{}
	}
	return alert, nil
}

func (d *ProfitableTraderDetector) updateStats(wallet string, trade polymarketstream.Trade) *WalletStats {
	stats, ok := d.stats[wallet]
	if !ok {
		stats = &WalletStats{
			Address:   wallet,
			FirstSeen: trade.Timestamp,
			LastSeen:  trade.Timestamp,
		}
		d.stats[wallet] = stats
	}

	stats.Trades = append(stats.Trades, trade)
	stats.LastSeen = trade.Timestamp
	stats.TotalVolume += trade.USDValue()

	if len(stats.Trades) > maxRetainedTrades {
		stats.Trades = stats.Trades[len(stats.Trades)-maxRetainedTrades:]
	}
	return stats
}

// trackPosition pairs SELLs with the oldest outstanding BUY on the
// same market+outcome key (FIFO). The head BUY is consumed in full
// even on a size mismatch; partial fills are not modeled, the realized
// quantity is min(sell size, buy size).
func (d *ProfitableTraderDetector) trackPosition(wallet string, trade polymarketstream.Trade, stats *WalletStats) {
	key := wallet + "|" + trade.ConditionID + ":" + trade.Outcome

	switch trade.Side {
	case "BUY":
		d.positions[key] = append(d.positions[key], openPosition{price: trade.Price, size: trade.Size})
	case "SELL":
		queue := d.positions[key]
		if len(queue) == 0 {
			return
		}
		buy := queue[0]
		d.positions[key] = queue[1:]

		matched := trade.Size
		if buy.size < matched {
			matched = buy.size
		}
		pnl := (trade.Price - buy.price) * matched

		stats.EstimatedPnl += pnl
		if pnl > 0 {
			stats.WinCount++
		} else if pnl < 0 {
			stats.LossCount++
		}
	}
}

func (d *ProfitableTraderDetector) checkForAnomalies(stats *WalletStats, latest polymarketstream.Trade) *store.Alert {
	var reasons []string

	winRate := stats.WinRate()
	if winRate >= d.minWinRate {
		reasons = append(reasons, fmt.Sprintf("High win rate: %.1f%%", winRate*100))
	}

	// Win/loss counts stand in for gross profit and loss amounts,
	// which the feed does not reliably expose.
	if stats.WinCount > 0 && stats.LossCount > 0 {
		approxProfitFactor := float64(stats.WinCount) / float64(stats.LossCount)
		if approxProfitFactor >= d.minProfitFactor {
			reasons = append(reasons, fmt.Sprintf("High profit factor: %.2fx", approxProfitFactor))
		}
	}

	tradesPerDay := stats.TradesPerDay()
	if tradesPerDay >= d.highFrequency {
		reasons = append(reasons, fmt.Sprintf("High-frequency trading: %.0f trades/day", tradesPerDay))
	}

	// One matching signal alone is not enough evidence.
	if len(reasons) < 2 {
		return nil
	}

	d.logger.Info("profitable trader detected",
		zap.String("wallet", shortAddr(stats.Address)),
		zap.Strings("reasons", reasons),
	)

	return &store.Alert{
		Type:             d.AlertType(),
		WalletAddress:    stats.Address,
		WalletTradeCount: stats.TradeCount(),
		ConditionID:      latest.ConditionID,
		Slug:             latest.Slug,
		Outcome:          latest.Outcome,
		Side:             latest.Side,
		USDValue:         stats.TotalVolume,
		TransactionHash:  latest.TransactionHash,
		Details: map[string]any{
			"reasons":        reasons,
			"win_rate":       winRate,
			"trades_per_day": tradesPerDay,
			"estimated_pnl":  stats.EstimatedPnl,
			"total_volume":   stats.TotalVolume,
			"trade_count":    stats.TradeCount(),
			"first_seen":     stats.FirstSeen.Format(time.RFC3339),
		},
		CreatedAt: time.Now(),
	}
}

// TrackedWallets returns the rolling stats for every wallet seen this
// session, for diagnostics.
func (d *ProfitableTraderDetector) TrackedWallets() []*WalletStats {
	out := make([]*WalletStats, 0, len(d.stats))
	for _, s := range d.stats {
		out = append(out, s)
	}
	return out
}
