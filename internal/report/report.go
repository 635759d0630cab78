// Package report builds wallet profitability profiles from the
// Polymarket data API for the analyze command. It aggregates a
// wallet's trade history into per-market positions, computes realized
// P&L and performance metrics, and flags patterns worth a closer look.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"polywatch/clients/polymarketdata"
)

const pageSize = 500

// ActivitySource is the slice of the data API client the analyzer
// consumes.
type ActivitySource interface {
	GetActivityPage(ctx context.Context, address string, limit, offset int, activityType string) ([]polymarketdata.Activity, error)
	GetPortfolioSummary(ctx context.Context, address string) (*polymarketdata.PortfolioSummary, error)
}

// MarketPosition aggregates a wallet's trades in one market outcome.
type MarketPosition struct {
	Slug         string
	Title        string
	Outcome      string
	TotalBought  float64
	TotalSold    float64
	AvgBuyPrice  float64
	AvgSellPrice float64
	NetPosition  float64
	RealizedPnl  float64
	TradeCount   int
	FirstTrade   time.Time
	LastTrade    time.Time
}

// WalletProfile holds the computed metrics for one wallet.
type WalletProfile struct {
	Address  string
	Username string

	TotalPnl     float64
	TotalVolume  float64
	TotalTrades  int
	WinRate      float64
	ProfitFactor float64 // gross profit / gross loss; +Inf when no losses

	AvgProfitPerTrade float64
	BestTradePnl      float64
	WorstTradePnl     float64

	FirstTradeAt time.Time
	LastTradeAt  time.Time
	ActiveDays   int
	TradesPerDay float64

	AvgTradeSize    float64
	MedianTradeSize float64
	MaxTradeSize    float64

	Positions []MarketPosition
}

// ROI is realized P&L as a percentage of traded volume.
func (p *WalletProfile) ROI() float64 {
	if p.TotalVolume <= 0 {
		return 0
	}
	return p.TotalPnl / p.TotalVolume * 100
}

// Analysis is the result of analyzing one wallet.
type Analysis struct {
	Profile     WalletProfile
	Warnings    []string
	Anomalies   []string
	GeneratedAt time.Time
}

// Analyzer fetches and profiles wallet trading history.
type Analyzer struct {
	logger    *zap.Logger
	source    ActivitySource
	maxTrades int
}

// NewAnalyzer returns an Analyzer that fetches at most maxTrades
// trades per wallet. maxTrades <= 0 means no cap.
func NewAnalyzer(logger *zap.Logger, source ActivitySource, maxTrades int) *Analyzer {
	return &Analyzer{
		logger:    logger,
		source:    source,
		maxTrades: maxTrades,
	}
}

// AnalyzeWallet fetches the wallet's full trade history and computes
// its profile. A wallet with no trades yields an empty profile with a
// warning rather than an error.
func (a *Analyzer) AnalyzeWallet(ctx context.Context, address, username string) (*Analysis, error) {
	address = strings.ToLower(address)
	a.logger.Info("analyzing wallet",
		zap.String("wallet", shortAddr(address)),
		zap.String("username", username),
	)

	trades, err := a.fetchAllTrades(ctx, address)
	if err != nil {
		return nil, err
	}
	a.logger.Info("fetched trade history",
		zap.String("wallet", shortAddr(address)),
		zap.Int("trades", len(trades)),
	)

	analysis := &Analysis{
		Profile: WalletProfile{
			Address:      address,
			Username:     username,
			ProfitFactor: 0,
		},
		GeneratedAt: time.Now(),
	}
	if len(trades) == 0 {
		analysis.Warnings = append(analysis.Warnings, "No trades found for this wallet")
		return analysis, nil
	}

	positions := buildPositions(trades)
	analysis.Profile = calculateProfile(address, username, trades, positions)
	analysis.Anomalies = detectAnomalies(&analysis.Profile)
	return analysis, nil
}

// QuickSummary fetches open positions only. Much faster than a full
// analysis but excludes closed and settled markets.
func (a *Analyzer) QuickSummary(ctx context.Context, address string) (*polymarketdata.PortfolioSummary, error) {
	return a.source.GetPortfolioSummary(ctx, strings.ToLower(address))
}

func (a *Analyzer) fetchAllTrades(ctx context.Context, address string) ([]polymarketdata.Activity, error) {
	var trades []polymarketdata.Activity
	offset := 0
	for a.maxTrades <= 0 || len(trades) < a.maxTrades {
		page, err := a.source.GetActivityPage(ctx, address, pageSize, offset, "TRADE")
		if err != nil {
			return nil, fmt.Errorf("fetch trades at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		trades = append(trades, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	if a.maxTrades > 0 && len(trades) > a.maxTrades {
		trades = trades[:a.maxTrades]
	}
	return trades, nil
}

// buildPositions groups trades by market and outcome and computes
// realized P&L from the matched portion of buys and sells at
// volume-weighted average prices.
func buildPositions(trades []polymarketdata.Activity) []MarketPosition {
	type group struct {
		trades []polymarketdata.Activity
	}
	groups := make(map[string]*group)
	var order []string
	for _, t := range trades {
		key := t.Slug + "|" + t.Outcome
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.trades = append(g.trades, t)
	}

	positions := make([]MarketPosition, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		pos := MarketPosition{
			Slug:       g.trades[0].Slug,
			Title:      g.trades[0].Title,
			Outcome:    g.trades[0].Outcome,
			TradeCount: len(g.trades),
			FirstTrade: g.trades[0].Timestamp,
			LastTrade:  g.trades[0].Timestamp,
		}

		var buyCost, sellProceeds float64
		for _, t := range g.trades {
			if t.Timestamp.Before(pos.FirstTrade) {
				pos.FirstTrade = t.Timestamp
			}
			if t.Timestamp.After(pos.LastTrade) {
				pos.LastTrade = t.Timestamp
			}
			switch t.Side {
			case "BUY":
				pos.TotalBought += t.Size
				buyCost += t.Price * t.Size
			case "SELL":
				pos.TotalSold += t.Size
				sellProceeds += t.Price * t.Size
			}
		}
		if pos.TotalBought > 0 {
			pos.AvgBuyPrice = buyCost / pos.TotalBought
		}
		if pos.TotalSold > 0 {
			pos.AvgSellPrice = sellProceeds / pos.TotalSold
		}
		pos.NetPosition = pos.TotalBought - pos.TotalSold

		matched := math.Min(pos.TotalBought, pos.TotalSold)
		if matched > 0 {
			pos.RealizedPnl = matched * (pos.AvgSellPrice - pos.AvgBuyPrice)
		}
		positions = append(positions, pos)
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return math.Abs(positions[i].RealizedPnl) > math.Abs(positions[j].RealizedPnl)
	})
	return positions
}

func calculateProfile(address, username string, trades []polymarketdata.Activity, positions []MarketPosition) WalletProfile {
	profile := WalletProfile{
		Address:     address,
		Username:    username,
		TotalTrades: len(trades),
		Positions:   positions,
	}

	var grossProfit, grossLoss float64
	wins := 0
	var pnlPerTrade []float64
	for i, pos := range positions {
		profile.TotalPnl += pos.RealizedPnl
		if pos.RealizedPnl > 0 {
			wins++
			grossProfit += pos.RealizedPnl
		} else if pos.RealizedPnl < 0 {
			grossLoss += -pos.RealizedPnl
		}
		if pos.TradeCount > 0 {
			pnlPerTrade = append(pnlPerTrade, pos.RealizedPnl/float64(pos.TradeCount))
		}
		if i == 0 || pos.RealizedPnl > profile.BestTradePnl {
			profile.BestTradePnl = pos.RealizedPnl
		}
		if i == 0 || pos.RealizedPnl < profile.WorstTradePnl {
			profile.WorstTradePnl = pos.RealizedPnl
		}
	}
	if len(positions) > 0 {
		profile.WinRate = float64(wins) / float64(len(positions))
	}
	switch {
	case grossLoss > 0:
		profile.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profile.ProfitFactor = math.Inf(1)
	}
	if len(pnlPerTrade) > 0 {
		var sum float64
		for _, v := range pnlPerTrade {
			sum += v
		}
		profile.AvgProfitPerTrade = sum / float64(len(pnlPerTrade))
	}

	sizes := make([]float64, 0, len(trades))
	days := make(map[string]struct{})
	profile.FirstTradeAt = trades[0].Timestamp
	profile.LastTradeAt = trades[0].Timestamp
	for _, t := range trades {
		profile.TotalVolume += t.USDSize
		sizes = append(sizes, t.USDSize)
		if t.USDSize > profile.MaxTradeSize {
			profile.MaxTradeSize = t.USDSize
		}
		if t.Timestamp.Before(profile.FirstTradeAt) {
			profile.FirstTradeAt = t.Timestamp
		}
		if t.Timestamp.After(profile.LastTradeAt) {
			profile.LastTradeAt = t.Timestamp
		}
		days[t.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	profile.ActiveDays = len(days)
	profile.AvgTradeSize = profile.TotalVolume / float64(len(trades))
	profile.MedianTradeSize = median(sizes)

	spanDays := int(profile.LastTradeAt.Sub(profile.FirstTradeAt).Hours()/24) + 1
	profile.TradesPerDay = float64(len(trades)) / float64(spanDays)

	return profile
}

// detectAnomalies flags patterns typical of insider or bot wallets.
func detectAnomalies(p *WalletProfile) []string {
	var anomalies []string
	if p.WinRate > 0.75 {
		anomalies = append(anomalies, fmt.Sprintf("Exceptionally high win rate: %.1f%%", p.WinRate*100))
	}
	if !math.IsInf(p.ProfitFactor, 1) && p.ProfitFactor > 3.0 {
		anomalies = append(anomalies, fmt.Sprintf("Very high profit factor: %.2f", p.ProfitFactor))
	}
	if p.TotalVolume > 1_000_000 && p.TotalPnl > 0 {
		if roi := p.ROI(); roi > 0.5 {
			anomalies = append(anomalies, fmt.Sprintf("Sustained %.2f%% ROI on $%.0f volume", roi, p.TotalVolume))
		}
	}
	if p.TradesPerDay > 100 {
		anomalies = append(anomalies, fmt.Sprintf("Extremely high trade frequency: %.0f/day (likely bot)", p.TradesPerDay))
	}
	if p.WinRate > 0.9 && p.TotalTrades > 100 {
		anomalies = append(anomalies, "Suspiciously high win rate with significant sample size")
	}
	return anomalies
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func shortAddr(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}
