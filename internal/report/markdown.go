package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"polywatch/clients/polymarketdata"
)

const maxPositionRows = 10

// RenderMarkdown renders a full wallet analysis as Markdown.
func RenderMarkdown(a *Analysis) string {
	var sb strings.Builder
	p := &a.Profile

	sb.WriteString("# Wallet Analysis\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", a.GeneratedAt.UTC().Format(time.RFC3339)))

	sb.WriteString("## Profile\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Address | `%s` |\n", p.Address))
	if p.Username != "" {
		sb.WriteString(fmt.Sprintf("| Username | @%s |\n", p.Username))
	}
	if !p.FirstTradeAt.IsZero() {
		sb.WriteString(fmt.Sprintf("| First Trade | %s |\n", p.FirstTradeAt.UTC().Format("2006-01-02")))
		sb.WriteString(fmt.Sprintf("| Last Trade | %s |\n", p.LastTradeAt.UTC().Format("2006-01-02")))
	}
	sb.WriteString(fmt.Sprintf("| Active Days | %d |\n", p.ActiveDays))
	sb.WriteString("\n")

	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total P&L | %s |\n", formatUSD(p.TotalPnl)))
	sb.WriteString(fmt.Sprintf("| Total Volume | %s |\n", formatLargeUSD(p.TotalVolume)))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", p.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.1f%% |\n", p.WinRate*100))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", formatProfitFactor(p.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("| ROI | %.2f%% |\n", p.ROI()))
	sb.WriteString(fmt.Sprintf("| Avg P&L / Trade | %s |\n", formatUSD(p.AvgProfitPerTrade)))
	sb.WriteString(fmt.Sprintf("| Best Position | %s |\n", formatUSD(p.BestTradePnl)))
	sb.WriteString(fmt.Sprintf("| Worst Position | %s |\n", formatUSD(p.WorstTradePnl)))
	sb.WriteString(fmt.Sprintf("| Trades / Day | %.1f |\n", p.TradesPerDay))
	sb.WriteString(fmt.Sprintf("| Avg Trade Size | %s |\n", formatUSD(p.AvgTradeSize)))
	sb.WriteString(fmt.Sprintf("| Median Trade Size | %s |\n", formatUSD(p.MedianTradeSize)))
	sb.WriteString(fmt.Sprintf("| Max Trade Size | %s |\n", formatUSD(p.MaxTradeSize)))
	sb.WriteString("\n")

	if len(p.Positions) > 0 {
		sb.WriteString("## Top Positions by P&L\n\n")
		sb.WriteString("| Market | Outcome | Net | P&L | Trades |\n")
		sb.WriteString("|--------|---------|-----|-----|--------|\n")
		for i, pos := range p.Positions {
			if i >= maxPositionRows {
				break
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
				truncate(pos.Title, 45), pos.Outcome, netLabel(pos.NetPosition),
				formatUSD(pos.RealizedPnl), pos.TradeCount))
		}
		sb.WriteString("\n")
	}

	if len(a.Anomalies) > 0 {
		sb.WriteString("## Anomalies\n\n")
		for _, anomaly := range a.Anomalies {
			sb.WriteString(fmt.Sprintf("- %s\n", anomaly))
		}
		sb.WriteString("\n")
	}
	if len(a.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, warning := range a.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", warning))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderComparison renders a side-by-side table for multiple wallets.
func RenderComparison(analyses []*Analysis) string {
	var sb strings.Builder
	sb.WriteString("# Wallet Comparison\n\n")
	sb.WriteString("| Wallet | P&L | Volume | Win Rate | ROI | Trades |\n")
	sb.WriteString("|--------|-----|--------|----------|-----|--------|\n")
	for _, a := range analyses {
		p := &a.Profile
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.1f%% | %.2f%% | %d |\n",
			walletLabel(p), formatLargeUSD(p.TotalPnl), formatLargeUSD(p.TotalVolume),
			p.WinRate*100, p.ROI(), p.TotalTrades))
	}
	sb.WriteString("\n")

	anyAnomalies := false
	for _, a := range analyses {
		if len(a.Anomalies) > 0 {
			anyAnomalies = true
			break
		}
	}
	if anyAnomalies {
		sb.WriteString("## Anomaly Summary\n\n")
		for _, a := range analyses {
			if len(a.Anomalies) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("### %s\n\n", walletLabel(&a.Profile)))
			for _, anomaly := range a.Anomalies {
				sb.WriteString(fmt.Sprintf("- %s\n", anomaly))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderQuick renders an open-positions summary. Closed and settled
// markets are excluded, so this understates all-time P&L.
func RenderQuick(summary *polymarketdata.PortfolioSummary, username string) string {
	var sb strings.Builder
	sb.WriteString("# Open Positions Summary\n\n")
	sb.WriteString(fmt.Sprintf("Address: `%s`\n", summary.Address))
	if username != "" {
		sb.WriteString(fmt.Sprintf("Username: @%s\n", username))
	}
	sb.WriteString("\n> Note: only OPEN positions are included. Run a full analysis for all-time P&L.\n\n")

	totalPnl := summary.UnrealizedPnl + summary.RealizedPnl
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Open P&L | %s |\n", formatUSD(totalPnl)))
	sb.WriteString(fmt.Sprintf("| Unrealized | %s |\n", formatUSD(summary.UnrealizedPnl)))
	sb.WriteString(fmt.Sprintf("| Realized (partial) | %s |\n", formatUSD(summary.RealizedPnl)))
	sb.WriteString(fmt.Sprintf("| Open Positions | %d |\n", summary.PositionCount))
	sb.WriteString(fmt.Sprintf("| Current Value | %s |\n", formatUSD(summary.TotalValue)))
	sb.WriteString(fmt.Sprintf("| Initial Value | %s |\n", formatUSD(summary.TotalInitialValue)))
	sb.WriteString("\n")

	if len(summary.Positions) > 0 {
		positions := make([]polymarketdata.Position, len(summary.Positions))
		copy(positions, summary.Positions)
		sort.SliceStable(positions, func(i, j int) bool {
			return positions[i].CashPnl+positions[i].RealizedPnl > positions[j].CashPnl+positions[j].RealizedPnl
		})

		sb.WriteString("## Top Positions by P&L\n\n")
		sb.WriteString("| Market | Outcome | Value | P&L |\n")
		sb.WriteString("|--------|---------|-------|-----|\n")
		for i, pos := range positions {
			if i >= maxPositionRows {
				break
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				truncate(pos.Title, 45), pos.Outcome,
				formatUSD(pos.CurrentValue), formatUSD(pos.CashPnl+pos.RealizedPnl)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func walletLabel(p *WalletProfile) string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return shortAddr(p.Address)
}

func netLabel(net float64) string {
	switch {
	case net > 0:
		return "LONG"
	case net < 0:
		return "SHORT"
	default:
		return "FLAT"
	}
}

func formatUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func formatLargeUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%s$%.2fM", sign, v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%s$%.1fK", sign, v/1_000)
	default:
		return fmt.Sprintf("%s$%.2f", sign, v)
	}
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "n/a (no losses)"
	}
	return fmt.Sprintf("%.2fx", pf)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
