// Command analyze profiles the profitability of Polymarket wallets.
// Wallets may be given as 0x addresses, @usernames, or profile URLs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"polywatch/clients/polymarketdata"
	"polywatch/config"
	"polywatch/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	quick := flag.Bool("quick", false, "open-positions summary only (fast, excludes settled markets)")
	compare := flag.Bool("compare", false, "render a comparison table instead of per-wallet reports")
	maxTrades := flag.Int("max-trades", 50000, "maximum trades to fetch per wallet")
	output := flag.String("o", "", "write the report to a file instead of stdout")
	flag.Parse()

	wallets := flag.Args()
	if len(wallets) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyze [flags] <wallet> [<wallet>...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	client := polymarketdata.NewClient(logger, cfg.API.DataAPIURL, cfg.API.Timeout)
	analyzer := report.NewAnalyzer(logger, client, *maxTrades)

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	var out string
	var analyses []*report.Analysis
	for _, identifier := range wallets {
		address, username, err := report.ResolveWallet(ctx, httpClient, report.DefaultProfileBaseURL, identifier)
		if err != nil {
			logger.Fatal("failed to resolve wallet", zap.String("identifier", identifier), zap.Error(err))
		}
		logger.Info("resolved wallet",
			zap.String("identifier", identifier),
			zap.String("address", address),
		)

		if *quick {
			summary, err := analyzer.QuickSummary(ctx, address)
			if err != nil {
				logger.Fatal("failed to fetch portfolio summary", zap.String("address", address), zap.Error(err))
			}
			out += report.RenderQuick(summary, username)
			continue
		}

		analysis, err := analyzer.AnalyzeWallet(ctx, address, username)
		if err != nil {
			logger.Fatal("analysis failed", zap.String("address", address), zap.Error(err))
		}
		analyses = append(analyses, analysis)
		if !*compare {
			out += report.RenderMarkdown(analysis)
		}
	}

	if *compare && len(analyses) > 0 {
		out = report.RenderComparison(analyses)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			logger.Fatal("failed to write report", zap.String("path", *output), zap.Error(err))
		}
		logger.Info("report written", zap.String("path", *output))
		return
	}
	fmt.Print(out)
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = parsed
	}
	return zapCfg.Build()
}
