package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	clts "polywatch/clients"
	"polywatch/config"
	"polywatch/internal/alerting"
	"polywatch/internal/app"
	"polywatch/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting polywatch",
		zap.String("dataAPI", cfg.API.DataAPIURL),
		zap.String("feed", cfg.API.WebSocketURL),
	)

	clients := clts.NewClients(logger, cfg)

	st, err := store.New(logger, cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	notifier := alerting.NewMulti(
		alerting.NewLogNotifier(logger, cfg.Alerts.File, cfg.Alerts.MaxFileSizeMB, cfg.Alerts.BackupCount),
		clients.Discord,
	)
	defer notifier.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(logger, cfg, clients.Stream, clients.Data, st, notifier)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
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
