package clients

import (
	"polywatch/clients/discord"
	"polywatch/clients/polymarketdata"
	"polywatch/clients/polymarketstream"
	"polywatch/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Data    *polymarketdata.Client
	Stream  *polymarketstream.Client
	Discord *discord.DiscordClient
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	return &Clients{
		Logger:  logger,
		Data:    polymarketdata.NewClient(logger, cfg.API.DataAPIURL, cfg.API.Timeout),
		Stream:  polymarketstream.NewClient(logger, cfg.API.WebSocketURL),
		Discord: discord.NewDiscordClient(logger, cfg),
	}
}
