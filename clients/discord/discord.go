// Package discord posts detection alerts to a Discord channel as rich
// embeds. The client degrades to a no-op when no bot token is
// configured, so Discord stays optional.
package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"polywatch/config"
	"polywatch/internal/store"
)

// DiscordClient sends alerts to Discord.
// Implements alerting.Notifier.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.ChannelID
	token := cfg.Discord.BotToken
	if token == "" {
		logger.Info("discord bot token not set, Discord alerts disabled")
		return &DiscordClient{logger: logger, channelID: channelID}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{logger: logger, channelID: channelID}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		return
	}

	if _, err := dc.session.ChannelMessageSend(dc.channelID, message); err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Debug("sent discord message")
}

// Notify sends an alert as a rich embed.
func (dc *DiscordClient) Notify(alert store.Alert) {
	if dc.session == nil {
		return
	}

	embed := dc.buildAlertEmbed(alert)

	if _, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed); err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord alert",
		zap.String("alert_type", alert.Type),
		zap.String("wallet", shortAddress(alert.WalletAddress)),
	)
}

func (dc *DiscordClient) buildAlertEmbed(alert store.Alert) *discordgo.MessageEmbed {
	// Choose color based on side
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	switch strings.ToUpper(alert.Side) {
	case "SELL":
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	case "":
		color = 0xF1C40F // Yellow for pattern alerts without a single trade
		sideEmoji = ""
	}

	walletURL := ""
	if alert.WalletAddress != "" {
		walletURL = "https://polymarket.com/profile/" + alert.WalletAddress
	}

	walletDisplay := shortAddress(alert.WalletAddress)
	if walletURL != "" {
		walletDisplay = fmt.Sprintf("[%s](%s)", walletDisplay, walletURL)
	}

	sideValue := "N/A"
	if alert.Side != "" {
		sideValue = strings.TrimSpace(fmt.Sprintf("%s %s", sideEmoji, alert.Side))
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Wallet",
			Value:  walletDisplay,
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  sideValue,
			Inline: true,
		},
		{
			Name:   "Size",
			Value:  fmt.Sprintf("$%.2f", alert.USDValue),
			Inline: true,
		},
		{
			Name:   "History",
			Value:  fmt.Sprintf("%d trades", alert.WalletTradeCount),
			Inline: true,
		},
	}
	if alert.TransactionHash != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Tx",
			Value:  shortAddress(alert.TransactionHash),
			Inline: true,
		})
	}

	description := ""
	if alert.Slug != "" {
		description = fmt.Sprintf("**%s**", alert.Slug)
		if alert.Outcome != "" {
			description += fmt.Sprintf("\nOutcome: %s", alert.Outcome)
		}
	}

	ts := alert.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:       alertTitle(alert.Type),
		URL:         walletURL, // Makes title clickable
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("polywatch * %s", ts.UTC().Format("1/2/2006, 3:04:05PM (MST)")),
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func alertTitle(alertType string) string {
	switch alertType {
	case store.AlertLowHistoryLargeTrade:
		return "🚨 Large Trade, Low History Wallet"
	case store.AlertConcentratedBetting:
		return "🎯 Concentrated Betting Pattern"
	case store.AlertProfitableTrader:
		return "💰 Suspiciously Profitable Trader"
	default:
		return "🚨 Trade Alert"
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// Close shuts down the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session == nil {
		return nil
	}
	return dc.session.Close()
}
