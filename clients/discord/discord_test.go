package discord

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"polywatch/config"
	"polywatch/internal/store"
)

func sampleAlert() store.Alert {
	return store.Alert{
		Type:             store.AlertLowHistoryLargeTrade,
		WalletAddress:    "0x1234567890abcdef1234567890abcdef12345678",
		WalletTradeCount: 3,
		Slug:             "test-market",
		Outcome:          "Yes",
		Side:             "BUY",
		USDValue:         25000,
		TransactionHash:  "0xdeadbeefdeadbeefdeadbeef",
		CreatedAt:        time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestNewDiscordClient_NoToken(t *testing.T) {
	cfg := &config.Config{
		Discord: config.DiscordConfig{
			BotToken:  "",
			ChannelID: "channel-123",
		},
	}

	client := NewDiscordClient(zap.NewNop(), cfg)

	if client.session != nil {
		t.Error("expected nil session when no token provided")
	}
	if client.channelID != "channel-123" {
		t.Errorf("unexpected channel: %s", client.channelID)
	}
}

func TestNotify_NoSession(t *testing.T) {
	client := &DiscordClient{
		logger:  zap.NewNop(),
		session: nil,
	}

	// Should not panic
	client.Notify(sampleAlert())
	client.SendMessage("test message")
}

func TestBuildAlertEmbed_BuySide(t *testing.T) {
	client := &DiscordClient{logger: zap.NewNop()}

	embed := client.buildAlertEmbed(sampleAlert())

	if embed.Title != "🚨 Large Trade, Low History Wallet" {
		t.Errorf("unexpected title: %s", embed.Title)
	}
	if embed.Color != 0x2ECC71 { // Green for BUY
		t.Errorf("unexpected color for BUY: %d", embed.Color)
	}
	if !strings.Contains(embed.URL, "0x1234567890abcdef1234567890abcdef12345678") {
		t.Errorf("title URL should link the wallet profile: %s", embed.URL)
	}
	if !strings.Contains(embed.Description, "test-market") {
		t.Errorf("unexpected description: %s", embed.Description)
	}

	var foundSide, foundSize bool
	for _, field := range embed.Fields {
		if field.Name == "Side" && field.Value == "🟢 BUY" {
			foundSide = true
		}
		if field.Name == "Size" && field.Value == "$25000.00" {
			foundSize = true
		}
	}
	if !foundSide {
		t.Error("expected BUY side with green emoji")
	}
	if !foundSize {
		t.Error("expected formatted USD size field")
	}
}

func TestBuildAlertEmbed_SellSide(t *testing.T) {
	client := &DiscordClient{logger: zap.NewNop()}

	alert := sampleAlert()
	alert.Side = "SELL"
	embed := client.buildAlertEmbed(alert)

	if embed.Color != 0xE74C3C { // Red for SELL
		t.Errorf("unexpected color for SELL: %d", embed.Color)
	}
}

func TestBuildAlertEmbed_PatternAlertWithoutSide(t *testing.T) {
	client := &DiscordClient{logger: zap.NewNop()}

	alert := store.Alert{
		Type:             store.AlertConcentratedBetting,
		WalletAddress:    "0x1234567890abcdef1234567890abcdef12345678",
		WalletTradeCount: 8,
		USDValue:         15000,
		CreatedAt:        time.Now(),
	}
	embed := client.buildAlertEmbed(alert)

	if embed.Title != "🎯 Concentrated Betting Pattern" {
		t.Errorf("unexpected title: %s", embed.Title)
	}
	if embed.Color != 0xF1C40F {
		t.Errorf("unexpected color for sideless alert: %d", embed.Color)
	}

	for _, field := range embed.Fields {
		if field.Name == "Side" && field.Value != "N/A" {
			t.Errorf("Side field = %q, want N/A", field.Value)
		}
		if field.Name == "Tx" {
			t.Error("Tx field present without a transaction hash")
		}
	}
}

func TestBuildAlertEmbed_ZeroTimestamp(t *testing.T) {
	client := &DiscordClient{logger: zap.NewNop()}

	alert := sampleAlert()
	alert.CreatedAt = time.Time{}
	embed := client.buildAlertEmbed(alert)

	if embed.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
	if embed.Footer == nil || embed.Footer.Text == "" {
		t.Error("expected footer text")
	}
}

func TestAlertTitle_UnknownType(t *testing.T) {
	if got := alertTitle("something_else"); got != "🚨 Trade Alert" {
		t.Errorf("alertTitle = %q, want generic fallback", got)
	}
}

func TestShortAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x1234567890abcdef1234567890abcdef12345678", "0x1234…345678"},
		{"0x123456789012", "0x123456789012"}, // <= 14 chars
		{"short", "short"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := shortAddress(tt.input)
			if result != tt.expected {
				t.Errorf("shortAddress(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClose_NoSession(t *testing.T) {
	client := &DiscordClient{
		logger:  zap.NewNop(),
		session: nil,
	}

	if err := client.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
