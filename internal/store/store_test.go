package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheWallet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.CacheWallet(ctx, "0xABC", 42, &first); err != nil {
		t.Fatalf("CacheWallet: %v", err)
	}

	// Address matching is case-insensitive.
	w, err := s.CachedWallet(ctx, "0xabc")
	if err != nil {
		t.Fatalf("CachedWallet: %v", err)
	}
	if w == nil {
		t.Fatal("CachedWallet = nil, want row")
	}
	if w.TradeCount != 42 {
		t.Errorf("TradeCount = %d, want 42", w.TradeCount)
	}
	if w.FirstTradeAt == nil || !w.FirstTradeAt.Equal(first) {
		t.Errorf("FirstTradeAt = %v, want %v", w.FirstTradeAt, first)
	}
	if time.Since(w.CachedAt) > time.Minute {
		t.Errorf("CachedAt = %v, want recent", w.CachedAt)
	}
}

func TestCacheWallet_UpsertPreservesFirstTradeAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.CacheWallet(ctx, "0xabc", 5, &first); err != nil {
		t.Fatalf("CacheWallet: %v", err)
	}
	if err := s.CacheWallet(ctx, "0xabc", 6, nil); err != nil {
		t.Fatalf("CacheWallet update: %v", err)
	}

	w, err := s.CachedWallet(ctx, "0xabc")
	if err != nil {
		t.Fatalf("CachedWallet: %v", err)
	}
	if w.TradeCount != 6 {
		t.Errorf("TradeCount = %d, want 6", w.TradeCount)
	}
	if w.FirstTradeAt == nil || !w.FirstTradeAt.Equal(first) {
		t.Errorf("FirstTradeAt = %v, want preserved %v", w.FirstTradeAt, first)
	}
}

func TestCachedWallet_Missing(t *testing.T) {
	s := newTestStore(t)

	w, err := s.CachedWallet(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("CachedWallet: %v", err)
	}
	if w != nil {
		t.Errorf("CachedWallet = %+v, want nil for unknown wallet", w)
	}
}

func TestCachedWalletIfFresh_TTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CacheWallet(ctx, "0xabc", 3, nil); err != nil {
		t.Fatalf("CacheWallet: %v", err)
	}

	w, err := s.CachedWalletIfFresh(ctx, "0xabc", time.Hour)
	if err != nil {
		t.Fatalf("CachedWalletIfFresh: %v", err)
	}
	if w == nil {
		t.Error("fresh row not returned")
	}

	// A zero TTL makes any row stale since age >= ttl always holds.
	w, err = s.CachedWalletIfFresh(ctx, "0xabc", 0)
	if err != nil {
		t.Fatalf("CachedWalletIfFresh: %v", err)
	}
	if w != nil {
		t.Errorf("row exactly ttl old returned = %+v, want nil", w)
	}
}

func TestIncrementWalletTradeCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No-op when the wallet was never cached.
	if err := s.IncrementWalletTradeCount(ctx, "0xabc"); err != nil {
		t.Fatalf("IncrementWalletTradeCount on missing row: %v", err)
	}
	if w, _ := s.CachedWallet(ctx, "0xabc"); w != nil {
		t.Errorf("increment created row %+v, want no row", w)
	}

	if err := s.CacheWallet(ctx, "0xabc", 7, nil); err != nil {
		t.Fatalf("CacheWallet: %v", err)
	}
	if err := s.IncrementWalletTradeCount(ctx, "0xABC"); err != nil {
		t.Fatalf("IncrementWalletTradeCount: %v", err)
	}
	w, _ := s.CachedWallet(ctx, "0xabc")
	if w.TradeCount != 8 {
		t.Errorf("TradeCount = %d, want 8", w.TradeCount)
	}
}

func TestSaveAlert_AssignsIDAndRecentAlertsOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Alert{
		Type:             AlertLowHistoryLargeTrade,
		WalletAddress:    "0xABC",
		WalletTradeCount: 3,
		USDValue:         25000,
		Details:          map[string]any{"trade_count": 3},
		CreatedAt:        time.Now().Add(-time.Minute),
	}
	second := &Alert{
		Type:          AlertProfitableTrader,
		WalletAddress: "0xdef",
		USDValue:      31000,
		CreatedAt:     time.Now(),
	}

	id1, err := s.SaveAlert(ctx, first)
	if err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
	if id1 == 0 || first.ID != id1 {
		t.Errorf("id = %d, alert.ID = %d, want matching non-zero", id1, first.ID)
	}
	id2, err := s.SaveAlert(ctx, second)
	if err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}
	if id2 == id1 {
		t.Errorf("second id = %d, want distinct from %d", id2, id1)
	}

	alerts, err := s.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if alerts[0].Type != AlertProfitableTrader {
		t.Errorf("newest alert type = %q, want %q", alerts[0].Type, AlertProfitableTrader)
	}
	if alerts[1].WalletAddress != "0xabc" {
		t.Errorf("wallet = %q, want lowercased 0xabc", alerts[1].WalletAddress)
	}
	if alerts[1].WalletTradeCount != 3 {
		t.Errorf("WalletTradeCount = %d, want 3", alerts[1].WalletTradeCount)
	}
	// JSON round-trips integers as float64.
	if got := alerts[1].Details["trade_count"]; got != float64(3) {
		t.Errorf("details trade_count = %v, want 3", got)
	}
	if alerts[0].Details == nil {
		t.Error("nil Details not normalized to empty map")
	}
}

func TestSaveTrade_IgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := &TradeRecord{
		TransactionHash: "0xh1",
		Asset:           "123",
		WalletAddress:   "0xABC",
		Side:            "BUY",
		Price:           0.4,
		Size:            100,
		USDValue:        40,
		Timestamp:       time.Now(),
	}

	if err := s.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}
	if err := s.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade duplicate: %v", err)
	}
	// Same tx hash on the other outcome token is a distinct fill.
	other := *trade
	other.Asset = "456"
	if err := s.SaveTrade(ctx, &other); err != nil {
		t.Fatalf("SaveTrade other asset: %v", err)
	}

	n, err := s.WalletTradeRows(ctx, "0xabc")
	if err != nil {
		t.Fatalf("WalletTradeRows: %v", err)
	}
	if n != 2 {
		t.Errorf("trade rows = %d, want 2", n)
	}
}
