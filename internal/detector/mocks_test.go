package detector

import (
	"context"
	"time"

	"polywatch/clients/polymarketdata"
	"polywatch/clients/polymarketstream"
	"polywatch/internal/store"
)

type mockProvider struct {
	getActivity func(ctx context.Context, address string, limit int, activityType string) (*polymarketdata.WalletSummary, error)
	calls       int
}

func (m *mockProvider) GetActivity(ctx context.Context, address string, limit int, activityType string) (*polymarketdata.WalletSummary, error) {
	m.calls++
	return m.getActivity(ctx, address, limit, activityType)
}

type mockCache struct {
	fresh      map[string]*store.CachedWallet
	freshErr   error
	cached     map[string]int
	cachedErr  error
	firstTimes map[string]*time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		fresh:      make(map[string]*store.CachedWallet),
		cached:     make(map[string]int),
		firstTimes: make(map[string]*time.Time),
	}
}

func (m *mockCache) CachedWalletIfFresh(ctx context.Context, address string, ttl time.Duration) (*store.CachedWallet, error) {
	if m.freshErr != nil {
		return nil, m.freshErr
	}
	return m.fresh[address], nil
}

func (m *mockCache) CacheWallet(ctx context.Context, address string, tradeCount int, firstTradeAt *time.Time) error {
	if m.cachedErr != nil {
		return m.cachedErr
	}
	m.cached[address] = tradeCount
	m.firstTimes[address] = firstTradeAt
	return nil
}

type mockStore struct {
	alerts     []store.Alert
	alertErr   error
	trades     []store.TradeRecord
	tradeErr   error
	increments []string
	incrErr    error
	nextID     int64
}

func (m *mockStore) SaveAlert(ctx context.Context, alert *store.Alert) (int64, error) {
	if m.alertErr != nil {
		return 0, m.alertErr
	}
	m.nextID++
	alert.ID = m.nextID
	m.alerts = append(m.alerts, *alert)
	return m.nextID, nil
}

func (m *mockStore) SaveTrade(ctx context.Context, trade *store.TradeRecord) error {
	if m.tradeErr != nil {
		return m.tradeErr
	}
	m.trades = append(m.trades, *trade)
	return nil
}

func (m *mockStore) IncrementWalletTradeCount(ctx context.Context, address string) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.increments = append(m.increments, address)
	return nil
}

type mockDetector struct {
	alertType string
	analyze   func(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error)
}

func (m *mockDetector) AlertType() string {
	return m.alertType
}

func (m *mockDetector) Analyze(ctx context.Context, trade polymarketstream.Trade) (*store.Alert, error) {
	return m.analyze(ctx, trade)
}
