package polymarketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(zap.NewNop(), server.URL, 5*time.Second)
}

func TestGetActivity_QueryAndSummary(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activity" {
			t.Errorf("path = %q, want /activity", r.URL.Path)
		}
		gotQuery = map[string]string{
			"user":          r.URL.Query().Get("user"),
			"limit":         r.URL.Query().Get("limit"),
			"sortBy":        r.URL.Query().Get("sortBy"),
			"sortDirection": r.URL.Query().Get("sortDirection"),
			"type":          r.URL.Query().Get("type"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"timestamp": 1700000000, "type": "TRADE", "usdcSize": 100, "side": "BUY", "price": 0.5, "size": 200, "conditionId": "0xc1", "transactionHash": "0xh1"},
			{"timestamp": 1700000100, "type": "REDEEM", "usdcSize": 50},
			{"timestamp": 1700000200000, "type": "TRADE", "usdcSize": 75, "side": "SELL"}
		]`))
	})

	summary, err := client.GetActivity(context.Background(), "0xabc", 100, "")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}

	if gotQuery["user"] != "0xabc" {
		t.Errorf("user = %q, want 0xabc", gotQuery["user"])
	}
	if gotQuery["limit"] != "100" {
		t.Errorf("limit = %q, want 100", gotQuery["limit"])
	}
	if gotQuery["sortBy"] != "TIMESTAMP" || gotQuery["sortDirection"] != "ASC" {
		t.Errorf("sort params = %q/%q, want TIMESTAMP/ASC", gotQuery["sortBy"], gotQuery["sortDirection"])
	}
	if gotQuery["type"] != "" {
		t.Errorf("type = %q, want empty", gotQuery["type"])
	}

	if len(summary.Activities) != 3 {
		t.Fatalf("activities = %d, want 3", len(summary.Activities))
	}
	if summary.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2 (REDEEM excluded)", summary.TotalTrades)
	}
	if summary.FirstTradeAt == nil {
		t.Fatal("FirstTradeAt = nil, want first TRADE timestamp")
	}
	if got := summary.FirstTradeAt.Unix(); got != 1700000000 {
		t.Errorf("FirstTradeAt = %d, want 1700000000", got)
	}
	// Millisecond epoch normalized to seconds.
	if got := summary.Activities[2].Timestamp.Unix(); got != 1700000200 {
		t.Errorf("third timestamp = %d, want 1700000200", got)
	}
}

func TestGetActivity_TypeFilterAndLimitCap(t *testing.T) {
	var gotLimit, gotType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		gotType = r.URL.Query().Get("type")
		w.Write([]byte(`[]`))
	})

	if _, err := client.GetActivity(context.Background(), "0xabc", 9999, "TRADE"); err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if gotLimit != "500" {
		t.Errorf("limit = %q, want capped to 500", gotLimit)
	}
	if gotType != "TRADE" {
		t.Errorf("type = %q, want TRADE", gotType)
	}
}

func TestGetActivity_SkipsBadTimestamps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"timestamp": "not-a-time", "type": "TRADE", "usdcSize": 10},
			{"timestamp": "2024-01-15T12:00:00Z", "type": "TRADE", "usdcSize": 20},
			{"timestamp": null, "type": "TRADE", "usdcSize": 30}
		]`))
	})

	summary, err := client.GetActivity(context.Background(), "0xabc", 10, "TRADE")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if len(summary.Activities) != 1 {
		t.Fatalf("activities = %d, want 1 (bad timestamps skipped)", len(summary.Activities))
	}
	if summary.Activities[0].USDSize != 20 {
		t.Errorf("kept record USDSize = %v, want 20", summary.Activities[0].USDSize)
	}
	want := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if !summary.Activities[0].Timestamp.Equal(want) {
		t.Errorf("kept timestamp = %v, want %v", summary.Activities[0].Timestamp, want)
	}
}

func TestGetActivity_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := client.GetActivity(context.Background(), "0xabc", 10, ""); err == nil {
		t.Fatal("GetActivity: expected error on 429 response")
	}
}

func TestGetPortfolioSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			t.Errorf("path = %q, want /positions", r.URL.Path)
		}
		w.Write([]byte(`[
			{"conditionId": "0xc1", "currentValue": 150, "initialValue": 100, "cashPnl": 50, "realizedPnl": 10},
			{"conditionId": "0xc2", "currentValue": 30, "initialValue": 80, "cashPnl": -50, "realizedPnl": 5}
		]`))
	})

	summary, err := client.GetPortfolioSummary(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetPortfolioSummary: %v", err)
	}
	if summary.PositionCount != 2 {
		t.Errorf("PositionCount = %d, want 2", summary.PositionCount)
	}
	if summary.TotalValue != 180 {
		t.Errorf("TotalValue = %v, want 180", summary.TotalValue)
	}
	if summary.UnrealizedPnl != 0 {
		t.Errorf("UnrealizedPnl = %v, want 0", summary.UnrealizedPnl)
	}
	if summary.RealizedPnl != 15 {
		t.Errorf("RealizedPnl = %v, want 15", summary.RealizedPnl)
	}
}

func TestAggregateMarketVolumes(t *testing.T) {
	activities := []Activity{
		{ConditionID: "0xc1", Title: "Market A", USDSize: 100},
		{ConditionID: "0xc2", Title: "Market B", USDSize: 500},
		{ConditionID: "0xc1", USDSize: 250},
	}

	volumes := AggregateMarketVolumes(activities)
	if len(volumes) != 2 {
		t.Fatalf("markets = %d, want 2", len(volumes))
	}
	if volumes[0].ConditionID != "0xc2" || volumes[0].Volume != 500 {
		t.Errorf("top market = %+v, want 0xc2 with 500", volumes[0])
	}
	if volumes[1].Volume != 350 {
		t.Errorf("second market volume = %v, want 350", volumes[1].Volume)
	}
	if volumes[1].Title != "Market A" {
		t.Errorf("second market title = %q, want Market A", volumes[1].Title)
	}
}

func TestGetActivityPage_OffsetAndOrder(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"limit":         r.URL.Query().Get("limit"),
			"offset":        r.URL.Query().Get("offset"),
			"sortDirection": r.URL.Query().Get("sortDirection"),
			"type":          r.URL.Query().Get("type"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"timestamp": 1700000200, "type": "TRADE", "usdcSize": 75, "side": "SELL"},
			{"timestamp": 1700000000, "type": "TRADE", "usdcSize": 100, "side": "BUY"}
		]`))
	})

	page, err := client.GetActivityPage(context.Background(), "0xabc", 500, 1000, "TRADE")
	if err != nil {
		t.Fatalf("GetActivityPage: %v", err)
	}

	if gotQuery["limit"] != "500" || gotQuery["offset"] != "1000" {
		t.Errorf("limit/offset = %q/%q, want 500/1000", gotQuery["limit"], gotQuery["offset"])
	}
	if gotQuery["sortDirection"] != "DESC" {
		t.Errorf("sortDirection = %q, want DESC", gotQuery["sortDirection"])
	}
	if gotQuery["type"] != "TRADE" {
		t.Errorf("type = %q, want TRADE", gotQuery["type"])
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].Timestamp.After(page[1].Timestamp) {
		t.Errorf("expected newest-first order, got %v then %v", page[0].Timestamp, page[1].Timestamp)
	}
}
