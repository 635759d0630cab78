// Package polymarketdata is a client for the Polymarket Data API. It
// fetches wallet activity history, positions, and profile lookups.
package polymarketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxActivityLimit is the Data API's per-request cap on activity records.
const maxActivityLimit = 500

type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Data API client. timeout of zero means 30s.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Activity is a single activity record for a wallet.
type Activity struct {
	Timestamp       time.Time
	TransactionHash string
	Type            string // TRADE, SPLIT, MERGE, REDEEM, REWARD, CONVERSION
	Size            float64
	USDSize         float64
	ConditionID     string
	Title           string
	Slug            string
	Outcome         string
	Side            string
	Price           float64
	Asset           string
}

// WalletSummary summarizes a wallet's trading history.
type WalletSummary struct {
	Address      string
	TotalTrades  int
	FirstTradeAt *time.Time
	Activities   []Activity
}

// Position is a wallet's position in one market, with P&L fields.
type Position struct {
	ConditionID  string  `json:"conditionId"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnl      float64 `json:"cashPnl"`
	PercentPnl   float64 `json:"percentPnl"`
	RealizedPnl  float64 `json:"realizedPnl"`
	CurrentPrice float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
}

// PortfolioSummary aggregates a wallet's positions.
type PortfolioSummary struct {
	Address           string
	PositionCount     int
	TotalValue        float64
	TotalInitialValue float64
	UnrealizedPnl     float64
	RealizedPnl       float64
	Positions         []Position
}

// rawActivity mirrors the wire shape. Timestamp is kept raw because
// the API returns either a Unix epoch number or an ISO-8601 string.
type rawActivity struct {
	Timestamp       json.RawMessage `json:"timestamp"`
	TransactionHash string          `json:"transactionHash"`
	Type            string          `json:"type"`
	Size            float64         `json:"size"`
	USDSize         float64         `json:"usdcSize"`
	ConditionID     string          `json:"conditionId"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Outcome         string          `json:"outcome"`
	Side            string          `json:"side"`
	Price           float64         `json:"price"`
	Asset           string          `json:"asset"`
}

// GetActivity fetches activity history for a wallet, oldest first.
// limit is capped at 500. activityType filters server-side when
// non-empty (e.g. "TRADE"). Records with unparseable timestamps are
// skipped, not fatal.
func (c *Client) GetActivity(ctx context.Context, address string, limit int, activityType string) (*WalletSummary, error) {
	if limit <= 0 || limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sortBy", "TIMESTAMP")
	params.Set("sortDirection", "ASC")
	if activityType != "" {
		params.Set("type", activityType)
	}

	var raw []rawActivity
	if err := c.getJSON(ctx, "/activity", params, &raw); err != nil {
		return nil, fmt.Errorf("get activity for %s: %w", shortAddr(address), err)
	}

	activities := c.convertActivities(address, raw)

	summary := &WalletSummary{
		Address:    address,
		Activities: activities,
	}
	for i := range activities {
		if activities[i].Type != "TRADE" {
			continue
		}
		summary.TotalTrades++
		if summary.FirstTradeAt == nil {
			summary.FirstTradeAt = &activities[i].Timestamp
		}
	}

	return summary, nil
}

// GetActivityPage fetches one page of a wallet's activity, newest
// first. The batch analyzer walks a wallet's full history by stepping
// offset in pageSize increments until a short page comes back.
func (c *Client) GetActivityPage(ctx context.Context, address string, limit, offset int, activityType string) ([]Activity, error) {
	if limit <= 0 || limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("sortBy", "TIMESTAMP")
	params.Set("sortDirection", "DESC")
	if activityType != "" {
		params.Set("type", activityType)
	}

	var raw []rawActivity
	if err := c.getJSON(ctx, "/activity", params, &raw); err != nil {
		return nil, fmt.Errorf("get activity page for %s: %w", shortAddr(address), err)
	}

	return c.convertActivities(address, raw), nil
}

func (c *Client) convertActivities(address string, raw []rawActivity) []Activity {
	activities := make([]Activity, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		ts, err := parseTimestamp(item.Timestamp)
		if err != nil {
			skipped++
			continue
		}
		activities = append(activities, Activity{
			Timestamp:       ts,
			TransactionHash: item.TransactionHash,
			Type:            item.Type,
			Size:            item.Size,
			USDSize:         item.USDSize,
			ConditionID:     item.ConditionID,
			Title:           item.Title,
			Slug:            item.Slug,
			Outcome:         item.Outcome,
			Side:            item.Side,
			Price:           item.Price,
			Asset:           item.Asset,
		})
	}
	if skipped > 0 {
		c.logger.Debug("skipped activity records with bad timestamps",
			zap.String("wallet", shortAddr(address)),
			zap.Int("skipped", skipped),
		)
	}
	return activities
}

// GetPositions fetches all positions for a wallet with P&L data.
func (c *Client) GetPositions(ctx context.Context, address string, limit int) ([]Position, error) {
	if limit <= 0 {
		limit = maxActivityLimit
	}

	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(limit))

	var positions []Position
	if err := c.getJSON(ctx, "/positions", params, &positions); err != nil {
		return nil, fmt.Errorf("get positions for %s: %w", shortAddr(address), err)
	}
	return positions, nil
}

// GetPortfolioSummary aggregates a wallet's positions. Much cheaper
// than replaying the full trade history.
func (c *Client) GetPortfolioSummary(ctx context.Context, address string) (*PortfolioSummary, error) {
	positions, err := c.GetPositions(ctx, address, maxActivityLimit)
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		Address:       address,
		PositionCount: len(positions),
		Positions:     positions,
	}
	for _, p := range positions {
		summary.TotalValue += p.CurrentValue
		summary.TotalInitialValue += p.InitialValue
		summary.UnrealizedPnl += p.CashPnl
		summary.RealizedPnl += p.RealizedPnl
	}
	return summary, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// parseTimestamp accepts either a Unix epoch number (seconds or
// milliseconds) or an ISO-8601 string.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		if epoch <= 0 {
			return time.Time{}, fmt.Errorf("non-positive timestamp %v", epoch)
		}
		if epoch > 1e12 {
			epoch = epoch / 1000
		}
		return time.Unix(int64(epoch), 0), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("unhandled timestamp encoding: %s", string(raw))
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// MarketVolume is the USD volume a wallet traded in one market.
type MarketVolume struct {
	ConditionID string
	Title       string
	Volume      float64
}

// AggregateMarketVolumes groups activity volume by market.
func AggregateMarketVolumes(activities []Activity) []MarketVolume {
	volumes := make(map[string]*MarketVolume)
	for _, a := range activities {
		id := a.ConditionID
		if id == "" {
			id = "unknown"
		}
		mv, ok := volumes[id]
		if !ok {
			mv = &MarketVolume{ConditionID: id}
			volumes[id] = mv
		}
		mv.Volume += a.USDSize
		if a.Title != "" {
			mv.Title = a.Title
		}
	}

	out := make([]MarketVolume, 0, len(volumes))
	for _, mv := range volumes {
		out = append(out, *mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	return out
}

// shortAddr truncates long addresses for readable logging.
func shortAddr(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:6] + "…" + s[len(s)-6:]
}
