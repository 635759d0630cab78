// Package store provides SQLite-backed persistence for the wallet
// stats cache, raw trades, and emitted alerts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// CachedWallet is a snapshot of a wallet's trading history.
type CachedWallet struct {
	Address      string
	TradeCount   int
	FirstTradeAt *time.Time
	CachedAt     time.Time
}

// Alert types emitted by the detection rules.
const (
	AlertLowHistoryLargeTrade = "low_history_large_trade"
	AlertConcentratedBetting  = "concentrated_betting"
	AlertProfitableTrader     = "profitable_trader"
)

// Alert is a detection result persisted for review. Details holds
// rule-specific evidence and is stored as JSON.
type Alert struct {
	ID               int64
	Type             string
	WalletAddress    string
	WalletTradeCount int
	ConditionID      string
	Slug             string
	Outcome          string
	Side             string
	Price            float64
	USDValue         float64
	TransactionHash  string
	Details          map[string]any
	CreatedAt        time.Time
}

// TradeRecord is a raw trade kept for offline analysis. TransactionHash
// plus Asset identifies a fill, since one transaction can touch both
// outcome tokens.
type TradeRecord struct {
	TransactionHash string
	Asset           string
	WalletAddress   string
	ConditionID     string
	Slug            string
	Outcome         string
	Side            string
	Price           float64
	Size            float64
	USDValue        float64
	Timestamp       time.Time
}

// Store wraps a SQLite database for all persistence operations.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens or creates the SQLite database at dbPath.
func New(logger *zap.Logger, dbPath string) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polywatch", "polywatch.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallet_cache (
			address        TEXT PRIMARY KEY,
			trade_count    INTEGER NOT NULL,
			first_trade_at INTEGER,
			cached_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_type       TEXT NOT NULL,
			wallet_address   TEXT NOT NULL,
			wallet_trades    INTEGER NOT NULL DEFAULT 0,
			condition_id     TEXT,
			slug             TEXT,
			outcome          TEXT,
			side             TEXT,
			price            REAL,
			usd_value        REAL,
			transaction_hash TEXT,
			details          TEXT NOT NULL DEFAULT '{}',
			created_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			transaction_hash TEXT NOT NULL,
			asset            TEXT NOT NULL,
			wallet_address   TEXT NOT NULL,
			condition_id     TEXT,
			slug             TEXT,
			outcome          TEXT,
			side             TEXT,
			price            REAL NOT NULL,
			size             REAL NOT NULL,
			usd_value        REAL NOT NULL,
			ts               INTEGER NOT NULL,
			PRIMARY KEY (transaction_hash, asset)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_wallet ON alerts(wallet_address)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet_address)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CachedWallet returns the cache row for address regardless of age, or
// nil when the wallet has never been cached.
func (s *Store) CachedWallet(ctx context.Context, address string) (*CachedWallet, error) {
	address = strings.ToLower(address)
	row := s.db.QueryRowContext(ctx, `
		SELECT address, trade_count, first_trade_at, cached_at
		FROM wallet_cache WHERE address = ?`, address)

	var w CachedWallet
	var firstTradeAt sql.NullInt64
	var cachedAtNano int64
	err := row.Scan(&w.Address, &w.TradeCount, &firstTradeAt, &cachedAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet cache: %w", err)
	}
	if firstTradeAt.Valid {
		t := time.Unix(0, firstTradeAt.Int64)
		w.FirstTradeAt = &t
	}
	w.CachedAt = time.Unix(0, cachedAtNano)
	return &w, nil
}

// CachedWalletIfFresh returns the cache row only if it is younger than
// ttl. A row exactly ttl old counts as stale.
func (s *Store) CachedWalletIfFresh(ctx context.Context, address string, ttl time.Duration) (*CachedWallet, error) {
	w, err := s.CachedWallet(ctx, address)
	if err != nil || w == nil {
		return w, err
	}
	if time.Since(w.CachedAt) >= ttl {
		return nil, nil
	}
	return w, nil
}

// CacheWallet upserts the cache row for address, refreshing cached_at.
// An existing first_trade_at is preserved when the new value is nil.
func (s *Store) CacheWallet(ctx context.Context, address string, tradeCount int, firstTradeAt *time.Time) error {
	address = strings.ToLower(address)
	var firstNano sql.NullInt64
	if firstTradeAt != nil {
		firstNano = sql.NullInt64{Int64: firstTradeAt.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_cache (address, trade_count, first_trade_at, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			trade_count    = excluded.trade_count,
			first_trade_at = COALESCE(excluded.first_trade_at, wallet_cache.first_trade_at),
			cached_at      = excluded.cached_at`,
		address, tradeCount, firstNano, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache wallet: %w", err)
	}
	return nil
}

// IncrementWalletTradeCount bumps the cached trade count for address.
// It is a no-op when the wallet has never been cached.
func (s *Store) IncrementWalletTradeCount(ctx context.Context, address string) error {
	address = strings.ToLower(address)
	_, err := s.db.ExecContext(ctx, `
		UPDATE wallet_cache SET trade_count = trade_count + 1
		WHERE address = ?`,
		address,
	)
	if err != nil {
		return fmt.Errorf("failed to increment trade count: %w", err)
	}
	return nil
}

// SaveAlert persists alert and fills in its assigned ID.
func (s *Store) SaveAlert(ctx context.Context, alert *Alert) (int64, error) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	details := alert.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert details: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(alert_type, wallet_address, wallet_trades, condition_id, slug,
			 outcome, side, price, usd_value, transaction_hash, details, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.Type, strings.ToLower(alert.WalletAddress), alert.WalletTradeCount,
		alert.ConditionID, alert.Slug, alert.Outcome, alert.Side,
		alert.Price, alert.USDValue, alert.TransactionHash, string(detailsJSON),
		alert.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read alert id: %w", err)
	}
	alert.ID = id
	return id, nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_type, wallet_address, wallet_trades, condition_id, slug,
		       outcome, side, price, usd_value, transaction_hash, details, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var detailsJSON string
		var createdAtNano int64
		err := rows.Scan(
			&a.ID, &a.Type, &a.WalletAddress, &a.WalletTradeCount, &a.ConditionID,
			&a.Slug, &a.Outcome, &a.Side, &a.Price, &a.USDValue,
			&a.TransactionHash, &detailsJSON, &createdAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal([]byte(detailsJSON), &a.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert details: %w", err)
		}
		a.CreatedAt = time.Unix(0, createdAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SaveTrade persists trade, ignoring duplicates on (tx hash, asset).
func (s *Store) SaveTrade(ctx context.Context, trade *TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
			(transaction_hash, asset, wallet_address, condition_id, slug,
			 outcome, side, price, size, usd_value, ts)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		trade.TransactionHash, trade.Asset, strings.ToLower(trade.WalletAddress),
		trade.ConditionID, trade.Slug, trade.Outcome, trade.Side,
		trade.Price, trade.Size, trade.USDValue, trade.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// WalletTradeRows returns the number of raw trades stored for address.
func (s *Store) WalletTradeRows(ctx context.Context, address string) (int, error) {
	address = strings.ToLower(address)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE wallet_address = ?`, address,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}
