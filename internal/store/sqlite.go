package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"autotrader/internal/models"
)

// SQLiteStore implements TradeStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; the orchestrator commits trades serially anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Completed round trips
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		entry_time DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		mode TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		balance_after REAL NOT NULL,
		prob_at_entry REAL,
		exit_reason TEXT,
		hold_duration INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-symbol daily performance
	CREATE TABLE IF NOT EXISTS daily_reports (
		date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		net_pnl REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		notes TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (date, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTrade appends a trade. Recording the same trade ID twice is an error.
func (s *SQLiteStore) RecordTrade(ctx context.Context, t models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, timestamp, entry_time, symbol, side, mode, quantity, entry_price, exit_price, pnl, balance_after, prob_at_entry, exit_reason, hold_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Timestamp.UTC(), t.EntryTime.UTC(), t.Symbol, string(t.Side), string(t.Mode), t.Quantity, t.EntryPrice, t.ExitPrice, t.PnL, t.BalanceAfter, t.ProbAtEntry, string(t.ExitReason), t.HoldDuration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// Trades retrieves trades oldest first.
func (s *SQLiteStore) Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, timestamp, entry_time, symbol, side, mode, quantity, entry_price, exit_price, pnl, balance_after, prob_at_entry, exit_reason, hold_duration FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}
	if filter.Mode != "" {
		query += " AND mode = ?"
		args = append(args, string(filter.Mode))
	}

	query += " ORDER BY timestamp ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side, mode, reason string
		var holdNs int64
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.EntryTime, &t.Symbol, &side, &mode, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.PnL, &t.BalanceAfter, &t.ProbAtEntry, &reason, &holdNs); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.Mode = models.Mode(mode)
		t.ExitReason = models.ExitReason(reason)
		t.HoldDuration = time.Duration(holdNs)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// SaveDailySummaries upserts summaries in one transaction.
func (s *SQLiteStore) SaveDailySummaries(ctx context.Context, summaries []models.DailySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_reports (date, symbol, trades, wins, losses, win_rate, net_pnl, max_drawdown, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range summaries {
		if _, err := stmt.ExecContext(ctx, d.Date, d.Symbol, d.Trades, d.Wins, d.Losses, d.WinRate, d.NetPnL, d.MaxDrawdown, d.Notes); err != nil {
			return fmt.Errorf("failed to save daily summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DailySummaries returns summaries ordered by date then symbol.
func (s *SQLiteStore) DailySummaries(ctx context.Context, dateRange DateRange) ([]models.DailySummary, error) {
	query := "SELECT date, symbol, trades, wins, losses, win_rate, net_pnl, max_drawdown, notes FROM daily_reports WHERE 1=1"
	args := []interface{}{}
	if dateRange.Start != "" {
		query += " AND date >= ?"
		args = append(args, dateRange.Start)
	}
	if dateRange.End != "" {
		query += " AND date <= ?"
		args = append(args, dateRange.End)
	}
	query += " ORDER BY date ASC, symbol ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily reports: %w", err)
	}
	defer rows.Close()

	var out []models.DailySummary
	for rows.Next() {
		var d models.DailySummary
		var notes sql.NullString
		if err := rows.Scan(&d.Date, &d.Symbol, &d.Trades, &d.Wins, &d.Losses, &d.WinRate, &d.NetPnL, &d.MaxDrawdown, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan daily report: %w", err)
		}
		d.Notes = notes.String
		out = append(out, d)
	}
	return out, rows.Err()
}
