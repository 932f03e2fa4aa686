// Package storage provides SQLite-backed persistence for tunable config
// overrides and settlement notification dedupe records.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db               *sql.DB
	maxNotifications int
}

// NotifiedSettlement is one recorded settlement notification. MarketID
// plus the settlement timestamp identify a settlement uniquely; re-polls
// of the same feed must not notify twice.
type NotifiedSettlement struct {
	ID         string
	MarketID   string
	Action     string
	PnL        string
	SettledTS  int64
	NotifiedAt time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/kalshideck/data.db.
func New(maxNotifications int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "kalshideck", "data.db")
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
	s := &Storage{db: db, maxNotifications: maxNotifications}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notified_settlements (
			id          TEXT PRIMARY KEY,
			market_id   TEXT NOT NULL,
			action      TEXT NOT NULL,
			pnl         TEXT,
			settled_ts  INTEGER NOT NULL,
			notified_at INTEGER NOT NULL,
			UNIQUE(market_id, settled_ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notified_at ON notified_settlements(notified_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SetSetting stores one tunable override.
func (s *Storage) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?,?,?)`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

// GetSetting returns the stored value for key, or ok=false when unset.
func (s *Storage) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

// AllSettings returns every stored tunable override.
func (s *Storage) AllSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// WasNotified reports whether the settlement identified by marketID and
// settledTS has already been notified.
func (s *Storage) WasNotified(marketID string, settledTS int64) (bool, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM notified_settlements
		WHERE market_id = ? AND settled_ts = ?`, marketID, settledTS).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return true, nil
}

// MarkNotified records a sent settlement notification and rotates old
// records past the configured cap.
func (s *Storage) MarkNotified(rec NotifiedSettlement) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.NotifiedAt.IsZero() {
		rec.NotifiedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO notified_settlements
			(id, market_id, action, pnl, settled_ts, notified_at)
		VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.MarketID, rec.Action, rec.PnL, rec.SettledTS, rec.NotifiedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM notified_settlements WHERE id NOT IN (
			SELECT id FROM notified_settlements ORDER BY notified_at DESC LIMIT ?
		)`, s.maxNotifications); err != nil {
		return fmt.Errorf("failed to rotate notifications: %w", err)
	}

	return tx.Commit()
}
