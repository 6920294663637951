package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteProvider persists values in a single-table SQLite file so they
// survive restarts.
type SQLiteProvider struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteProvider opens (or creates) the database at path.
func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}
	return &SQLiteProvider{db: db, now: time.Now}, nil
}

// Get returns the stored value or ErrCacheMiss when absent or expired.
func (p *SQLiteProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		expires int64
	)
	err := p.db.QueryRowContext(ctx, `SELECT value, expires_at FROM preferences WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if expires > 0 && p.now().UnixMilli() > expires {
		_ = p.Del(ctx, key)
		return nil, ErrCacheMiss
	}
	return value, nil
}

// Set upserts value under key.
func (p *SQLiteProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = p.now().Add(ttl).UnixMilli()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO preferences (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`, key, value, expires)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Del removes key.
func (p *SQLiteProvider) Del(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite del %s: %w", key, err)
	}
	return nil
}

// Close closes the database handle.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}
