package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	ModeDebate  = "debate"
	ModeSummary = "summary"

	// DefaultInterval is the analysis cycle length for guilds that never
	// changed it.
	DefaultInterval = 5 * time.Minute
	// MinInterval is the shortest configurable cycle, to prevent abuse.
	MinInterval = time.Minute
)

var (
	ErrInvalidMode    = errors.New("mode must be 'debate' or 'summary'")
	ErrIntervalTooLow = fmt.Errorf("interval must be at least %s", MinInterval)
)

// Guild is the persisted per-guild configuration.
type Guild struct {
	GuildID  string
	Mode     string
	Interval time.Duration
}

// Store persists per-guild settings in SQLite.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "insight.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			analysis_mode TEXT NOT NULL DEFAULT 'debate',
			interval_seconds INTEGER NOT NULL DEFAULT 300
		);
	`); err != nil {
		return fmt.Errorf("create guild_settings table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Guild returns the guild's settings, falling back to defaults when the
// guild has never configured anything.
func (s *Store) Guild(ctx context.Context, guildID string) (Guild, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT analysis_mode, interval_seconds FROM guild_settings WHERE guild_id = ?`,
		guildID,
	)

	g := Guild{GuildID: guildID, Mode: ModeDebate, Interval: DefaultInterval}
	var seconds int64
	err := row.Scan(&g.Mode, &seconds)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return g, nil
	case err != nil:
		return Guild{}, fmt.Errorf("query settings for guild %s: %w", guildID, err)
	}

	g.Interval = time.Duration(seconds) * time.Second
	if g.Interval < MinInterval {
		g.Interval = DefaultInterval
	}
	return g, nil
}

// SetMode updates the guild's analysis mode.
func (s *Store) SetMode(ctx context.Context, guildID, mode string) error {
	if mode != ModeDebate && mode != ModeSummary {
		return ErrInvalidMode
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings(guild_id, analysis_mode) VALUES(?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET analysis_mode = excluded.analysis_mode`,
		guildID, mode,
	)
	if err != nil {
		return fmt.Errorf("set mode for guild %s: %w", guildID, err)
	}
	return nil
}

// SetInterval updates the guild's analysis interval. Values below
// MinInterval are rejected.
func (s *Store) SetInterval(ctx context.Context, guildID string, interval time.Duration) error {
	if interval < MinInterval {
		return ErrIntervalTooLow
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings(guild_id, interval_seconds) VALUES(?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET interval_seconds = excluded.interval_seconds`,
		guildID, int64(interval/time.Second),
	)
	if err != nil {
		return fmt.Errorf("set interval for guild %s: %w", guildID, err)
	}
	return nil
}
