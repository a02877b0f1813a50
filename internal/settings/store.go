// Package settings persists the user settings record in sqlite.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	appLog "athand/internal/log"
	"athand/internal/model"
)

const (
	// settingsKey is the current storage key for the settings record.
	settingsKey = "athand.settings"
	// legacySettingsKey is the pre-rename key. A record found under it is
	// adopted once (re-saved under settingsKey) and then removed.
	legacySettingsKey = "athantv.settings"
)

// Store is a single-key JSON settings store backed by sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the settings database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("chmod settings db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the settings record. Missing or undecodable records yield
// defaults rather than an error. A record found only under the legacy key
// is migrated: decoded, written under the current key, and the legacy row
// deleted.
func (s *Store) Load(ctx context.Context) (model.Settings, error) {
	if raw, ok, err := s.get(ctx, settingsKey); err != nil {
		return model.DefaultSettings(), err
	} else if ok {
		return decode(raw), nil
	}

	raw, ok, err := s.get(ctx, legacySettingsKey)
	if err != nil {
		return model.DefaultSettings(), err
	}
	if !ok {
		return model.DefaultSettings(), nil
	}

	// One-shot legacy migration.
	settings := decode(raw)
	if err := s.Save(ctx, settings); err != nil {
		return settings, fmt.Errorf("migrate legacy settings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, legacySettingsKey); err != nil {
		return settings, fmt.Errorf("drop legacy settings key: %w", err)
	}
	appLog.Info("settings: migrated legacy record", "from", legacySettingsKey, "to", settingsKey)
	return settings, nil
}

// Save writes the settings record under the current key.
func (s *Store) Save(ctx context.Context, settings model.Settings) error {
	settings.Normalize()
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, settingsKey, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read settings key %q: %w", key, err)
	}
	return value, true, nil
}

// decode unmarshals a stored record, falling back to defaults on corrupt
// payloads so a bad write never wedges startup.
func decode(raw string) model.Settings {
	var settings model.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		appLog.Error("settings: undecodable record, using defaults", err)
		return model.DefaultSettings()
	}
	settings.Normalize()
	return settings
}
