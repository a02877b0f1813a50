package settings

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"athand/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_DefaultsWhenEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Method != model.MethodMuslimWorldLeague {
		t.Fatalf("expected default method, got %v", got.Method)
	}
	if got.Location != nil {
		t.Fatal("expected no location by default")
	}
	if !got.Prefs.Enabled(model.KindFajr) {
		t.Fatal("expected fajr enabled by default")
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := model.DefaultSettings()
	want.Location = &model.LocationSelection{
		Name:       "Istanbul",
		Latitude:   41.0082,
		Longitude:  28.9784,
		TimezoneID: "Europe/Istanbul",
	}
	want.Method = model.MethodDubai
	want.LeadTime = model.LeadMinutes10
	want.Prefs.SetEnabled(model.KindAsr, false)
	want.OnboardingComplete = true

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Location == nil || got.Location.Name != "Istanbul" {
		t.Fatalf("location not round-tripped: %+v", got.Location)
	}
	if got.Method != model.MethodDubai || got.LeadTime != model.LeadMinutes10 {
		t.Fatalf("method/lead not round-tripped: %v %v", got.Method, got.LeadTime)
	}
	if got.Prefs.Enabled(model.KindAsr) {
		t.Fatal("asr toggle not round-tripped")
	}
	if !got.OnboardingComplete {
		t.Fatal("onboarding flag not round-tripped")
	}
}

func TestLoad_MigratesLegacyKeyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	legacy := `{"method":"egyptian","prefs":{"fajr":true,"dhuhr":false,"asr":true,"maghrib":true,"isha":true},"lead_time":"minutes30","onboarding_complete":true}`
	if _, err := s.db.ExecContext(ctx, `INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)`,
		legacySettingsKey, legacy, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Method != model.MethodEgyptian || got.LeadTime != model.LeadMinutes30 {
		t.Fatalf("legacy record not adopted: %v %v", got.Method, got.LeadTime)
	}
	if got.Prefs.Enabled(model.KindDhuhr) {
		t.Fatal("legacy dhuhr toggle not adopted")
	}

	// The legacy row is gone and the record lives under the current key.
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, legacySettingsKey).Scan(&v)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected legacy row deleted, got err=%v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&v); err != nil {
		t.Fatalf("expected migrated row under current key: %v", err)
	}

	// A second load reads the current key directly.
	again, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if again.Method != model.MethodEgyptian {
		t.Fatalf("migrated record lost on second load: %v", again.Method)
	}
}

func TestLoad_CorruptRecordFallsBackToDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, `INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)`,
		settingsKey, "{not json", time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Method != model.MethodMuslimWorldLeague {
		t.Fatalf("expected defaults for corrupt record, got %v", got.Method)
	}
}
