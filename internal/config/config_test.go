package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medmentor.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("REMOTE_BACKEND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.OpTimeout != 10*time.Second {
		t.Errorf("OpTimeout = %v, want 10s", cfg.Sync.OpTimeout)
	}
	if cfg.Progress.HistoryCap != 90 {
		t.Errorf("HistoryCap = %d, want 90", cfg.Progress.HistoryCap)
	}
	if cfg.Progress.DefaultDailyGoal != 30 {
		t.Errorf("DefaultDailyGoal = %d, want 30", cfg.Progress.DefaultDailyGoal)
	}
	if cfg.Location == nil {
		t.Error("Location is nil")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeFile(t, `
[sync]
max_retries = 5
op_timeout = "3s"
retry_interval = "nonsense"

[progress]
history_cap = 120
late_start_hour = 23
early_end_hour = 99
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REMOTE_BACKEND", "memory")
	t.Setenv("TZ_NAME", "America/Sao_Paulo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"max_retries", cfg.Sync.MaxRetries, 5},
		{"op_timeout", cfg.Sync.OpTimeout, 3 * time.Second},
		{"retry_interval unparsable keeps default", cfg.Sync.RetryInterval, time.Minute},
		{"probe_interval untouched", cfg.Sync.ProbeInterval, 15 * time.Second},
		{"history_cap", cfg.Progress.HistoryCap, 120},
		{"late_start_hour", cfg.Progress.LateStartHour, 23},
		{"early_end_hour out of range", cfg.Progress.EarlyEndHour, 7},
		{"location", cfg.Location.String(), "America/Sao_Paulo"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REMOTE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Error("Load accepted REMOTE_BACKEND=mongo")
	}
}

func TestLoadFileBadTOML(t *testing.T) {
	path := writeFile(t, "[sync\nmax_retries = ")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted malformed TOML")
	}
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
