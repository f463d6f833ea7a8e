// Package config resolves runtime settings from .env, the environment and an
// optional TOML file, in that order of precedence (file wins for tuning knobs).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AppEnv        string
	JWTSecret     string
	DB            DBConfig
	LocalDBPath   string
	RemoteBackend string
	RedisAddr     string
	CatalogPath   string
	ConfigFile    string
	Location      *time.Location

	Sync     SyncConfig
	Progress ProgressConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type SyncConfig struct {
	MaxRetries    int
	OpTimeout     time.Duration
	ProbeInterval time.Duration
	RetryInterval time.Duration
}

type ProgressConfig struct {
	HistoryCap       int
	DefaultDailyGoal int
	LateStartHour    int
	LateEndHour      int
	EarlyStartHour   int
	EarlyEndHour     int
}

// Remote backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

func defaultSync() SyncConfig {
	return SyncConfig{
		MaxRetries:    3,
		OpTimeout:     10 * time.Second,
		ProbeInterval: 15 * time.Second,
		RetryInterval: time.Minute,
	}
}

func defaultProgress() ProgressConfig {
	return ProgressConfig{
		HistoryCap:       90,
		DefaultDailyGoal: 30,
		LateStartHour:    22,
		LateEndHour:      4,
		EarlyStartHour:   4,
		EarlyEndHour:     7,
	}
}

// Load reads .env (if any), then the environment, then CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		AppEnv:    getEnv("APP_ENV", "development"),
		JWTSecret: getEnv("JWT_SECRET", "medmentor-dev-signing-key"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "medmentor"),
			Password: getEnv("DB_PASSWORD", "medmentor"),
			Name:     getEnv("DB_NAME", "medmentor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LocalDBPath:   getEnv("LOCAL_DB_PATH", "data/local.db"),
		RemoteBackend: getEnv("REMOTE_BACKEND", BackendPostgres),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		CatalogPath:   getEnv("CATALOG_PATH", "config/courses.toml"),
		ConfigFile:    getEnv("CONFIG_FILE", "config/medmentor.toml"),
		Sync:          defaultSync(),
		Progress:      defaultProgress(),
	}

	switch cfg.RemoteBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown REMOTE_BACKEND %q", cfg.RemoteBackend)
	}

	loc, err := time.LoadLocation(getEnv("TZ_NAME", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("load TZ_NAME: %w", err)
	}
	cfg.Location = loc

	if v, ok := os.LookupEnv("SYNC_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxRetries = n
		}
	}

	fileCfg, err := LoadFile(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	fileCfg.apply(cfg)
	cfg.clamp()
	return cfg, nil
}

// clamp puts out-of-range tuning values back to their defaults.
func (c *Config) clamp() {
	ds, dp := defaultSync(), defaultProgress()
	if c.Sync.MaxRetries < 1 {
		c.Sync.MaxRetries = ds.MaxRetries
	}
	if c.Sync.OpTimeout <= 0 {
		c.Sync.OpTimeout = ds.OpTimeout
	}
	if c.Sync.ProbeInterval < time.Second {
		c.Sync.ProbeInterval = ds.ProbeInterval
	}
	if c.Sync.RetryInterval < time.Second {
		c.Sync.RetryInterval = ds.RetryInterval
	}
	if c.Progress.HistoryCap < 7 {
		c.Progress.HistoryCap = dp.HistoryCap
	}
	if c.Progress.DefaultDailyGoal <= 0 {
		c.Progress.DefaultDailyGoal = dp.DefaultDailyGoal
	}
	for _, h := range []struct {
		v   *int
		def int
	}{
		{&c.Progress.LateStartHour, dp.LateStartHour},
		{&c.Progress.LateEndHour, dp.LateEndHour},
		{&c.Progress.EarlyStartHour, dp.EarlyStartHour},
		{&c.Progress.EarlyEndHour, dp.EarlyEndHour},
	} {
		if *h.v < 0 || *h.v > 23 {
			*h.v = h.def
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ── TOML file ───────────────────────────────────────────

// FileConfig is the optional TOML file. Only keys that are present override.
type FileConfig struct {
	Sync     SyncFile     `toml:"sync"`
	Progress ProgressFile `toml:"progress"`
}

type SyncFile struct {
	MaxRetries    *int    `toml:"max_retries"`
	OpTimeout     *string `toml:"op_timeout"`
	ProbeInterval *string `toml:"probe_interval"`
	RetryInterval *string `toml:"retry_interval"`
}

type ProgressFile struct {
	HistoryCap       *int `toml:"history_cap"`
	DefaultDailyGoal *int `toml:"default_daily_goal"`
	LateStartHour    *int `toml:"late_start_hour"`
	LateEndHour      *int `toml:"late_end_hour"`
	EarlyStartHour   *int `toml:"early_start_hour"`
	EarlyEndHour     *int `toml:"early_end_hour"`
}

// LoadFile reads a TOML config from path. A missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return fc, nil
}

func (fc FileConfig) apply(cfg *Config) {
	applyInt(&cfg.Sync.MaxRetries, fc.Sync.MaxRetries)
	applyDuration(&cfg.Sync.OpTimeout, fc.Sync.OpTimeout)
	applyDuration(&cfg.Sync.ProbeInterval, fc.Sync.ProbeInterval)
	applyDuration(&cfg.Sync.RetryInterval, fc.Sync.RetryInterval)

	applyInt(&cfg.Progress.HistoryCap, fc.Progress.HistoryCap)
	applyInt(&cfg.Progress.DefaultDailyGoal, fc.Progress.DefaultDailyGoal)
	applyInt(&cfg.Progress.LateStartHour, fc.Progress.LateStartHour)
	applyInt(&cfg.Progress.LateEndHour, fc.Progress.LateEndHour)
	applyInt(&cfg.Progress.EarlyStartHour, fc.Progress.EarlyStartHour)
	applyInt(&cfg.Progress.EarlyEndHour, fc.Progress.EarlyEndHour)
}

func applyInt(target *int, v *int) {
	if v != nil {
		*target = *v
	}
}

// applyDuration ignores values that do not parse; clamp handles the rest.
func applyDuration(target *time.Duration, v *string) {
	if v == nil {
		return
	}
	if d, err := time.ParseDuration(*v); err == nil {
		*target = d
	}
}
