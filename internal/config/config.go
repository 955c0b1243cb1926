// Package config loads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type Server struct {
	Addr           string   `env:"OVERLAY_ADDR" envDefault:":3003"`
	Persist        string   `env:"OVERLAY_PERSIST" envDefault:"file"`
	SnapshotPath   string   `env:"OVERLAY_SNAPSHOT_PATH" envDefault:"metadata.json"`
	SQLitePath     string   `env:"OVERLAY_SQLITE_PATH" envDefault:"overlay.db"`
	PostgresDSN    string   `env:"OVERLAY_POSTGRES_DSN"`
	UploadDir      string   `env:"OVERLAY_UPLOAD_DIR" envDefault:"public/upload"`
	MaxUploadMB    int64    `env:"OVERLAY_MAX_UPLOAD_MB" envDefault:"16"`
	NATSURL        string   `env:"OVERLAY_NATS_URL"`
	NATSSubject    string   `env:"OVERLAY_NATS_SUBJECT" envDefault:"overlay.state"`
	AllowedOrigins []string `env:"OVERLAY_ALLOWED_ORIGINS" envSeparator:","` // empty accepts any origin
	Log            Log
}

type Editor struct {
	URL            string        `env:"OVERLAY_WS_URL"`
	Host           string        `env:"OVERLAY_HOST" envDefault:"localhost"`
	FallbackPort   int           `env:"OVERLAY_FALLBACK_PORT" envDefault:"3003"`
	ReconnectDelay time.Duration `env:"OVERLAY_RECONNECT_DELAY" envDefault:"3s"`
	MaxMessageMB   int64         `env:"OVERLAY_MAX_UPLOAD_MB" envDefault:"16"`
	Log            Log
}

const (
	PersistFile     = "file"
	PersistSQLite   = "sqlite"
	PersistPostgres = "postgres"
	PersistNone     = "none"
)

func LoadServer(envFile string) (Server, error) {
	var cfg Server
	if err := load(envFile, &cfg); err != nil {
		return cfg, err
	}
	switch cfg.Persist {
	case PersistFile, PersistSQLite, PersistNone:
	case PersistPostgres:
		if cfg.PostgresDSN == "" {
			return cfg, fmt.Errorf("OVERLAY_POSTGRES_DSN is required when OVERLAY_PERSIST=postgres")
		}
	default:
		return cfg, fmt.Errorf("unknown OVERLAY_PERSIST %q (valid: file, sqlite, postgres, none)", cfg.Persist)
	}
	return cfg, nil
}

func LoadEditor(envFile string) (Editor, error) {
	var cfg Editor
	err := load(envFile, &cfg)
	return cfg, err
}

// load reads envFile into the process environment (without overriding
// variables already set) and parses target. A missing envFile is ignored.
func load(envFile string, target any) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
