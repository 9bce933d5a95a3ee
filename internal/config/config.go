// Package config reads settings from the environment, after loading a .env file if present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Server struct {
	Addr          string
	Store         string
	DatabaseURL   string
	SweepInterval time.Duration
	LogLevel      string
}

type Client struct {
	ServerURL   string
	ProfilePath string
	Difficulty  string
	Mode        string
	LogLevel    string
}

// LoadEnv loads files (".env" when none given) into the environment. Missing files are fine;
// variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadServer reads the server settings. Values are checked by Validate, once flags are applied.
func LoadServer() (Server, error) {
	if err := LoadEnv(); err != nil {
		return Server{}, err
	}
	cfg := Server{
		Addr:        getenv("HANDFILL_ADDR", ":8080"),
		Store:       strings.ToLower(getenv("HANDFILL_STORE", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getenv("HANDFILL_LOG_LEVEL", "info"),
	}
	interval, err := time.ParseDuration(getenv("HANDFILL_SWEEP_INTERVAL", "10m"))
	if err != nil {
		return Server{}, fmt.Errorf("HANDFILL_SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepInterval = interval
	return cfg, nil
}

func (c Server) Validate() error {
	var errs error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = multierr.Append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("HANDFILL_STORE: unknown store %q", c.Store))
	}
	if c.SweepInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("HANDFILL_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval))
	}
	if err := validLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// LoadClient reads the client settings; call Validate after applying flags.
func LoadClient() (Client, error) {
	if err := LoadEnv(); err != nil {
		return Client{}, err
	}
	cfg := Client{
		ServerURL:   getenv("HANDFILL_SERVER_URL", "http://localhost:8080"),
		ProfilePath: getenv("HANDFILL_PROFILE", "handfill-profile.json"),
		Difficulty:  getenv("HANDFILL_DIFFICULTY", board.DifficultyNormal),
		Mode:        getenv("HANDFILL_MODE", board.ModeClassic),
		LogLevel:    getenv("HANDFILL_LOG_LEVEL", "warn"),
	}
	return cfg, nil
}

func (c Client) Validate() error {
	var errs error
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = multierr.Append(errs, fmt.Errorf("HANDFILL_SERVER_URL: want an http(s) url, got %q", c.ServerURL))
	}
	if c.ProfilePath == "" {
		errs = multierr.Append(errs, errors.New("HANDFILL_PROFILE must not be empty"))
	}
	if board.LookupDifficulty(c.Difficulty).ID != c.Difficulty {
		errs = multierr.Append(errs, fmt.Errorf("HANDFILL_DIFFICULTY: unknown difficulty %q", c.Difficulty))
	}
	if board.LookupMode(c.Mode).ID != c.Mode {
		errs = multierr.Append(errs, fmt.Errorf("HANDFILL_MODE: unknown mode %q", c.Mode))
	}
	if err := validLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func validLevel(s string) error {
	if _, err := zap.ParseAtomicLevel(s); err != nil {
		return fmt.Errorf("HANDFILL_LOG_LEVEL: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
