package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SettingsPath string // OCTIV_CONFIG
	StoreDriver  string // file|sqlite|postgres
	StoreDSN     string
	Secret       []byte

	BaseURL        string
	RequestTimeout time.Duration
	RatePerSec     int

	LogLevel  string
	LogFormat string

	TelegramToken  string
	TelegramChatID int64
}

// Load seeds the environment from a .env file (if present) and reads Config.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		SettingsPath: getenv("OCTIV_CONFIG", "config.json"),
		StoreDriver:  strings.ToLower(getenv("OCTIV_STORE", "file")),
		StoreDSN:     getenv("OCTIV_STORE_DSN", ""),
		BaseURL:      getenv("OCTIV_BASE_URL", "https://api.octivfitness.com"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "console"),
	}
	cfg.TelegramToken = getenv("TELEGRAM_TOKEN", "")

	switch cfg.StoreDriver {
	case "file":
	case "sqlite":
		if cfg.StoreDSN == "" {
			cfg.StoreDSN = "octivsniper.db"
		}
	case "postgres":
		if cfg.StoreDSN == "" {
			return Config{}, fmt.Errorf("OCTIV_STORE_DSN is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("invalid OCTIV_STORE %q (want file, sqlite or postgres)", cfg.StoreDriver)
	}

	timeout, err := time.ParseDuration(getenv("OCTIV_REQUEST_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("invalid OCTIV_REQUEST_TIMEOUT")
	}
	cfg.RequestTimeout = timeout

	rps, err := strconv.Atoi(getenv("OCTIV_RATE_PER_SEC", "8"))
	if err != nil || rps < 1 {
		return Config{}, fmt.Errorf("invalid OCTIV_RATE_PER_SEC")
	}
	cfg.RatePerSec = rps

	if v := getenv("TELEGRAM_CHAT_ID", ""); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if v := getenv("OCTIV_SECRET", ""); v != "" {
		cfg.Secret, err = decodeSecret(v)
		if err != nil {
			return Config{}, fmt.Errorf("OCTIV_SECRET: %w", err)
		}
	}

	return cfg, nil
}

func (c Config) NotifyEnabled() bool { return c.TelegramToken != "" && c.TelegramChatID != 0 }

// decodeSecret accepts base64, or a path to a file holding it (k8s secret mounts).
func decodeSecret(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	dec, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("want base64: %w", err)
	}
	if len(dec) < 16 {
		return nil, fmt.Errorf("decodes to %d bytes, want at least 16", len(dec))
	}
	return dec, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
