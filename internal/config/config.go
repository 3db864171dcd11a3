// Package config reads the process configuration from the environment.
// Missing required credentials abort startup; everything else has a default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envTelegramToken   = "TELEGRAM_TOKEN"
	envAdminUserID     = "ADMIN_USER_ID"
	envSpeechKey       = "AZURE_SPEECH_KEY"
	envSpeechRegion    = "AZURE_SPEECH_REGION"
	envDatabaseURL     = "DATABASE_URL"
	envTablePrefix     = "DB_TABLE_PREFIX"
	envGreenlistPath   = "GREENLIST_DB_PATH"
	envScratchDir      = "SCRATCH_DIR"
	envDailyLimit      = "DAILY_LIMIT"
	envAutoDetectLangs = "AUTO_DETECT_LANGUAGES"
	envTranscribeTO    = "TRANSCRIBE_TIMEOUT_SECONDS"
	envPort            = "PORT"
)

type Config struct {
	TelegramToken string
	AdminUserID   int64

	SpeechKey    string
	SpeechRegion string

	DatabaseURL   string
	TablePrefix   string
	GreenlistPath string

	// ScratchDir is the parent for per-update scratch directories. Empty means
	// the system temp dir.
	ScratchDir string

	DailyLimit          int
	AutoDetectLanguages []string
	TranscribeTimeout   time.Duration
	Port                string
}

func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv(envTelegramToken),
		SpeechKey:     os.Getenv(envSpeechKey),
		SpeechRegion:  getDefault(envSpeechRegion, "westeurope"),
		DatabaseURL:   os.Getenv(envDatabaseURL),
		TablePrefix:   os.Getenv(envTablePrefix),
		GreenlistPath: getDefault(envGreenlistPath, "greenlist.db"),
		ScratchDir:    os.Getenv(envScratchDir),
		Port:          getDefault(envPort, "8080"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("%s not set", envTelegramToken)
	}
	if cfg.SpeechKey == "" {
		return nil, fmt.Errorf("%s not set", envSpeechKey)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%s not set", envDatabaseURL)
	}

	if v := os.Getenv(envAdminUserID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envAdminUserID, err)
		}
		cfg.AdminUserID = id
	}

	limit, err := intDefault(envDailyLimit, 10)
	if err != nil {
		return nil, err
	}
	cfg.DailyLimit = limit

	seconds, err := intDefault(envTranscribeTO, 120)
	if err != nil {
		return nil, err
	}
	cfg.TranscribeTimeout = time.Duration(seconds) * time.Second

	for _, lang := range strings.Split(getDefault(envAutoDetectLangs, "de,en"), ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			cfg.AutoDetectLanguages = append(cfg.AutoDetectLanguages, lang)
		}
	}

	return cfg, nil
}

func getDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
