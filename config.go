package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// --- Config Types ---

type Config struct {
	StateDB   string         `json:"stateDB"` // sessions + reminder jobs (default: baseDir/taskgram.db)
	API       APIConfig      `json:"api"`
	Telegram  TelegramConfig `json:"telegram"`
	Reminders ReminderConfig `json:"reminders"`
	Logging   LoggingConfig  `json:"logging,omitempty"`

	// Resolved at runtime (not serialized).
	baseDir string
}

// APIConfig points at the remote task/category CRUD API.
type APIConfig struct {
	BaseURL string `json:"baseUrl"`           // e.g. "http://backend:8000/api/"
	Timeout string `json:"timeout,omitempty"` // default "10s"
}

func (ac APIConfig) timeoutOrDefault() time.Duration {
	if ac.Timeout != "" {
		if d, err := time.ParseDuration(ac.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return 10 * time.Second
}

type TelegramConfig struct {
	BotToken    string `json:"botToken"`
	PollTimeout int    `json:"pollTimeout,omitempty"` // long-poll seconds, default 30
}

func (tc TelegramConfig) pollTimeoutOrDefault() int {
	if tc.PollTimeout > 0 {
		return tc.PollTimeout
	}
	return 30
}

// ReminderConfig configures the reminder scheduler.
type ReminderConfig struct {
	CheckInterval string `json:"checkInterval,omitempty"` // default "30s"
	NotifyHour    int    `json:"notifyHour,omitempty"`    // local hour for due-date reminders, default 19
	MaxPerUser    int    `json:"maxPerUser,omitempty"`    // default 50
}

func (rc ReminderConfig) checkIntervalOrDefault() time.Duration {
	if rc.CheckInterval != "" {
		if d, err := time.ParseDuration(rc.CheckInterval); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func (rc ReminderConfig) notifyHourOrDefault() int {
	if rc.NotifyHour > 0 && rc.NotifyHour <= 23 {
		return rc.NotifyHour
	}
	return 19
}

func (rc ReminderConfig) maxPerUserOrDefault() int {
	if rc.MaxPerUser > 0 {
		return rc.MaxPerUser
	}
	return 50
}

type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error (default info)
	Format string `json:"format,omitempty"` // text (default) or json
	File   string `json:"file,omitempty"`   // optional log file path
}

func (lc LoggingConfig) levelOrDefault() string {
	if lc.Level != "" {
		return lc.Level
	}
	return "info"
}

func (lc LoggingConfig) formatOrDefault() string {
	if lc.Format != "" {
		return lc.Format
	}
	return "text"
}

// --- Loading ---

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".taskgram")
}

// loadConfig reads the config file (default ~/.taskgram/config.json), applies
// env overrides, and fills defaults. A missing file is not an error: env vars
// alone can carry a minimal setup.
func loadConfig(path string) (*Config, error) {
	baseDir := defaultBaseDir()
	if path == "" {
		path = filepath.Join(baseDir, "config.json")
	} else {
		baseDir = filepath.Dir(path)
	}

	cfg := &Config{baseDir: baseDir}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.baseDir = baseDir
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Env overrides.
	if v := os.Getenv("TASKGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TASKGRAM_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("TASKGRAM_STATE_DB"); v != "" {
		cfg.StateDB = v
	}

	if cfg.StateDB == "" {
		cfg.StateDB = filepath.Join(cfg.baseDir, "taskgram.db")
	}
	if cfg.API.BaseURL != "" && !strings.HasSuffix(cfg.API.BaseURL, "/") {
		cfg.API.BaseURL += "/"
	}
	return cfg, nil
}

// validateServe checks the fields the daemon cannot run without.
func (cfg *Config) validateServe() error {
	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken is required (or TASKGRAM_BOT_TOKEN)")
	}
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl is required (or TASKGRAM_API_URL)")
	}
	return nil
}
