// Package config loads snaptext settings from the data directory, the
// environment and an optional .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Capture sources.
const (
	SourceBrowser = "browser"
	SourceScreen  = "screen"
	SourceNone    = "none"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SNAPTEXT_"

// Config holds application configuration.
type Config struct {
	// MaxRecords is the store capacity. Appends beyond it evict the oldest.
	MaxRecords int `json:"max_records,omitempty" yaml:"max_records,omitempty"`

	// EditDebounceMS is the quiet period after the last keystroke before a
	// panel commits an edit.
	EditDebounceMS int `json:"edit_debounce_ms,omitempty" yaml:"edit_debounce_ms,omitempty"`

	// OCRLanguage is the Tesseract language code.
	OCRLanguage string `json:"ocr_language,omitempty" yaml:"ocr_language,omitempty"`

	// OCRTimeoutSeconds bounds a single recognition call.
	OCRTimeoutSeconds int `json:"ocr_timeout_seconds,omitempty" yaml:"ocr_timeout_seconds,omitempty"`

	// OCRConcurrency caps simultaneous recognitions per panel.
	OCRConcurrency int `json:"ocr_concurrency,omitempty" yaml:"ocr_concurrency,omitempty"`

	// TessdataPrefix overrides the traineddata directory.
	TessdataPrefix string `json:"tessdata_prefix,omitempty" yaml:"tessdata_prefix,omitempty"`

	// CaptureSource selects the privileged context: browser, screen or none.
	CaptureSource string `json:"capture_source,omitempty" yaml:"capture_source,omitempty"`

	// BrowserURL is a DevTools websocket to attach to. Empty launches a
	// headless Chrome.
	BrowserURL string `json:"browser_url,omitempty" yaml:"browser_url,omitempty"`

	// PageURL is opened when the browser source starts.
	PageURL string `json:"page_url,omitempty" yaml:"page_url,omitempty"`

	// ScreenScale is the device pixel ratio used for screen captures.
	ScreenScale float64 `json:"screen_scale,omitempty" yaml:"screen_scale,omitempty"`

	// WatchIntervalMS is how often the store version is polled for writes
	// by other processes. A negative value disables polling.
	WatchIntervalMS int `json:"watch_interval_ms,omitempty" yaml:"watch_interval_ms,omitempty"`

	// RedisURL enables change announcements to other processes sharing the
	// store, ahead of the next watch poll.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`

	// RedisChannel is the pub/sub channel for announcements.
	RedisChannel string `json:"redis_channel,omitempty" yaml:"redis_channel,omitempty"`

	// HTTPAddr is the listen address of `snaptext http`.
	HTTPAddr string `json:"http_addr,omitempty" yaml:"http_addr,omitempty"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRecords:        5,
		EditDebounceMS:    500,
		OCRLanguage:       "eng",
		OCRTimeoutSeconds: 60,
		OCRConcurrency:    2,
		CaptureSource:     SourceBrowser,
		ScreenScale:       1,
		WatchIntervalMS:   1000,
		RedisChannel:      "snaptext:store-changed",
		HTTPAddr:          "127.0.0.1:8765",
		LogLevel:          "info",
	}
}

// DefaultDataDir returns ~/.snaptext, or ./.snaptext when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snaptext"
	}
	return filepath.Join(home, ".snaptext")
}

// Load builds the effective configuration: defaults, then the config file
// (configPath, or the first of config.json, config.yaml, config.yml in
// dataDir), then SNAPTEXT_* environment variables. Missing files are not
// an error.
func Load(dataDir, configPath string) (*Config, error) {
	if configPath == "" {
		configPath = findConfig(dataDir)
	}
	file, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Merge(DefaultConfig(), file)
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv seeds the environment from a .env file. Variables already set
// win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfig(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(dataDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values win when set.
func Merge(base, overlay *Config) *Config {
	result := *base
	if overlay == nil {
		return &result
	}

	mergeInt(&result.MaxRecords, overlay.MaxRecords)
	mergeInt(&result.EditDebounceMS, overlay.EditDebounceMS)
	mergeInt(&result.OCRTimeoutSeconds, overlay.OCRTimeoutSeconds)
	mergeInt(&result.OCRConcurrency, overlay.OCRConcurrency)
	mergeInt(&result.WatchIntervalMS, overlay.WatchIntervalMS)
	if overlay.ScreenScale != 0 {
		result.ScreenScale = overlay.ScreenScale
	}

	mergeString(&result.OCRLanguage, overlay.OCRLanguage)
	mergeString(&result.TessdataPrefix, overlay.TessdataPrefix)
	mergeString(&result.CaptureSource, overlay.CaptureSource)
	mergeString(&result.BrowserURL, overlay.BrowserURL)
	mergeString(&result.PageURL, overlay.PageURL)
	mergeString(&result.RedisURL, overlay.RedisURL)
	mergeString(&result.RedisChannel, overlay.RedisChannel)
	mergeString(&result.HTTPAddr, overlay.HTTPAddr)
	mergeString(&result.LogLevel, overlay.LogLevel)

	return &result
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// ApplyEnv overrides fields from SNAPTEXT_<FIELD> variables, where FIELD is
// the upper-cased config key (SNAPTEXT_MAX_RECORDS, SNAPTEXT_REDIS_URL, ...).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"MAX_RECORDS":         &cfg.MaxRecords,
		"EDIT_DEBOUNCE_MS":    &cfg.EditDebounceMS,
		"OCR_TIMEOUT_SECONDS": &cfg.OCRTimeoutSeconds,
		"OCR_CONCURRENCY":     &cfg.OCRConcurrency,
		"WATCH_INTERVAL_MS":   &cfg.WatchIntervalMS,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "SCREEN_SCALE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sSCREEN_SCALE: %w", EnvPrefix, err)
		}
		cfg.ScreenScale = f
	}

	strs := map[string]*string{
		"OCR_LANGUAGE":    &cfg.OCRLanguage,
		"TESSDATA_PREFIX": &cfg.TessdataPrefix,
		"CAPTURE_SOURCE":  &cfg.CaptureSource,
		"BROWSER_URL":     &cfg.BrowserURL,
		"PAGE_URL":        &cfg.PageURL,
		"REDIS_URL":       &cfg.RedisURL,
		"REDIS_CHANNEL":   &cfg.RedisChannel,
		"HTTP_ADDR":       &cfg.HTTPAddr,
		"LOG_LEVEL":       &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			mergeString(dst, v)
		}
	}
	return nil
}

// Validate clamps numeric settings into range and rejects unknown enum
// values.
func (c *Config) Validate() error {
	c.MaxRecords = max(c.MaxRecords, 1)
	c.EditDebounceMS = clamp(c.EditDebounceMS, 50, 10_000)
	c.OCRTimeoutSeconds = clamp(c.OCRTimeoutSeconds, 1, 600)
	c.OCRConcurrency = clamp(c.OCRConcurrency, 1, 16)
	if c.WatchIntervalMS < 0 {
		c.WatchIntervalMS = 0
	} else if c.WatchIntervalMS > 0 {
		c.WatchIntervalMS = max(c.WatchIntervalMS, 50)
	}
	if c.ScreenScale <= 0 {
		c.ScreenScale = 1
	}

	c.CaptureSource = strings.ToLower(c.CaptureSource)
	switch c.CaptureSource {
	case SourceBrowser, SourceScreen, SourceNone:
	default:
		return fmt.Errorf("capture_source %q: want browser, screen or none", c.CaptureSource)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// EditDebounce returns the edit debounce window.
func (c *Config) EditDebounce() time.Duration {
	return time.Duration(c.EditDebounceMS) * time.Millisecond
}

// OCRTimeout returns the recognition timeout.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

// WatchInterval returns the store polling interval (zero disables).
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalMS) * time.Millisecond
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
}
