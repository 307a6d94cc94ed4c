// Package config assembles the service configuration from an optional YAML
// file plus RECAP_* environment overrides. All sync/picker constants live
// here rather than as literals: the matching heuristics are policy, and
// deployments tune them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	// RateLimitPerMinute caps platform-touching requests per user per
	// minute. Each sync pass fans out many directory queries upstream.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type Graph struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// ResolveCacheTTL bounds how long a join-URL -> meeting-id resolution
	// is reused without re-querying the directory.
	ResolveCacheTTL time.Duration `yaml:"resolve_cache_ttl"`
}

type Summarizer struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// StaleLockAfter is how long a queued summarization may sit before a
	// new request may reclaim it.
	StaleLockAfter time.Duration `yaml:"stale_lock_after"`
}

// Sync holds the range-planning and annotator tunables.
type Sync struct {
	// TranscriptCheck disables meeting resolution entirely when false;
	// sync passes then only maintain coverage bookkeeping.
	TranscriptCheck bool `yaml:"transcript_check"`
	// RecencyDays is the always-rechecked most-recent window: transcripts
	// appear with variable delay after a meeting ends.
	RecencyDays int `yaml:"recency_days"`
	// BackfillDays is how far back the periodic wide sweep re-scans for
	// meetings added after the fact (forwarded invites, late additions).
	BackfillDays     int           `yaml:"backfill_days"`
	BackfillInterval time.Duration `yaml:"backfill_interval"`
	// EdgeOverlap is re-fetched inside existing coverage when extending it,
	// to absorb boundary edits.
	EdgeOverlap time.Duration `yaml:"edge_overlap"`
	CheckLimit  int           `yaml:"check_limit"`
	Concurrency int           `yaml:"concurrency"`
}

// Picker holds the transcript tie-break windows. These are heuristic: no
// key links a transcript to a calendar occurrence, so the picker matches on
// creation-time proximity.
type Picker struct {
	WindowBefore time.Duration `yaml:"window_before"`
	WindowAfter  time.Duration `yaml:"window_after"`
	// MeetingSearchWindow bounds the time-window fallback search around the
	// event's start/end when a join URL yields no directory match.
	MeetingSearchWindow time.Duration `yaml:"meeting_search_window"`
}

type Config struct {
	DBPath     string     `yaml:"db_path"`
	LogLevel   string     `yaml:"log_level"`
	LogFormat  string     `yaml:"log_format"` // "text" or "json"
	Server     Server     `yaml:"server"`
	Graph      Graph      `yaml:"graph"`
	Summarizer Summarizer `yaml:"summarizer"`
	Sync       Sync       `yaml:"sync"`
	Picker     Picker     `yaml:"picker"`
}

// Load reads the optional YAML file named by RECAP_CONFIG_FILE, applies
// environment overrides, and fills in defaults.
func Load() (*Config, error) {
	var c Config
	c.Sync.TranscriptCheck = true

	if path := os.Getenv("RECAP_CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	overrideString(&c.DBPath, "RECAP_DB_PATH")
	overrideString(&c.LogLevel, "RECAP_LOG_LEVEL")
	overrideString(&c.LogFormat, "RECAP_LOG_FORMAT")
	overrideString(&c.Server.Port, "RECAP_PORT")
	overrideString(&c.Server.JWTSecret, "RECAP_JWT_SECRET")
	overrideInt(&c.Server.RateLimitPerMinute, "RECAP_RATE_LIMIT_PER_MINUTE")
	overrideString(&c.Graph.BaseURL, "RECAP_GRAPH_BASE_URL")
	overrideString(&c.Summarizer.BaseURL, "RECAP_SUMMARIZER_BASE_URL")
	overrideString(&c.Summarizer.APIKey, "RECAP_SUMMARIZER_API_KEY")
	overrideString(&c.Summarizer.Model, "RECAP_SUMMARIZER_MODEL")
	overrideInt(&c.Sync.RecencyDays, "RECAP_SYNC_RECENCY_DAYS")
	overrideInt(&c.Sync.BackfillDays, "RECAP_SYNC_BACKFILL_DAYS")
	overrideInt(&c.Sync.CheckLimit, "RECAP_SYNC_CHECK_LIMIT")
	overrideInt(&c.Sync.Concurrency, "RECAP_SYNC_CONCURRENCY")
	overrideBool(&c.Sync.TranscriptCheck, "RECAP_SYNC_TRANSCRIPT_CHECK")

	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "recap.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 10
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.Graph.Timeout == 0 {
		c.Graph.Timeout = 30 * time.Second
	}
	if c.Graph.ResolveCacheTTL == 0 {
		c.Graph.ResolveCacheTTL = 15 * time.Minute
	}
	if c.Summarizer.BaseURL == "" {
		c.Summarizer.BaseURL = "https://api.openai.com/v1"
	}
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = "gpt-4o-mini"
	}
	if c.Summarizer.Timeout == 0 {
		c.Summarizer.Timeout = 120 * time.Second
	}
	if c.Summarizer.StaleLockAfter == 0 {
		c.Summarizer.StaleLockAfter = 5 * time.Minute
	}
	if c.Sync.RecencyDays == 0 {
		c.Sync.RecencyDays = 10
	}
	if c.Sync.BackfillDays == 0 {
		c.Sync.BackfillDays = 90
	}
	if c.Sync.BackfillInterval == 0 {
		c.Sync.BackfillInterval = 24 * time.Hour
	}
	if c.Sync.EdgeOverlap == 0 {
		c.Sync.EdgeOverlap = 24 * time.Hour
	}
	if c.Sync.CheckLimit == 0 {
		c.Sync.CheckLimit = 30
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 4
	}
	if c.Picker.WindowBefore == 0 {
		c.Picker.WindowBefore = 2 * time.Hour
	}
	if c.Picker.WindowAfter == 0 {
		c.Picker.WindowAfter = 8 * time.Hour
	}
	if c.Picker.MeetingSearchWindow == 0 {
		c.Picker.MeetingSearchWindow = 90 * time.Minute
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
