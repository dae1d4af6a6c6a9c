package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"canvasync/internal/model"
)

// MissingError reports a required configuration key that was provided by
// neither the config file nor the environment.
type MissingError struct {
	Key string // yaml key
	Env string // environment variable name
}

func (e *MissingError) Error() string {
	return "missing required config: " + e.Key + " (env " + e.Env + ")"
}

// Config is the top-level application configuration. Values come from the
// YAML file and may be overridden by environment variables; the two
// required settings may be supplied by either.
type Config struct {
	// FeedURL is the ICS assignment feed endpoint. Required.
	FeedURL string `yaml:"feed_url" json:"feed_url"`

	// APIToken is the task store credential. Required.
	APIToken string `yaml:"api_token" json:"api_token"`

	// ProjectName is the destination project for created tasks.
	ProjectName string `yaml:"project_name" json:"project_name"`

	// LedgerPath is where the event→task ledger is persisted.
	LedgerPath string `yaml:"ledger_path" json:"ledger_path"`

	// ReminderDaysBefore schedules a reminder this many days before the due
	// timestamp. 0 disables reminders. Pointer so an explicit 0 survives
	// Normalize.
	ReminderDaysBefore *int `yaml:"reminder_days_before" json:"reminder_days_before"`

	// PriorityThresholds maps a day-count ceiling to a task store priority.
	// An event due within the smallest matching ceiling gets that priority.
	PriorityThresholds map[int]int `yaml:"priority_thresholds" json:"priority_thresholds"`

	// DefaultPriority applies when no threshold matches.
	DefaultPriority int `yaml:"default_priority" json:"default_priority"`

	// RequestTimeoutSeconds bounds every outbound HTTP call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// HorizonDays bounds recurrence expansion of repeating feed events.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// Schedule is a cron expression for daemon mode (e.g. "@hourly").
	Schedule string `yaml:"schedule" json:"schedule"`

	// CacheDir holds the conditional-GET feed cache. Empty disables caching.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration. The required
// fields are intentionally empty.
func DefaultConfig() *Config {
	one := 1
	return &Config{
		ProjectName:           "Canvas Assignments",
		LedgerPath:            "sync_ledger.json",
		ReminderDaysBefore:    &one,
		PriorityThresholds:    map[int]int{1: 4, 3: 3, 7: 2},
		DefaultPriority:       1,
		RequestTimeoutSeconds: 30,
		HorizonDays:           60,
		Schedule:              "@hourly",
		CacheDir:              "",
		LogLevel:              "info",
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.ProjectName == "" {
		c.ProjectName = "Canvas Assignments"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "sync_ledger.json"
	}
	if c.ReminderDaysBefore == nil {
		one := 1
		c.ReminderDaysBefore = &one
	}
	if len(c.PriorityThresholds) == 0 {
		c.PriorityThresholds = map[int]int{1: 4, 3: 3, 7: 2}
	}
	if c.DefaultPriority <= 0 {
		c.DefaultPriority = 1
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 60
	}
	if c.Schedule == "" {
		c.Schedule = "@hourly"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the required settings after file load and env overrides.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FeedURL) == "" {
		return &MissingError{Key: "feed_url", Env: "CANVAS_ICS_URL"}
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return &MissingError{Key: "api_token", Env: "TODOIST_API_TOKEN"}
	}
	return nil
}

// RequestTimeout returns the HTTP timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Horizon returns the recurrence expansion window as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// ReminderLead returns the reminder offset before the due timestamp;
// zero means reminders are disabled.
func (c *Config) ReminderLead() time.Duration {
	if c.ReminderDaysBefore == nil {
		return 24 * time.Hour
	}
	return time.Duration(*c.ReminderDaysBefore) * 24 * time.Hour
}

// Thresholds converts the configured map into the ordered slice the tier
// function consumes.
func (c *Config) Thresholds() []model.TierThreshold {
	out := make([]model.TierThreshold, 0, len(c.PriorityThresholds))
	for days, tier := range c.PriorityThresholds {
		out = append(out, model.TierThreshold{MaxDays: days, Tier: tier})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaxDays < out[j].MaxDays })
	return out
}

// Load loads configuration from the given YAML path, then applies
// environment overrides.
//
// Behavior:
//   - If path is empty, only defaults and environment variables apply.
//   - If the file does not exist, a default config is written there (0600)
//     and used.
//   - If the file exists, it is read, unmarshaled and normalized.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create a default config file for the user to edit.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the loaded config. Env wins
// over the file so secrets never have to live on disk.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("CANVAS_ICS_URL")); v != "" {
		c.FeedURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOIST_API_TOKEN")); v != "" {
		c.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOIST_PROJECT_NAME")); v != "" {
		c.ProjectName = v
	}
	if v := strings.TrimSpace(os.Getenv("LEDGER_FILE")); v != "" {
		c.LedgerPath = v
	}
	if v := strings.TrimSpace(os.Getenv("REMINDER_DAYS_BEFORE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ReminderDaysBefore = &n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Final file permissions are 0600 (the token may be stored here).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".canvasync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up the temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
