package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasync/internal/model"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Canvas Assignments", cfg.ProjectName)
	assert.Equal(t, "sync_ledger.json", cfg.LedgerPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 24*time.Hour, cfg.ReminderLead())
	assert.Equal(t, "@hourly", cfg.Schedule)
}

func TestValidateRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Normalize()

	err := cfg.Validate()
	require.Error(t, err)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "feed_url", missing.Key)

	cfg.FeedURL = "https://canvas.example.edu/feeds/calendars/user_abc.ics"
	err = cfg.Validate()
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "api_token", missing.Key)

	cfg.APIToken = "token"
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"feed_url: https://file.example/feed.ics\nproject_name: From File\n"), 0o600))

	t.Setenv("CANVAS_ICS_URL", "https://env.example/feed.ics")
	t.Setenv("TODOIST_API_TOKEN", "env-token")
	t.Setenv("REMINDER_DAYS_BEFORE", "0")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example/feed.ics", cfg.FeedURL)
	assert.Equal(t, "env-token", cfg.APIToken)
	assert.Equal(t, "From File", cfg.ProjectName)
	// Explicit 0 disables reminders and must survive Normalize.
	assert.Equal(t, time.Duration(0), cfg.ReminderLead())
}

func TestLoadCreatesDefaultFileOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	_, err := Load(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestThresholdsSortedAscending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityThresholds = map[int]int{7: 2, 1: 4, 3: 3}

	assert.Equal(t, []model.TierThreshold{
		{MaxDays: 1, Tier: 4},
		{MaxDays: 3, Tier: 3},
		{MaxDays: 7, Tier: 2},
	}, cfg.Thresholds())
}
