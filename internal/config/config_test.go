package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Contains(t, cfg.HTTP.UserAgent, "Mozilla")
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffInitial())
	assert.Equal(t, 5*time.Second, cfg.BackoffMax())
	assert.Equal(t, time.Second, cfg.Delay())
	assert.Equal(t, "data/urls.txt", cfg.Paths.URLList)
	assert.Equal(t, "data", cfg.Paths.OutputDir)
	assert.Empty(t, cfg.DB.DSN, "postgres sink is off by default")
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http:
  timeout_seconds: 10
  max_retries: 1
collector:
  delay_seconds: 0
  save_snapshots: true
paths:
  url_list: urls.txt
  output_dir: out
metrics:
  enabled: true
  addr: ":9191"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 1, cfg.HTTP.MaxRetries)
	assert.Equal(t, time.Duration(0), cfg.Delay())
	assert.True(t, cfg.Collector.SaveSnapshots)
	assert.Equal(t, "out", cfg.Paths.OutputDir)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9191", cfg.Metrics.Addr)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		HTTP:  HTTPConfig{TimeoutSeconds: 30},
		Paths: PathsConfig{URLList: "urls.txt", OutputDir: "data"},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }},
		{"negative delay", func(c *Config) { c.Collector.DelaySeconds = -1 }},
		{"empty url list", func(c *Config) { c.Paths.URLList = "" }},
		{"empty output dir", func(c *Config) { c.Paths.OutputDir = "" }},
		{"metrics enabled without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
