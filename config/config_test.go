package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/carve-refinery/internal"
)

func loadFresh(t *testing.T, file string) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	chdir(t, t.TempDir())

	c, err := Load(file)
	require.NoError(t, err)
	return c
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c := loadFresh(t, "")

	assert.True(t, c.Delete)
	assert.Equal(t, internal.DefaultPollInterval, c.Monitor.Interval)
	assert.Equal(t, internal.DefaultBatchSize, c.Reorganize.BatchSize)
	assert.False(t, c.Reorganize.Enabled)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, internal.DefaultHistoryPath, c.History.Path)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "carve.yaml")
	content := `root: /mnt/out
keep: jpg,png
exclude: xml.gz
monitor:
  interval: 2s
  lock_marker: .carving
reorganize:
  enabled: true
  batch_size: 100
  dedupe: true
logging:
  audit: true
  dir: /var/log/carve
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	c := loadFresh(t, file)
	assert.Equal(t, "/mnt/out", c.Root)
	assert.Equal(t, 2*time.Second, c.Monitor.Interval)
	assert.Equal(t, ".carving", c.Monitor.LockMarker)
	assert.True(t, c.Reorganize.Enabled)
	assert.Equal(t, 100, c.Reorganize.BatchSize)
	assert.True(t, c.Reorganize.Dedupe)
	assert.True(t, c.Logging.Audit)
	assert.Equal(t, "/var/log/carve", c.Logging.Dir)

	r := c.Rules()
	assert.Equal(t, []string{"jpg", "png"}, r.KeepList())
	assert.Equal(t, []string{"xml.gz"}, r.ExcludeList())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CARVE_REFINERY_KEEP", "mov")
	t.Setenv("CARVE_REFINERY_REORGANIZE_BATCH_SIZE", "7")

	c := loadFresh(t, "")
	assert.Equal(t, "mov", c.Keep)
	assert.Equal(t, 7, c.Reorganize.BatchSize)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CARVE_REFINERY_EXCLUDE=tmp\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CARVE_REFINERY_EXCLUDE") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tmp", c.Exclude)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{Root: "/out", Keep: "jpg", Delete: true}
		c.Monitor.Interval = time.Second
		c.Reorganize.BatchSize = 500
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing root", mutate: func(c *Config) { c.Root = " " }, wantErr: true},
		{name: "delete without rules", mutate: func(c *Config) { c.Keep = "" }, wantErr: true},
		{name: "no delete without rules", mutate: func(c *Config) { c.Keep = ""; c.Delete = false }},
		{name: "exclude only", mutate: func(c *Config) { c.Keep = ""; c.Exclude = "tmp" }},
		{name: "zero interval", mutate: func(c *Config) { c.Monitor.Interval = 0 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.Reorganize.BatchSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, internal.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRules_DeleteDisabled(t *testing.T) {
	c := &Config{Keep: "jpg", Delete: false}
	assert.False(t, c.Rules().Active())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
