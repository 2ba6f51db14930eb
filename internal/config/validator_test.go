package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{
		Project: Project{Root: "/test/root"},
		Index:   Index{MaxFileSize: 1024 * 1024},
	}

	err := NewValidator().ValidateAndSetDefaults(cfg)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cfg.Build.Workers, 1)
	assert.Equal(t, DefaultHaltThreshold, cfg.Build.HaltThreshold)
	assert.Equal(t, "local", cfg.Store.Backend)
	assert.Equal(t, "zstd", cfg.Store.Compression)
	assert.Equal(t, DefaultMaxGroups, cfg.Search.MaxGroups)
	assert.Equal(t, DefaultMaxSnippetsPerFile, cfg.Search.MaxSnippetsPerFile)
}

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default(t.TempDir())
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }, "project"},
		{"zero max file size", func(c *Config) { c.Index.MaxFileSize = 0 }, "index"},
		{"huge max file size", func(c *Config) { c.Index.MaxFileSize = 200 * 1024 * 1024 }, "index"},
		{"negative workers", func(c *Config) { c.Build.Workers = -1 }, "build"},
		{"bad halt threshold", func(c *Config) { c.Build.HaltThreshold = "lots" }, "build"},
		{"zero halt threshold", func(c *Config) { c.Build.HaltThreshold = "0" }, "build"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "ftp" }, "store"},
		{"s3 without bucket", func(c *Config) { c.Store.Backend = "s3" }, "store"},
		{"minio without endpoint", func(c *Config) { c.Store = Store{Backend: "minio", Bucket: "b"} }, "store"},
		{"unknown compression", func(c *Config) { c.Store.Compression = "brotli" }, "store"},
		{"negative groups", func(c *Config) { c.Search.MaxGroups = -1 }, "search"},
		{"negative qps", func(c *Config) { c.Server.QueriesPerSecond = -1 }, "server"},
		{"bad glob", func(c *Config) { c.Exclude = append(c.Exclude, "[unclosed") }, "patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/test/root")
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)

			var cfgErr *xreferrors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default("/test/root")
	cfg.ApplyOverrides(0, "", nil)
	assert.Equal(t, 0, cfg.Build.Workers)
	assert.Equal(t, DefaultHaltThreshold, cfg.Build.HaltThreshold)

	cfg.ApplyOverrides(6, "3", []string{"analyze", "--fast"})
	assert.Equal(t, 6, cfg.Build.Workers)
	assert.Equal(t, 3, cfg.HaltThreshold().Count)
	assert.Equal(t, "analyze", cfg.Build.AnalyzerCommand)
	assert.Equal(t, []string{"--fast"}, cfg.Build.AnalyzerArgs)
}

func TestDeduplicatePatterns(t *testing.T) {
	got := DeduplicatePatterns([]string{"a", "b", "a", "", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
