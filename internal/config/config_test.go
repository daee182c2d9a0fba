package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgrab/internal/downloader"
	"pdfgrab/internal/fetch"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("pdfgrab", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

// chdir switches into dir for the rest of the test so the default
// config search path is isolated.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func load(t *testing.T, seed string, args ...string) Config {
	t.Helper()
	v, err := NewViper(newFlags(t, args...))
	require.NoError(t, err)
	cfg, err := Load(v, seed)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg := load(t, " https://example.com/pub/ ")
	assert.Equal(t, "https://example.com/pub/", cfg.SeedURL)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, fetch.DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.UseDoH)
	assert.False(t, cfg.NoTUI)
	assert.Empty(t, cfg.ConfigFile)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FlagsOverrideEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pdfgrab.yaml"),
		[]byte("output: from-file\ndepth: 4\nconcurrent: 5\nno-tui: true\n"), 0o644))
	t.Setenv("PDFGRAB_CONCURRENT", "7")
	t.Setenv("PDFGRAB_LOG_LEVEL", "debug")

	cfg := load(t, "http://example.com/", "-d", "1")

	assert.Equal(t, "from-file", cfg.OutputDir)
	assert.Equal(t, 1, cfg.MaxDepth)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.NoTUI)
	assert.Equal(t, "pdfgrab.yaml", filepath.Base(cfg.ConfigFile))
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("doh: true\ninsecure: true\nuser-agent: grabber/1.0\n"), 0o644))

	cfg := load(t, "http://example.com/", "--config", file)
	assert.True(t, cfg.UseDoH)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "grabber/1.0", cfg.UserAgent)

	opts := cfg.FetchOptions(nil)
	assert.True(t, opts.UseDoH)
	assert.Equal(t, "grabber/1.0", opts.UserAgent)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	v, err := NewViper(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	require.NoError(t, err)

	_, err = Load(v, "http://example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		SeedURL:   "https://example.com/",
		OutputDir: DefaultOutputDir,
		MaxDepth:  DefaultMaxDepth,
		Workers:   DefaultWorkers,
		LogLevel:  "info",
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"scheme", func(c *Config) { c.SeedURL = "example.com" }, "URL must start with http:// or https://"},
		{"output", func(c *Config) { c.OutputDir = "" }, "output folder is required"},
		{"depth", func(c *Config) { c.MaxDepth = 11 }, "max depth must be between 0 and 10"},
		{"workers low", func(c *Config) { c.Workers = 0 }, "concurrent downloads must be between 1 and 10"},
		{"workers high", func(c *Config) { c.Workers = 11 }, "concurrent downloads must be between 1 and 10"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "not a valid logrus Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	err := Config{SeedURL: "ftp://x", OutputDir: "o", Workers: 1, LogLevel: "warn"}.Validate()
	assert.ErrorIs(t, err, downloader.ErrInvalidRequest)
}

func TestConfig_Request(t *testing.T) {
	c := Config{SeedURL: "http://h/", OutputDir: "out", MaxDepth: 3, Workers: 4}
	assert.Equal(t, downloader.Request{SeedURL: "http://h/", OutputDir: "out", MaxDepth: 3, Workers: 4}, c.Request())
}
