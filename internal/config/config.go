// Package config resolves pdfgrab settings from flags, PDFGRAB_* environment
// variables and an optional pdfgrab.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pdfgrab/internal/downloader"
	"pdfgrab/internal/fetch"
)

const (
	DefaultOutputDir = "pdf_downloads"
	DefaultMaxDepth  = 2
	DefaultWorkers   = 3
	DefaultLogLevel  = "warn"

	EnvPrefix  = "PDFGRAB"
	configName = "pdfgrab"
)

// Keys shared by flags, env and the config file.
const (
	KeyOutput    = "output"
	KeyDepth     = "depth"
	KeyWorkers   = "concurrent"
	KeyDoH       = "doh"
	KeyInsecure  = "insecure"
	KeyUserAgent = "user-agent"
	KeyNoTUI     = "no-tui"
	KeyLogLevel  = "log-level"
	KeyLogFile   = "log-file"
	KeyConfig    = "config"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	SeedURL    string
	OutputDir  string
	MaxDepth   int
	Workers    int
	UseDoH     bool
	Insecure   bool
	UserAgent  string
	NoTUI      bool
	LogLevel   string
	LogFile    string
	ConfigFile string
}

// RegisterFlags declares every setting on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyOutput, "o", DefaultOutputDir, "Folder the PDFs are saved into")
	fs.IntP(KeyDepth, "d", DefaultMaxDepth, fmt.Sprintf("Maximum directory depth to follow (0-%d)", downloader.MaxDepthLimit))
	fs.IntP(KeyWorkers, "c", DefaultWorkers, fmt.Sprintf("Number of concurrent downloads (%d-%d)", downloader.MinWorkers, downloader.MaxWorkers))
	fs.Bool(KeyDoH, false, "Resolve hosts with DNS over HTTPS")
	fs.Bool(KeyInsecure, false, "Skip TLS certificate verification")
	fs.String(KeyUserAgent, fetch.DefaultUserAgent, "HTTP User-Agent header")
	fs.Bool(KeyNoTUI, false, "Print the transcript instead of the interactive UI")
	fs.String(KeyLogLevel, DefaultLogLevel, "Diagnostic log level (trace, debug, info, warn, error)")
	fs.String(KeyLogFile, "", "Write diagnostic logs to this file")
	fs.String(KeyConfig, "", "Path to a pdfgrab.yaml config file")
}

// NewViper returns a viper instance bound to fs and the PDFGRAB_* environment.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyOutput, DefaultOutputDir)
	v.SetDefault(KeyDepth, DefaultMaxDepth)
	v.SetDefault(KeyWorkers, DefaultWorkers)
	v.SetDefault(KeyUserAgent, fetch.DefaultUserAgent)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	return v, nil
}

// Load reads the optional config file into v and resolves the final settings.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, seedURL string) (Config, error) {
	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Config{
		SeedURL:    strings.TrimSpace(seedURL),
		OutputDir:  strings.TrimSpace(v.GetString(KeyOutput)),
		MaxDepth:   v.GetInt(KeyDepth),
		Workers:    v.GetInt(KeyWorkers),
		UseDoH:     v.GetBool(KeyDoH),
		Insecure:   v.GetBool(KeyInsecure),
		UserAgent:  v.GetString(KeyUserAgent),
		NoTUI:      v.GetBool(KeyNoTUI),
		LogLevel:   v.GetString(KeyLogLevel),
		LogFile:    v.GetString(KeyLogFile),
		ConfigFile: v.ConfigFileUsed(),
	}, nil
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Request().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Request() downloader.Request {
	return downloader.Request{
		SeedURL:   c.SeedURL,
		OutputDir: c.OutputDir,
		MaxDepth:  c.MaxDepth,
		Workers:   c.Workers,
	}
}

func (c Config) FetchOptions(log logrus.FieldLogger) fetch.Options {
	return fetch.Options{
		UserAgent: c.UserAgent,
		UseDoH:    c.UseDoH,
		Insecure:  c.Insecure,
		Logger:    log,
	}
}
