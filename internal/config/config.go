package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Project ProjectConfig `yaml:"project" mapstructure:"project"`
	SEC     SECConfig     `yaml:"sec" mapstructure:"sec"`
	EPA     EPAConfig     `yaml:"epa" mapstructure:"epa"`
	Text    TextConfig    `yaml:"text" mapstructure:"text"`
	Runtime RuntimeConfig `yaml:"runtime" mapstructure:"runtime"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PathsConfig configures the data directory layout. Raw, interim, processed
// and manifest directories are derived from DataDir/OutputsDir.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
	OutputsDir string `yaml:"outputs_dir" mapstructure:"outputs_dir"`
}

// RawDir is where downloaded source files land.
func (p PathsConfig) RawDir() string { return filepath.Join(p.DataDir, "raw") }

// InterimDir holds intermediate per-stage artifacts.
func (p PathsConfig) InterimDir() string { return filepath.Join(p.DataDir, "interim") }

// ProcessedDir holds the stage outputs consumed downstream.
func (p PathsConfig) ProcessedDir() string { return filepath.Join(p.DataDir, "processed") }

// ManifestsDir holds the per-stage manifests.
func (p PathsConfig) ManifestsDir() string { return filepath.Join(p.OutputsDir, "manifests") }

// QCDir holds the per-stage quality-control reports.
func (p PathsConfig) QCDir() string { return filepath.Join(p.OutputsDir, "qc") }

// ProjectConfig scopes which filings the pipeline covers.
type ProjectConfig struct {
	StartYear   int      `yaml:"start_year" mapstructure:"start_year"`
	EndYear     int      `yaml:"end_year" mapstructure:"end_year"`
	FilingForms []string `yaml:"filing_forms" mapstructure:"filing_forms"`
}

// SECConfig configures SEC downloads. UserAgent must carry contact info per
// the SEC fair-access policy and has no usable default.
type SECConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	FilingsIndex      string  `yaml:"filings_index" mapstructure:"filings_index"`
	MaxFilings        int     `yaml:"max_filings" mapstructure:"max_filings"`
}

// EPAConfig configures the GHGRP and ECHO sources. When a URL is empty the
// corresponding fixture path is used instead, which keeps the pipeline
// runnable offline.
type EPAConfig struct {
	GHGRPURL     string `yaml:"ghgrp_url" mapstructure:"ghgrp_url"`
	GHGRPFixture string `yaml:"ghgrp_fixture" mapstructure:"ghgrp_fixture"`
	EchoURL      string `yaml:"echo_url" mapstructure:"echo_url"`
	EchoFixture  string `yaml:"echo_fixture" mapstructure:"echo_fixture"`
}

// TextConfig configures sentence-level feature extraction.
type TextConfig struct {
	DictionaryVersion string `yaml:"dictionary_version" mapstructure:"dictionary_version"`
	DictionaryPath    string `yaml:"dictionary_path" mapstructure:"dictionary_path"`
	MinSentenceChars  int    `yaml:"min_sentence_chars" mapstructure:"min_sentence_chars"`
	Extractor         string `yaml:"extractor" mapstructure:"extractor"`
}

// RuntimeConfig bounds resource usage.
type RuntimeConfig struct {
	MaxWorkers         int `yaml:"max_workers" mapstructure:"max_workers"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// StoreConfig configures the feature store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISCLOSURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.outputs_dir", "outputs")
	v.SetDefault("project.start_year", 2009)
	v.SetDefault("project.end_year", 2024)
	v.SetDefault("project.filing_forms", []string{"10-K"})
	// Keys without a usable default still get an empty one: viper only
	// surfaces DISCLOSURE_* env overrides during Unmarshal for keys it
	// already knows about. Validate rejects the empty user agent.
	v.SetDefault("sec.user_agent", "")
	v.SetDefault("sec.requests_per_second", 10.0)
	v.SetDefault("sec.filings_index", "data/fixtures/filings_index.csv")
	v.SetDefault("sec.max_filings", 0)
	v.SetDefault("epa.ghgrp_url", "")
	v.SetDefault("epa.ghgrp_fixture", "data/fixtures/ghgrp_sample.xlsx")
	v.SetDefault("epa.echo_url", "")
	v.SetDefault("epa.echo_fixture", "data/fixtures/echo_sample.csv")
	v.SetDefault("text.dictionary_version", "v1")
	v.SetDefault("text.dictionary_path", "")
	v.SetDefault("text.min_sentence_chars", 10)
	v.SetDefault("text.extractor", "dom")
	v.SetDefault("runtime.max_workers", 4)
	v.SetDefault("runtime.request_timeout_secs", 60)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/disclosure.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	ua := strings.TrimSpace(strings.ToLower(c.SEC.UserAgent))
	switch ua {
	case "", "required", "changeme", "todo":
		return eris.New("config: sec.user_agent must be set with contact info")
	}
	if c.Project.StartYear > c.Project.EndYear {
		return eris.Errorf("config: start_year %d after end_year %d", c.Project.StartYear, c.Project.EndYear)
	}
	if c.Runtime.MaxWorkers < 1 {
		return eris.Errorf("config: runtime.max_workers must be >= 1, got %d", c.Runtime.MaxWorkers)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
