// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pension-crawler/internal/search"
)

// Config captures every run knob loaded via Viper.
type Config struct {
	Provider string         `mapstructure:"provider"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Download DownloadConfig `mapstructure:"download"`
	Search   SearchConfig   `mapstructure:"search"`
	Google   GoogleConfig   `mapstructure:"google"`
	Bing     BingConfig     `mapstructure:"bing"`
	Sites    SitesConfig    `mapstructure:"sites"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Export   ExportConfig   `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// InputConfig points at the row file.
type InputConfig struct {
	File string `mapstructure:"file"`
}

// OutputConfig controls where CSV exports land.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DownloadConfig controls file downloads.
type DownloadConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Dir          string `mapstructure:"dir"`
	Concurrency  int    `mapstructure:"concurrency"`
	MirrorBucket string `mapstructure:"mirror_bucket"`
}

// SearchConfig holds query assembly settings shared by the search providers.
type SearchConfig struct {
	Modifier string `mapstructure:"modifier"`
	Filetype string `mapstructure:"filetype"`
	Depth    int    `mapstructure:"depth"`
	Site     string `mapstructure:"site"`
}

// GoogleConfig holds Custom Search credentials and filters.
type GoogleConfig struct {
	APIKey    string `mapstructure:"api_key"`
	EngineID  string `mapstructure:"engine_id"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
	Endpoint  string `mapstructure:"endpoint"`
}

// BingConfig holds Web Search credentials and filters.
type BingConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Freshness string `mapstructure:"freshness"`
	Endpoint  string `mapstructure:"endpoint"`
}

// SitesConfig tunes direct site traversal.
type SitesConfig struct {
	Headless bool `mapstructure:"headless"`
	// Promote fetches pages over plain HTTP and re-renders only the ones that
	// look client-rendered. Ignored when Headless is set.
	Promote   bool `mapstructure:"promote"`
	EmitEmpty bool `mapstructure:"emit_empty"`
}

// PDFConfig tunes PDF post-processing.
type PDFConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TargetPages int    `mapstructure:"target_pages"`
	Workers     int    `mapstructure:"workers"`
	TempDir     string `mapstructure:"temp_dir"`
	OCR         bool   `mapstructure:"ocr"`
}

// CrawlerConfig governs fetch politeness and row concurrency.
type CrawlerConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	Concurrency    int     `mapstructure:"concurrency"`
	RetryTimes     int     `mapstructure:"retry_times"`
	BlacklistFile  string  `mapstructure:"blacklist_file"`
}

// ExportConfig selects the CSV column set.
type ExportConfig struct {
	Metadata bool `mapstructure:"metadata"`
}

// DatabaseConfig enables the Postgres result store when DSN is set.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables per-item notifications when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// New returns a Viper instance with env binding and defaults applied, so
// callers can bind flags before unmarshalling.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PENSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "google")
	v.SetDefault("output.dir", "output")
	v.SetDefault("download.enabled", true)
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("search.filetype", "pdf")
	v.SetDefault("search.depth", 0)
	v.SetDefault("google.endpoint", search.GoogleEndpoint)
	v.SetDefault("bing.endpoint", search.BingEndpoint)
	v.SetDefault("pdf.enabled", true)
	v.SetDefault("pdf.target_pages", 5)
	v.SetDefault("pdf.workers", 2)
	v.SetDefault("pdf.ocr", false)
	v.SetDefault("crawler.user_agent", "pension-crawler/0.1")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.rps", 1.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.retry_times", 2)
	v.SetDefault("database.table", "pension_results")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. Every problem
// found is reported, keyed by its config path.
func (c Config) Validate() error {
	var errs []error
	kind, err := search.ParseKind(c.Provider)
	if err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}
	if strings.TrimSpace(c.Input.File) == "" {
		errs = append(errs, errors.New("input.file must be set"))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir must be set"))
	}
	if c.Download.Enabled {
		if strings.TrimSpace(c.Download.Dir) == "" {
			errs = append(errs, errors.New("download.dir must be set when downloads are enabled"))
		}
		if c.Download.Concurrency <= 0 {
			errs = append(errs, errors.New("download.concurrency must be > 0"))
		}
	}
	if err := search.ValidateDepth(c.Search.Depth); err != nil {
		errs = append(errs, fmt.Errorf("search.depth: %w", err))
	}
	switch kind {
	case search.KindGoogle:
		errs = append(errs, c.validateSearchTerms()...)
		if c.Google.APIKey == "" {
			errs = append(errs, errors.New("google.api_key must be set"))
		}
		if c.Google.EngineID == "" {
			errs = append(errs, errors.New("google.engine_id must be set"))
		}
		if err := search.ValidateDate(c.Google.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("google.start_date: %w", err))
		}
		if err := search.ValidateDate(c.Google.EndDate); err != nil {
			errs = append(errs, fmt.Errorf("google.end_date: %w", err))
		}
	case search.KindBing:
		errs = append(errs, c.validateSearchTerms()...)
		if c.Bing.APIKey == "" {
			errs = append(errs, errors.New("bing.api_key must be set"))
		}
		if err := search.ValidateFreshness(c.Bing.Freshness); err != nil {
			errs = append(errs, fmt.Errorf("bing.freshness: %w", err))
		}
	}
	if c.PDF.Enabled && c.Download.Enabled {
		if c.PDF.TargetPages <= 0 {
			errs = append(errs, errors.New("pdf.target_pages must be > 0"))
		}
		if c.PDF.Workers <= 0 {
			errs = append(errs, errors.New("pdf.workers must be > 0"))
		}
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("crawler.timeout_seconds must be > 0"))
	}
	if c.Crawler.RPS < 0 {
		errs = append(errs, errors.New("crawler.rps must be >= 0"))
	}
	if c.Crawler.RetryTimes < 0 {
		errs = append(errs, errors.New("crawler.retry_times must be >= 0"))
	}
	if c.Database.DSN != "" && strings.TrimSpace(c.Database.Table) == "" {
		errs = append(errs, errors.New("database.table must be set when database.dsn is set"))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	if c.Server.Port < 0 {
		errs = append(errs, errors.New("server.port must be >= 0"))
	}
	return errors.Join(errs...)
}

func (c Config) validateSearchTerms() []error {
	var errs []error
	if strings.TrimSpace(c.Search.Modifier) == "" {
		errs = append(errs, errors.New("search.modifier must be set"))
	}
	if strings.TrimSpace(c.Search.Filetype) == "" {
		errs = append(errs, errors.New("search.filetype must be set"))
	}
	return errs
}

// Kind returns the validated provider kind.
func (c Config) Kind() search.Kind {
	kind, _ := search.ParseKind(c.Provider)
	return kind
}

// FetchTimeout converts the crawler timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// SearchSettings projects the provider section into search.Settings.
func (c Config) SearchSettings() search.Settings {
	return search.Settings{
		Modifier:        c.Search.Modifier,
		Filetype:        c.Search.Filetype,
		Depth:           c.Search.Depth,
		Site:            c.Search.Site,
		GoogleKey:       c.Google.APIKey,
		GoogleEngineID:  c.Google.EngineID,
		GoogleStartDate: c.Google.StartDate,
		GoogleEndDate:   c.Google.EndDate,
		GoogleEndpoint:  c.Google.Endpoint,
		BingKey:         c.Bing.APIKey,
		BingFreshness:   c.Bing.Freshness,
		BingEndpoint:    c.Bing.Endpoint,
	}
}
