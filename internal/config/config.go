// Package config loads the application configuration from defaults, an
// optional YAML file and BOOKSCRAPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bookscraper/bookscraper/internal/crawler"
	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/extractor"
	"github.com/bookscraper/bookscraper/internal/fetcher"
	"github.com/bookscraper/bookscraper/internal/llm"
	"github.com/bookscraper/bookscraper/internal/logger"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BOOKSCRAPER"

// FileEnv names the variable holding an optional config file path
const FileEnv = EnvPrefix + "_CONFIG"

// Config is the whole application configuration
type Config struct {
	DB       db.Config        `mapstructure:"db"`
	Log      logger.Config    `mapstructure:"log"`
	Catalog  crawler.Config   `mapstructure:"catalog"`
	Fetch    fetcher.Config   `mapstructure:"fetch"`
	LLM      llm.Config       `mapstructure:"llm"`
	Extract  extractor.Config `mapstructure:"extract"`
	Pipeline PipelineConfig   `mapstructure:"pipeline"`
	Server   ServerConfig     `mapstructure:"server"`
}

// PipelineConfig holds the per-run batch sizes
type PipelineConfig struct {
	MaxBooks      int  `mapstructure:"max_books"`
	DownloadBatch int  `mapstructure:"download_batch"`
	ExtractBatch  int  `mapstructure:"extract_batch"`
	Progress      bool `mapstructure:"progress"`
}

// ServerConfig holds catalog browser HTTP settings
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		DB:      db.DefaultConfig(),
		Log:     logger.DefaultConfig(),
		Catalog: crawler.DefaultConfig(),
		Fetch:   fetcher.DefaultConfig(),
		LLM:     llm.DefaultConfig(),
		Extract: extractor.DefaultConfig(),
		Pipeline: PipelineConfig{
			MaxBooks:      15,
			DownloadBatch: 10,
			ExtractBatch:  10,
			Progress:      true,
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
	}
}

// Load reads the configuration. The file named by BOOKSCRAPER_CONFIG is
// optional; environment variables override it, e.g. BOOKSCRAPER_DB_HOST.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so that environment variables can
// override keys absent from the config file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db.driver", d.DB.Driver)
	v.SetDefault("db.host", d.DB.Host)
	v.SetDefault("db.port", d.DB.Port)
	v.SetDefault("db.user", d.DB.User)
	v.SetDefault("db.password", d.DB.Password)
	v.SetDefault("db.database", d.DB.Database)
	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("db.max_open", d.DB.MaxOpen)
	v.SetDefault("db.max_idle", d.DB.MaxIdle)
	v.SetDefault("db.timeout", d.DB.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.start_page", d.Catalog.StartPage)
	v.SetDefault("catalog.timeout", d.Catalog.Timeout)
	v.SetDefault("catalog.retry_delay", d.Catalog.RetryDelay)
	v.SetDefault("catalog.max_page_retries", d.Catalog.MaxPageRetries)
	v.SetDefault("catalog.page_delay", d.Catalog.PageDelay)
	v.SetDefault("catalog.link_labels", d.Catalog.LinkLabels)
	v.SetDefault("catalog.user_agent", d.Catalog.UserAgent)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.delay", d.Fetch.Delay)
	v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)

	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("extract.max_chars", d.Extract.MaxChars)
	v.SetDefault("extract.max_tokens", d.Extract.MaxTokens)
	v.SetDefault("extract.delay", d.Extract.Delay)
	v.SetDefault("extract.prompt_template", d.Extract.PromptTemplate)

	v.SetDefault("pipeline.max_books", d.Pipeline.MaxBooks)
	v.SetDefault("pipeline.download_batch", d.Pipeline.DownloadBatch)
	v.SetDefault("pipeline.extract_batch", d.Pipeline.ExtractBatch)
	v.SetDefault("pipeline.progress", d.Pipeline.Progress)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var problems []string

	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverMySQL:
		if c.DB.Host == "" {
			problems = append(problems, "db.host cannot be empty")
		}
		if c.DB.Database == "" {
			problems = append(problems, "db.database cannot be empty")
		}
	case db.DriverSQLite:
		if c.DB.Path == "" {
			problems = append(problems, "db.path cannot be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("db.driver must be postgres, mysql or sqlite, got: %q", c.DB.Driver))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be debug, info, warn or error, got: %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be text or json, got: %q", c.Log.Format))
	}

	if u, err := url.Parse(c.Catalog.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("catalog.base_url is not a valid URL: %q", c.Catalog.BaseURL))
	}
	if c.Catalog.StartPage < 1 {
		problems = append(problems, fmt.Sprintf("catalog.start_page must be positive, got: %d", c.Catalog.StartPage))
	}
	if len(c.Catalog.LinkLabels) == 0 {
		problems = append(problems, "catalog.link_labels cannot be empty")
	}

	for key, d := range map[string]time.Duration{
		"catalog.timeout":     c.Catalog.Timeout,
		"catalog.retry_delay": c.Catalog.RetryDelay,
		"catalog.page_delay":  c.Catalog.PageDelay,
		"fetch.timeout":       c.Fetch.Timeout,
		"fetch.delay":         c.Fetch.Delay,
		"extract.delay":       c.Extract.Delay,
		"llm.timeout":         c.LLM.Timeout,
	} {
		if d < 0 {
			problems = append(problems, fmt.Sprintf("%s cannot be negative, got: %s", key, d))
		}
	}

	if c.LLM.Model == "" {
		problems = append(problems, "llm.model cannot be empty")
	}
	if c.Extract.MaxChars <= 0 {
		problems = append(problems, fmt.Sprintf("extract.max_chars must be positive, got: %d", c.Extract.MaxChars))
	}
	if c.Extract.MaxTokens <= 0 {
		problems = append(problems, fmt.Sprintf("extract.max_tokens must be positive, got: %d", c.Extract.MaxTokens))
	}
	if !strings.Contains(c.Extract.PromptTemplate, extractor.TextPlaceholder) {
		problems = append(problems, fmt.Sprintf("extract.prompt_template must contain %s", extractor.TextPlaceholder))
	}

	if c.Pipeline.MaxBooks < 0 || c.Pipeline.DownloadBatch < 0 || c.Pipeline.ExtractBatch < 0 {
		problems = append(problems, "pipeline batch sizes cannot be negative")
	}

	if c.Server.Port == "" {
		problems = append(problems, "server.port cannot be empty")
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
