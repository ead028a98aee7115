// Package config загружает настройки из config.yaml, .env и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	SourceUK        = "uk"
	SourceEU        = "eu"
	SourceSynthetic = "synthetic"
)

type Database struct {
	URL string `mapstructure:"url"`
}

type Server struct {
	Address string `mapstructure:"address"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Source - откуда берём уведомления. Код страны и базовый URL
// передаются в клиент и конвейер явно.
type Source struct {
	Name        string        `mapstructure:"name"`
	CountryCode string        `mapstructure:"country_code"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type Scrape struct {
	Limit             int           `mapstructure:"limit"`
	Stage             string        `mapstructure:"stage"`
	DaysBack          int           `mapstructure:"days_back"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RunLogDir         string        `mapstructure:"run_log_dir"`
}

type Schedule struct {
	Spec           string `mapstructure:"spec"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type Export struct {
	MaxRows int `mapstructure:"max_rows"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Source   Source   `mapstructure:"source"`
	Scrape   Scrape   `mapstructure:"scrape"`
	Schedule Schedule `mapstructure:"schedule"`
	Export   Export   `mapstructure:"export"`
}

var defaultCountry = map[string]string{
	SourceUK:        "UK",
	SourceEU:        "EU",
	SourceSynthetic: "UK",
}

var defaultBaseURL = map[string]string{
	SourceUK: "https://www.find-tender.service.gov.uk/api/1.0",
	SourceEU: "https://api.ted.europa.eu",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("source.name", SourceUK)
	v.SetDefault("source.country_code", "")
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.user_agent", "Tendly-Scraper/1.0")
	v.SetDefault("scrape.limit", 100)
	v.SetDefault("scrape.stage", "")
	v.SetDefault("scrape.days_back", 7)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.initial_backoff", 2*time.Second)
	v.SetDefault("scrape.requests_per_second", 2.0)
	v.SetDefault("scrape.run_log_dir", "logs")
	v.SetDefault("schedule.spec", "@hourly")
	v.SetDefault("schedule.metrics_address", "")
	v.SetDefault("export.max_rows", 10000)
}

// flagKeys - флаги командной строки и ключи, которые они перекрывают.
var flagKeys = map[string]string{
	"source":    "source.name",
	"country":   "source.country_code",
	"limit":     "scrape.limit",
	"stage":     "scrape.stage",
	"days-back": "scrape.days_back",
	"log-level": "log.level",
}

// Load читает конфигурацию. path может быть пустым - тогда ищем
// config.yaml в ./ и ./config, отсутствие файла не ошибка.
// Заданные флаги из flags важнее файла и окружения.
func Load(path string, flags ...*pflag.FlagSet) (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// имена переменных, которые уже используются в деплое
	_ = v.BindEnv("database.url", "POSTGRES_CONN", "DATABASE_URL")
	_ = v.BindEnv("server.address", "SERVER_ADDRESS")
	_ = v.BindEnv("source.country_code", "COUNTRY_CODE", "SOURCE_COUNTRY_CODE")

	for _, fs := range flags {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applySourceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applySourceDefaults() {
	c.Source.Name = strings.ToLower(strings.TrimSpace(c.Source.Name))
	if c.Source.CountryCode == "" {
		c.Source.CountryCode = defaultCountry[c.Source.Name]
	}
	c.Source.CountryCode = strings.ToUpper(c.Source.CountryCode)
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = defaultBaseURL[c.Source.Name]
	}
}

// Validate проверяет значения, без которых запуск бессмысленен.
func (c *Config) Validate() error {
	switch c.Source.Name {
	case SourceUK, SourceEU, SourceSynthetic:
	default:
		return fmt.Errorf("unknown source %q (expected uk, eu or synthetic)", c.Source.Name)
	}
	if c.Source.CountryCode == "" {
		return errors.New("source.country_code is required")
	}
	if c.Scrape.Limit <= 0 {
		return errors.New("scrape.limit must be positive")
	}
	if c.Scrape.DaysBack < 0 {
		return errors.New("scrape.days_back must not be negative")
	}
	if c.Scrape.MaxAttempts <= 0 {
		return errors.New("scrape.max_attempts must be positive")
	}
	if c.Export.MaxRows <= 0 {
		return errors.New("export.max_rows must be positive")
	}
	return nil
}

// RequireDatabase - для команд, которым нужна БД.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("POSTGRES_CONN env variable is not set")
	}
	return nil
}
