// Package config は、環境変数と YAML から実行時の設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"

	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config は、環境変数から読み込む実行時の設定です。
type Config struct {
	Provider string `env:"KIZUNA_LLM_PROVIDER" envDefault:"gemini"`

	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiProject  string `env:"GOOGLE_CLOUD_PROJECT"`
	GeminiLocation string `env:"GOOGLE_CLOUD_LOCATION" envDefault:"us-central1"`
	GeminiModel    string `env:"KIZUNA_GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"KIZUNA_OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	LLMTimeout time.Duration `env:"KIZUNA_LLM_TIMEOUT" envDefault:"10s"`
	LLMRetries int           `env:"KIZUNA_LLM_RETRIES" envDefault:"2"`

	Store      string `env:"KIZUNA_STORE" envDefault:"yaml"`
	DataDir    string `env:"KIZUNA_DATA_DIR" envDefault:"data"`
	SQLitePath string `env:"KIZUNA_SQLITE_PATH" envDefault:"data/kizuna.db"`
	MongoURI   string `env:"MONGODB_URI"`
	MongoDB    string `env:"KIZUNA_MONGO_DATABASE" envDefault:"kizuna"`

	FeedURLs    []string      `env:"KIZUNA_FEED_URLS" envSeparator:","`
	FeedLimit   int           `env:"KIZUNA_FEED_LIMIT" envDefault:"5"`
	FeedTTL     time.Duration `env:"KIZUNA_FEED_TTL" envDefault:"15m"`
	JournalDir  string        `env:"KIZUNA_JOURNAL_DIR" envDefault:"data/journal"`
	LogLevel    string        `env:"KIZUNA_LOG_LEVEL" envDefault:"info"`
	PolicyFile  string        `env:"KIZUNA_POLICY_FILE"`
	PersonaFile string        `env:"KIZUNA_PERSONA_FILE"`

	AutosaveEvery int `env:"KIZUNA_AUTOSAVE_EVERY" envDefault:"5"`
	SaveRetries   int `env:"KIZUNA_SAVE_RETRIES" envDefault:"2"`
}

// Load は、環境変数から Config を読み込んで検証します。
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は、足りない値や矛盾した値をまとめて報告します。
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" && c.GeminiProject == "" {
			errs = append(errs, errors.New("gemini needs GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("openai needs OPENAI_API_KEY"))
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown KIZUNA_LLM_PROVIDER %q", c.Provider))
	}

	switch c.Store {
	case StoreYAML:
		if c.DataDir == "" {
			errs = append(errs, errors.New("yaml store needs KIZUNA_DATA_DIR"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store needs KIZUNA_SQLITE_PATH"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("mongo store needs MONGODB_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown KIZUNA_STORE %q", c.Store))
	}

	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("KIZUNA_LLM_TIMEOUT must be > 0"))
	}
	if c.LLMRetries < 0 || c.LLMRetries > 2 {
		errs = append(errs, errors.New("KIZUNA_LLM_RETRIES must be between 0 and 2"))
	}
	if c.AutosaveEvery < 0 {
		errs = append(errs, errors.New("KIZUNA_AUTOSAVE_EVERY must be >= 0"))
	}
	if c.SaveRetries < 0 {
		errs = append(errs, errors.New("KIZUNA_SAVE_RETRIES must be >= 0"))
	}
	return errors.Join(errs...)
}
