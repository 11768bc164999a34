package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "KNOWLEDGEHUB"
	defaultHTTPAddress     = "0.0.0.0:5000"
	defaultDatabasePath    = "knowledgehub.db"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 60
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	defaultGeminiModel     = "gemini-1.5-flash"
	defaultMaxTags         = 6
	defaultSearchWindow    = 200
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	SigningSecret string
	TokenTTL      time.Duration
	LogLevel      string
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
	MaxTags       int
	SearchWindow  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("gemini.base_url", defaultGeminiBaseURL)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("enrich.max_tags", defaultMaxTags)
	configViper.SetDefault("search.window", defaultSearchWindow)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:      configViper.GetString("log.level"),
		GeminiAPIKey:  configViper.GetString("gemini.api_key"),
		GeminiBaseURL: configViper.GetString("gemini.base_url"),
		GeminiModel:   configViper.GetString("gemini.model"),
		MaxTags:       configViper.GetInt("enrich.max_tags"),
		SearchWindow:  configViper.GetInt("search.window"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MaxTags <= 0 {
		return fmt.Errorf("enrich.max_tags must be positive")
	}
	if c.SearchWindow <= 0 {
		return fmt.Errorf("search.window must be positive")
	}
	return nil
}
