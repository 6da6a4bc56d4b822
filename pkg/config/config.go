// Package config loads runtime configuration from a chrono.yaml file and
// CHRONO_-prefixed environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	cherr "github.com/chronolab/chrono/pkg/errors"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	ListenAddr string

	GeminiAPIKey string
	TavilyAPIKey string

	// DefaultModel serves every stage without an explicit override.
	DefaultModel string
	StageModels  map[string]string

	ThreadConcurrency int
	DetailConcurrency int

	// GCPProject enables Firestore persistence; empty keeps runs in
	// memory. PubSubTopic additionally mirrors session events.
	GCPProject  string
	PubSubTopic string
}

// Load reads chrono.yaml (optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("chrono")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/chrono")

	v.SetEnvPrefix("CHRONO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("default_model", "gemini-2.0-flash")
	v.SetDefault("thread_concurrency", 8)
	v.SetDefault("detail_concurrency", 4)
	v.SetDefault("pubsub_topic", "")
	v.SetDefault("gcp_project", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:        v.GetString("listen_addr"),
		GeminiAPIKey:      v.GetString("gemini_api_key"),
		TavilyAPIKey:      v.GetString("tavily_api_key"),
		DefaultModel:      v.GetString("default_model"),
		StageModels:       v.GetStringMapString("stage_models"),
		ThreadConcurrency: v.GetInt("thread_concurrency"),
		DetailConcurrency: v.GetInt("detail_concurrency"),
		GCPProject:        v.GetString("gcp_project"),
		PubSubTopic:       v.GetString("pubsub_topic"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, cherr.New(cherr.ErrMissingRequired, "CHRONO_GEMINI_API_KEY is required")
	}
	if cfg.TavilyAPIKey == "" {
		return nil, cherr.New(cherr.ErrMissingRequired, "CHRONO_TAVILY_API_KEY is required")
	}
	return cfg, nil
}

// ModelFor resolves the model for a pipeline stage.
func (c *Config) ModelFor(stage string) string {
	if model, ok := c.StageModels[stage]; ok && model != "" {
		return model
	}
	return c.DefaultModel
}
