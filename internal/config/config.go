// Package config loads and validates linkmind configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mkarpis/linkmind/internal/classify"
	"github.com/mkarpis/linkmind/internal/content"
	"github.com/mkarpis/linkmind/internal/embed"
	collyfetcher "github.com/mkarpis/linkmind/internal/fetcher/colly"
	"github.com/mkarpis/linkmind/internal/logging"
	"github.com/mkarpis/linkmind/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig        `mapstructure:"server"`
	Pipeline pipeline.Config     `mapstructure:"pipeline"`
	Memory   MemoryConfig        `mapstructure:"memory"`
	Storage  StorageConfig       `mapstructure:"storage"`
	Fetcher  collyfetcher.Config `mapstructure:"fetcher"`
	Classify classify.Config     `mapstructure:"classify"`
	Embed    embed.Config        `mapstructure:"embed"`
	Logging  logging.Config      `mapstructure:"logging"`
}

// ServerConfig controls the observability HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MemoryConfig governs the topic memory router.
type MemoryConfig struct {
	// SimilarityThreshold is the cosine similarity at or above which a link
	// joins the nearest existing topic.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// StorageConfig sets the on-disk layout: SQLite index, content cache, notes.
type StorageConfig struct {
	IndexPath string         `mapstructure:"index_path"`
	NotesDir  string         `mapstructure:"notes_dir"`
	Cache     content.Config `mapstructure:"cache"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.fetch_workers", 4)
	v.SetDefault("pipeline.classify_workers", 2)
	v.SetDefault("pipeline.queue_capacity", 64)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)
	v.SetDefault("memory.similarity_threshold", 0.75)
	v.SetDefault("storage.index_path", "linkmind.db")
	v.SetDefault("storage.notes_dir", "notes")
	v.SetDefault("storage.cache.base_dir", "cache")
	v.SetDefault("fetcher.user_agent", "linkmind-bot/0.1")
	v.SetDefault("fetcher.timeout", 15*time.Second)
	v.SetDefault("classify.max_tokens", 1024)
	v.SetDefault("classify.timeout", 60*time.Second)
	v.SetDefault("embed.base_url", embed.DefaultBaseURL)
	v.SetDefault("embed.model", embed.DefaultModel)
	v.SetDefault("embed.timeout", 30*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.FetchWorkers <= 0 {
		return fmt.Errorf("pipeline.fetch_workers must be > 0")
	}
	if c.Pipeline.ClassifyWorkers <= 0 {
		return fmt.Errorf("pipeline.classify_workers must be > 0")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0")
	}
	if t := c.Memory.SimilarityThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("memory.similarity_threshold must be in (0,1)")
	}
	if c.Storage.IndexPath == "" {
		return fmt.Errorf("storage.index_path is required")
	}
	if c.Storage.NotesDir == "" {
		return fmt.Errorf("storage.notes_dir is required")
	}
	if c.Storage.Cache.BaseDir == "" {
		return fmt.Errorf("storage.cache.base_dir is required")
	}
	return nil
}
