// Package config loads application configuration from (in order of
// precedence) environment variables, a YAML config file, and built-in
// defaults. The playback tunables live here rather than as code constants:
// the early-switch and preload margins are empirically tuned values with no
// derivation, so they stay overridable per install.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Probe   ProbeConfig   `yaml:"probe" mapstructure:"probe"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Remote  RemoteConfig  `yaml:"remote" mapstructure:"remote"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
}

// EngineConfig holds the playback engine tunables.
type EngineConfig struct {
	// EarlySwitchMargin is how close to a clip's end the poll loop flips to
	// the preloaded slot instead of waiting for the native ended signal.
	EarlySwitchMargin time.Duration `yaml:"early_switch_margin" mapstructure:"early_switch_margin" env:"TILAWA_EARLY_SWITCH_MARGIN"`

	// PreloadMargin is the remaining time in the current clip at which the
	// next clip starts buffering into the inactive slot.
	PreloadMargin time.Duration `yaml:"preload_margin" mapstructure:"preload_margin" env:"TILAWA_PRELOAD_MARGIN"`

	// TickInterval is the period of the engine's polling loop.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval" env:"TILAWA_TICK_INTERVAL"`
}

// ProbeConfig controls duration probing of remote clips.
type ProbeConfig struct {
	// Timeout caps a single clip probe before the fallback duration is used.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" env:"TILAWA_PROBE_TIMEOUT"`

	// FallbackSeconds is assumed when a probe times out or fails to decode.
	FallbackSeconds float64 `yaml:"fallback_seconds" mapstructure:"fallback_seconds" env:"TILAWA_PROBE_FALLBACK_SECONDS"`

	// BatchSize bounds how many probes run concurrently during whole-surah
	// timeline resolution.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" env:"TILAWA_PROBE_BATCH_SIZE"`

	// RequestsPerSecond rate-limits probe and clip fetches against the host.
	// Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" env:"TILAWA_PROBE_RPS"`
}

// StorageConfig holds local persistence paths and settings.
type StorageConfig struct {
	// DataDir is where the key/value store lives. Empty selects the XDG
	// data directory.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" env:"TILAWA_DATA_DIR"`

	// CacheDir is where cached clip blobs live. Empty selects the XDG
	// cache directory.
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir" env:"TILAWA_CACHE_DIR"`

	// CompressionLevel is the zstd level used for cached blobs; zero
	// disables compression.
	CompressionLevel int `yaml:"compression_level" mapstructure:"compression_level" env:"TILAWA_COMPRESSION_LEVEL"`
}

// RemoteConfig configures the shared duration-timeline table. The feature is
// optional: an empty DSN disables it and all lookups degrade to local tiers.
type RemoteConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" env:"TILAWA_DATABASE_URL"`
}

// SourceConfig configures the audio host and metadata API.
type SourceConfig struct {
	AudioBaseURL string `yaml:"audio_base_url" mapstructure:"audio_base_url" env:"TILAWA_AUDIO_BASE_URL"`
	QuranAPIURL  string `yaml:"quran_api_url" mapstructure:"quran_api_url" env:"TILAWA_QURAN_API_URL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			EarlySwitchMargin: 150 * time.Millisecond,
			PreloadMargin:     2 * time.Second,
			TickInterval:      16 * time.Millisecond,
		},
		Probe: ProbeConfig{
			Timeout:           5 * time.Second,
			FallbackSeconds:   3,
			BatchSize:         10,
			RequestsPerSecond: 0,
		},
		Storage: StorageConfig{
			CompressionLevel: 3,
		},
		Source: SourceConfig{
			QuranAPIURL: "https://quranapi.pages.dev/api",
		},
	}
}

// Load reads configuration from the config file (if present) and the
// environment. Missing files are not an error.
func Load() (Config, error) {
	cfg := Default()

	// A .env next to the binary is developer convenience, never required.
	_ = godotenv.Load()

	path, err := configFilePath()
	if err == nil {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err == nil {
			if err := viper.Unmarshal(&cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			log.Debug("loaded config file", "path", path)
		} else if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				log.Warn("unreadable config file, using defaults", "path", path, "error", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.fillPaths(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configFilePath() (string, error) {
	scope := gap.NewScope(gap.User, "tilawa")
	dirs, err := scope.ConfigDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dirs[0], "tilawa.yml"), nil
}

func (c *Config) fillPaths() error {
	scope := gap.NewScope(gap.User, "tilawa")

	if c.Storage.DataDir == "" {
		dir, err := scope.DataPath("")
		if err != nil {
			return fmt.Errorf("locate data dir: %w", err)
		}
		c.Storage.DataDir = dir
	}
	if c.Storage.CacheDir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("locate cache dir: %w", err)
		}
		c.Storage.CacheDir = filepath.Join(dir, "audio")
	}
	return nil
}
