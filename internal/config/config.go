package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is injected at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Library   LibraryConfig   `mapstructure:"library" yaml:"library"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Metadata  MetadataConfig  `mapstructure:"metadata" yaml:"metadata"`
	Forensics ForensicsConfig `mapstructure:"forensics" yaml:"forensics"`
	Probe     ProbeConfig     `mapstructure:"probe" yaml:"probe"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// NetworkConfig holds peer network client configuration.
type NetworkConfig struct {
	Mode         string        `mapstructure:"mode" yaml:"mode"` // "slskd" or "mock"
	URL          string        `mapstructure:"url" yaml:"url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LibraryConfig holds managed music directory configuration.
type LibraryConfig struct {
	Root         string        `mapstructure:"root" yaml:"root"`
	CoversDir    string        `mapstructure:"covers_dir" yaml:"covers_dir"`
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	SyncWorkers  int           `mapstructure:"sync_workers" yaml:"sync_workers"`
	Watch        bool          `mapstructure:"watch" yaml:"watch"`
}

// SearchConfig holds search session configuration.
type SearchConfig struct {
	GraceWindow  time.Duration `mapstructure:"grace_window" yaml:"grace_window"`
	PushInterval time.Duration `mapstructure:"push_interval" yaml:"push_interval"`
	SessionTTL   time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// MetadataConfig holds enrichment lookup configuration.
type MetadataConfig struct {
	UserAgent         string  `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout           int     `mapstructure:"timeout" yaml:"timeout"` // seconds
	MusicBrainzURL    string  `mapstructure:"musicbrainz_url" yaml:"musicbrainz_url"`
	MusicBrainzRate   float64 `mapstructure:"musicbrainz_rate" yaml:"musicbrainz_rate"` // requests per second
	CoverArtURL       string  `mapstructure:"coverart_url" yaml:"coverart_url"`
	ITunesURL         string  `mapstructure:"itunes_url" yaml:"itunes_url"`
	AppleMusicURL     string  `mapstructure:"apple_music_url" yaml:"apple_music_url"`
	LrclibURL         string  `mapstructure:"lrclib_url" yaml:"lrclib_url"`
	DisableEnrichment bool    `mapstructure:"disable_enrichment" yaml:"disable_enrichment"`
}

// ForensicsConfig holds lossless authenticity analyzer configuration.
type ForensicsConfig struct {
	BinaryPath string        `mapstructure:"binary_path" yaml:"binary_path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ProbeConfig holds stream probe configuration.
type ProbeConfig struct {
	FFprobePath   string `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	MediaInfoPath string `mapstructure:"mediainfo_path" yaml:"mediainfo_path"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Path: "./data/tunedrift.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Network: NetworkConfig{
			Mode:         "slskd",
			URL:          "http://localhost:5030",
			PollInterval: 100 * time.Millisecond,
			SyncInterval: time.Second,
			Timeout:      10 * time.Second,
		},
		Library: LibraryConfig{
			Root:         "./downloads",
			CoversDir:    "./data/covers",
			SyncInterval: 6 * time.Hour,
			SyncWorkers:  4,
			Watch:        true,
		},
		Search: SearchConfig{
			GraceWindow:  3 * time.Second,
			PushInterval: 500 * time.Millisecond,
			SessionTTL:   30 * time.Minute,
		},
		Metadata: MetadataConfig{
			UserAgent:       "TuneDrift/" + Version + " ( https://github.com/tunedrift/tunedrift )",
			Timeout:         10,
			MusicBrainzURL:  "https://musicbrainz.org/ws/2",
			MusicBrainzRate: 1,
			CoverArtURL:     "https://coverartarchive.org",
			ITunesURL:       "https://itunes.apple.com",
			AppleMusicURL:   "https://music.apple.com",
			LrclibURL:       "https://lrclib.net",
		},
		Forensics: ForensicsConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.tunedrift")
	}

	v.SetEnvPrefix("TUNEDRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override nested keys.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("network.mode", d.Network.Mode)
	v.SetDefault("network.url", d.Network.URL)
	v.SetDefault("network.api_key", d.Network.APIKey)
	v.SetDefault("network.poll_interval", d.Network.PollInterval)
	v.SetDefault("network.sync_interval", d.Network.SyncInterval)
	v.SetDefault("network.timeout", d.Network.Timeout)

	v.SetDefault("library.root", d.Library.Root)
	v.SetDefault("library.covers_dir", d.Library.CoversDir)
	v.SetDefault("library.sync_interval", d.Library.SyncInterval)
	v.SetDefault("library.sync_workers", d.Library.SyncWorkers)
	v.SetDefault("library.watch", d.Library.Watch)

	v.SetDefault("search.grace_window", d.Search.GraceWindow)
	v.SetDefault("search.push_interval", d.Search.PushInterval)
	v.SetDefault("search.session_ttl", d.Search.SessionTTL)

	v.SetDefault("metadata.user_agent", d.Metadata.UserAgent)
	v.SetDefault("metadata.timeout", d.Metadata.Timeout)
	v.SetDefault("metadata.musicbrainz_url", d.Metadata.MusicBrainzURL)
	v.SetDefault("metadata.musicbrainz_rate", d.Metadata.MusicBrainzRate)
	v.SetDefault("metadata.coverart_url", d.Metadata.CoverArtURL)
	v.SetDefault("metadata.itunes_url", d.Metadata.ITunesURL)
	v.SetDefault("metadata.apple_music_url", d.Metadata.AppleMusicURL)
	v.SetDefault("metadata.lrclib_url", d.Metadata.LrclibURL)
	v.SetDefault("metadata.disable_enrichment", d.Metadata.DisableEnrichment)

	v.SetDefault("forensics.binary_path", d.Forensics.BinaryPath)
	v.SetDefault("forensics.timeout", d.Forensics.Timeout)

	v.SetDefault("probe.ffprobe_path", d.Probe.FFprobePath)
	v.SetDefault("probe.mediainfo_path", d.Probe.MediaInfoPath)
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Library.Root == "" {
		return errors.New("library.root must be set")
	}
	switch c.Network.Mode {
	case "slskd", "mock":
	default:
		return fmt.Errorf("unknown network mode %q", c.Network.Mode)
	}
	if c.Network.PollInterval <= 0 {
		return errors.New("network.poll_interval must be positive")
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
