package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gallery GalleryConfig `yaml:"gallery"`
	Thumbs  ThumbsConfig  `yaml:"thumbs"`
	Access  AccessConfig  `yaml:"access"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// GalleryConfig holds catalog settings.
type GalleryConfig struct {
	// Root is the directory tree the gallery serves. A custom root saved via
	// the settings endpoint takes precedence at runtime.
	Root string `yaml:"root"`
	// DataDir holds the gallery's private state: metadata, ratings, settings,
	// the index database and log files.
	DataDir string `yaml:"data_dir"`
	// Extensions is the default tracked extension set, lowercase with dot.
	Extensions []string `yaml:"extensions"`
	// ListLimit caps the number of images a single /list response returns.
	// Zero means unlimited.
	ListLimit int `yaml:"list_limit"`
}

// ThumbsConfig holds thumbnail cache settings.
type ThumbsConfig struct {
	// MaxEdge caps the longer edge of generated thumbnails, in pixels.
	MaxEdge int `yaml:"max_edge"`
}

// AccessConfig holds access filter cache settings.
type AccessConfig struct {
	DecisionTTL      Duration `yaml:"decision_ttl"`
	DecisionCapacity int      `yaml:"decision_capacity"`
	RequestTTL       Duration `yaml:"request_ttl"`
	RequestCapacity  int      `yaml:"request_capacity"`
}

// WatchConfig holds change notifier settings.
type WatchConfig struct {
	// PollInterval is the rescan cadence when polling mode is active.
	PollInterval Duration `yaml:"poll_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogFileConfig `yaml:"server"`
	Requests LogFileConfig `yaml:"requests"`
}

// LogFileConfig holds settings for a single log file.
type LogFileConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds index database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8790",
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(60 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Gallery: GalleryConfig{
			Root:       "output",
			DataDir:    "data/gallery",
			Extensions: []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif"},
			ListLimit:  0,
		},
		Thumbs: ThumbsConfig{
			MaxEdge: 256,
		},
		Access: AccessConfig{
			DecisionTTL:      Duration(time.Hour),
			DecisionCapacity: 4096,
			RequestTTL:       Duration(time.Minute),
			RequestCapacity:  256,
		},
		Watch: WatchConfig{
			PollInterval: Duration(2 * time.Second),
		},
		Log: LogConfig{
			Server:   LogFileConfig{Path: "data/gallery/logs/server.log", Level: "INFO"},
			Requests: LogFileConfig{Path: "data/gallery/logs/requests.log", Level: "INFO"},
		},
		DB: DBConfig{
			Path: "data/gallery/index.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		applyEnvOverrides(cfg)
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides fills settings from the environment when present.
// Loaded after .env so a deployment can relocate the tree without editing yaml.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GALLERY_ROOT"); v != "" {
		cfg.Gallery.Root = v
	}
	if v := os.Getenv("GALLERY_DATA_DIR"); v != "" {
		cfg.Gallery.DataDir = v
	}
	if v := os.Getenv("GALLERY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# GalleryGo Configuration
# ----------------------
# Durations accept Go syntax: ns, us, ms, s, m, h

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
