// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all daemon configuration.
type Config struct {
	Port string

	SessionName  string
	RetryBudget  int
	ErrorPolicy  string // "raise" or "swallow"
	ArtifactDir  string
	DBPath       string
	ShellPath    string
	ScreenWidth  int
	ScreenHeight int

	Stream StreamConfig
	Bridge BridgeConfig
}

// StreamConfig controls frame production from the HTTP video source.
type StreamConfig struct {
	SourceURL string
	FrameRate int
	Quality   int     // 0-100
	Scale     float64 // 0.1-1.0
	Format    string  // "jpeg" or "png"
}

// BridgeConfig controls the display bridge server.
type BridgeConfig struct {
	Password         string
	Shared           bool
	CompressionLevel int // 0-9
	AllowClipboard   bool
	ViewOnly         bool
	AllowResize      bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		SessionName:  getEnv("SESSION_NAME", "deviced"),
		RetryBudget:  getEnvInt("RETRY_BUDGET", 3),
		ErrorPolicy:  getEnv("ERROR_POLICY", "swallow"),
		ArtifactDir:  getEnv("ARTIFACT_DIR", "./data/artifacts"),
		DBPath:       getEnv("DB_PATH", "./data/deviced.db"),
		ShellPath:    getEnv("SHELL_PATH", ""),
		ScreenWidth:  getEnvInt("SCREEN_WIDTH", 1920),
		ScreenHeight: getEnvInt("SCREEN_HEIGHT", 1080),
		Stream: StreamConfig{
			SourceURL: getEnv("STREAM_URL", ""),
			FrameRate: getEnvInt("FRAME_RATE", 30),
			Quality:   getEnvInt("FRAME_QUALITY", 80),
			Scale:     getEnvFloat("FRAME_SCALE", 1.0),
			Format:    getEnv("FRAME_FORMAT", "jpeg"),
		},
		Bridge: BridgeConfig{
			Password:         getEnv("BRIDGE_PASSWORD", ""),
			Shared:           getEnvBool("BRIDGE_SHARED", true),
			CompressionLevel: getEnvInt("BRIDGE_COMPRESSION_LEVEL", 6),
			AllowClipboard:   getEnvBool("BRIDGE_ALLOW_CLIPBOARD", true),
			ViewOnly:         getEnvBool("BRIDGE_VIEW_ONLY", false),
			AllowResize:      getEnvBool("BRIDGE_ALLOW_RESIZE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all configuration fields are in range.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.RetryBudget <= 0 {
		return fmt.Errorf("RETRY_BUDGET must be > 0")
	}
	if c.ErrorPolicy != "raise" && c.ErrorPolicy != "swallow" {
		return fmt.Errorf("ERROR_POLICY must be raise or swallow, got %q", c.ErrorPolicy)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		return fmt.Errorf("SCREEN_WIDTH and SCREEN_HEIGHT must be > 0")
	}
	if c.Stream.FrameRate <= 0 {
		return fmt.Errorf("FRAME_RATE must be > 0")
	}
	if c.Stream.Quality < 0 || c.Stream.Quality > 100 {
		return fmt.Errorf("FRAME_QUALITY must be in 0-100, got %d", c.Stream.Quality)
	}
	if c.Stream.Scale < 0.1 || c.Stream.Scale > 1.0 {
		return fmt.Errorf("FRAME_SCALE must be in 0.1-1.0, got %v", c.Stream.Scale)
	}
	if c.Stream.Format != "jpeg" && c.Stream.Format != "png" {
		return fmt.Errorf("FRAME_FORMAT must be jpeg or png, got %q", c.Stream.Format)
	}
	if c.Bridge.CompressionLevel < 0 || c.Bridge.CompressionLevel > 9 {
		return fmt.Errorf("BRIDGE_COMPRESSION_LEVEL must be in 0-9, got %d", c.Bridge.CompressionLevel)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
