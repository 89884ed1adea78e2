package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Grid        *types.GridConfig `json:"grid,omitempty"`
	Calibration types.Calibration `json:"calibration"`
	Aligner     AlignerConfig     `json:"aligner"`
	Render      RenderConfig      `json:"render"`
	Export      ExportConfig      `json:"export"`
	Detector    DetectorConfig    `json:"detector"`
	Logging     LoggingConfig     `json:"logging"`
}

// AlignerConfig holds configuration for template matching
type AlignerConfig struct {
	AlphaThreshold int `json:"alpha_threshold"`
	Stride         int `json:"stride"`
	YieldEvery     int `json:"yield_every"`
	// AnchorSubRect is normalized relative to the patch origin
	AnchorSubRect types.Rect `json:"anchor_sub_rect"`
}

// RenderConfig holds configuration for preview and export drawing
type RenderConfig struct {
	Mask           bool       `json:"mask"`
	PreviewOpacity float64    `json:"preview_opacity"`
	UseUniformSize bool       `json:"use_uniform_size"`
	MasterSize     types.Rect `json:"master_size"`
}

// ExportConfig holds configuration for output generation
type ExportConfig struct {
	Format    string `json:"format"`
	Prefix    string `json:"prefix"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	DelayMS   int    `json:"delay_ms"`
	OutputDir string `json:"output_dir"`
}

// DetectorConfig holds configuration for the region detector backend
type DetectorConfig struct {
	Backend     string `json:"backend"` // ollama, llamacpp, openai or heuristic
	URL         string `json:"url"`
	Model       string `json:"model"`
	APIKeyEnv   string `json:"api_key_env"`
	SendFormat  string `json:"send_format"`
	SendSize    int    `json:"send_size"`
	SendQuality int    `json:"send_quality"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Calibration: types.IdentityCalibration(),
		Aligner: AlignerConfig{
			AlphaThreshold: 40,
			Stride:         2,
			YieldEvery:     50,
		},
		Render: RenderConfig{
			Mask:           true,
			PreviewOpacity: 0.6,
		},
		Export: ExportConfig{
			Format:    "png",
			Prefix:    "face",
			Quality:   90,
			DelayMS:   0,
			OutputDir: "./output",
		},
		Detector: DetectorConfig{
			Backend:     "heuristic",
			URL:         "http://localhost:11434",
			SendFormat:  "jpg",
			SendSize:    1024,
			SendQuality: 85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to read config file", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse config file", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if g := c.Grid; g != nil {
		if g.Cols < 0 || g.Rows < 0 {
			return invalid("grid.cols and grid.rows must not be negative")
		}
		if g.PatchW < 0 || g.PatchH < 0 {
			return invalid("grid.patch_w and grid.patch_h must not be negative")
		}
	}

	if c.Calibration.Scale <= 0 {
		return invalid("calibration.scale must be positive")
	}

	if c.Aligner.AlphaThreshold < 0 || c.Aligner.AlphaThreshold > 255 {
		return invalid("aligner.alpha_threshold must be between 0 and 255")
	}
	if c.Aligner.Stride < 1 {
		return invalid("aligner.stride must be positive")
	}
	if c.Aligner.YieldEvery < 1 {
		return invalid("aligner.yield_every must be positive")
	}
	if c.Aligner.AnchorSubRect.W < 0 || c.Aligner.AnchorSubRect.H < 0 {
		return invalid("aligner.anchor_sub_rect must not have a negative size")
	}

	if c.Render.PreviewOpacity < 0 || c.Render.PreviewOpacity > 1 {
		return invalid("render.preview_opacity must be between 0 and 1")
	}
	if c.Render.UseUniformSize && !c.Render.MasterSize.Valid() {
		return invalid("render.master_size is required when use_uniform_size is set")
	}

	switch strings.ToLower(c.Export.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return invalid(fmt.Sprintf("export.format %q is not supported", c.Export.Format))
	}
	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return invalid("export.quality must be between 1 and 100")
	}
	if c.Export.DelayMS < 0 {
		return invalid("export.delay_ms must not be negative")
	}

	switch c.Detector.Backend {
	case "heuristic", "ollama", "llamacpp", "openai":
	default:
		return invalid(fmt.Sprintf("detector.backend %q is not supported", c.Detector.Backend))
	}
	if c.Detector.SendQuality < 1 || c.Detector.SendQuality > 100 {
		return invalid("detector.send_quality must be between 1 and 100")
	}

	return nil
}

// DetectorAPIKey resolves the detector credential from the environment.
// Hosted backends require one.
func (c *Config) DetectorAPIKey() (string, error) {
	if c.Detector.APIKeyEnv == "" {
		if c.Detector.Backend == "openai" {
			return "", apperrors.NewConfigurationError("detector.api_key_env is required for the openai backend", nil)
		}
		return "", nil
	}

	key := os.Getenv(c.Detector.APIKeyEnv)
	if key == "" {
		return "", apperrors.NewConfigurationError(fmt.Sprintf("environment variable %s is not set", c.Detector.APIKeyEnv), nil)
	}
	return key, nil
}

// RenderOptions converts the render section
func (c *Config) RenderOptions() types.RenderOptions {
	return types.RenderOptions{
		Mask:           c.Render.Mask,
		PreviewOpacity: c.Render.PreviewOpacity,
		UseUniformSize: c.Render.UseUniformSize,
		MasterSize:     c.Render.MasterSize,
	}
}

// ExportOptions converts the export section
func (c *Config) ExportOptions() types.ExportOptions {
	return types.ExportOptions{
		Format:   c.Export.Format,
		Prefix:   c.Export.Prefix,
		Quality:  c.Export.Quality,
		Lossless: c.Export.Lossless,
	}
}

// LoadEnv loads .env files into the process environment. Missing files are
// skipped; existing variables are not overridden.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return apperrors.NewConfigurationError("failed to load "+p, err)
		}
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "fgo-sprite", "config.json")
}

func invalid(msg string) error {
	return apperrors.NewConfigurationError(msg, nil)
}
