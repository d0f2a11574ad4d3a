// Package config handles psktool configuration loading and management.
package config

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/skelconv/internal/logger"
	"github.com/Faultbox/skelconv/pkg/chunk"
)

// Config holds all psktool settings.
type Config struct {
	Export  ExportConfig  `yaml:"export"`
	Import  ImportConfig  `yaml:"import"`
	Names   NamesConfig   `yaml:"names"`
	Logging LoggingConfig `yaml:"logging"`
}

// ExportConfig holds scene to PSK/PSA settings.
type ExportConfig struct {
	FrameRate float32 `yaml:"frame_rate"` // 0 uses the scene's rate
	FlipV     bool    `yaml:"flip_v"`     // write 1-v texture coordinates
	OutputDir string  `yaml:"output_dir"` // empty writes next to the scene
	WritePSA  bool    `yaml:"write_psa"`
}

// ImportConfig holds PSK/PSA reading settings.
type ImportConfig struct {
	StrictTypeFlag bool `yaml:"strict_type_flag"`
	FlipV          bool `yaml:"flip_v"`
	LoadPSA        bool `yaml:"load_psa"` // read the .psa next to the mesh
}

// NamesConfig selects the code page of bone, material and action names.
type NamesConfig struct {
	Encoding string `yaml:"encoding"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			FlipV:    true,
			WritePSA: true,
		},
		Import: ImportConfig{
			FlipV:   true,
			LoadPSA: true,
		},
		Names: NamesConfig{
			Encoding: chunk.DefaultEncoding,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error
	if c.Export.FrameRate < 0 {
		errs = multierr.Append(errs, fmt.Errorf("export.frame_rate must not be negative, got %v", c.Export.FrameRate))
	}
	if _, err := chunk.NewNameCodec(c.Names.Encoding); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("names.encoding: %w", err))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errs
}

// NameCodec returns the codec selected by Names.Encoding.
func (c *Config) NameCodec() (*chunk.NameCodec, error) {
	return chunk.NewNameCodec(c.Names.Encoding)
}
