// Package config loads pipeline configuration from the environment, with
// an optional YAML file overlay for the conversion profile and format
// policy. Configuration is resolved once at startup and passed into
// constructors explicitly; nothing reads ambient process state later.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/voxpipe/voxpipe/internal/convert"
	"github.com/voxpipe/voxpipe/internal/format"
)

// Config holds everything the pipeline needs.
type Config struct {
	// Backend selects the registered transcription backend.
	Backend string `env:"VOXPIPE_BACKEND" envDefault:"openai" yaml:"backend"`

	// OpenAI-compatible backend settings.
	APIKey  string `env:"OPENAI_API_KEY"                                          yaml:"-"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"  yaml:"base_url"`
	Model   string `env:"VOXPIPE_MODEL"   envDefault:"whisper-large-v3-turbo"     yaml:"model"`

	// Amazon Transcribe backend settings.
	AWSRegion   string `env:"AWS_REGION"           envDefault:"us-east-1" yaml:"aws_region"`
	AWSBucket   string `env:"VOXPIPE_S3_BUCKET"                           yaml:"aws_bucket"`
	AWSLanguage string `env:"VOXPIPE_AWS_LANGUAGE" envDefault:"en-US"     yaml:"aws_language"`

	// OutputDir is where transcript artifacts land.
	OutputDir string `env:"VOXPIPE_OUTPUT_DIR" envDefault:"./transcripts" yaml:"output_dir"`

	// Format policy. YAML-only; the defaults match the stock policy.
	SupportedFormats []string `yaml:"supported_formats"`
	ConvertFormats   []string `yaml:"convert_formats"`
	TargetFormat     string   `yaml:"target_format"`

	// Conversion is the fixed normalization profile.
	Conversion convert.Profile `yaml:"conversion"`
}

// Load resolves configuration from the environment, then overlays the YAML
// file at path when one is given.
func Load(path string) (*Config, error) {
	cfg := Config{
		SupportedFormats: format.DefaultSupported,
		ConvertFormats:   format.DefaultConvert,
		TargetFormat:     format.DefaultTargetExt,
		Conversion:       convert.DefaultProfile(),
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	return &cfg, nil
}

// Policy builds the format policy this configuration describes.
func (c *Config) Policy() *format.Policy {
	return format.NewPolicy(c.SupportedFormats, c.ConvertFormats, c.TargetFormat)
}

// BackendConfig flattens the settings relevant to the selected backend
// into the map backend factories consume.
func (c *Config) BackendConfig() map[string]string {
	switch c.Backend {
	case "aws":
		return map[string]string{
			"region":   c.AWSRegion,
			"bucket":   c.AWSBucket,
			"language": c.AWSLanguage,
		}
	default:
		return map[string]string{
			"api_key":  c.APIKey,
			"base_url": c.BaseURL,
			"model":    c.Model,
		}
	}
}
