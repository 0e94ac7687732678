// Package config provides the invocation-scoped configuration for sfx-batch.
//
// Values come from three layers: built-in defaults, an optional TOML file, and
// command-line flags applied by the caller on top of the loaded struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/sfx-batch/internal/core"
)

// DefaultFileName is the config file looked up in the working directory when
// no explicit path is given.
const DefaultFileName = "sfx-batch.toml"

// Built-in defaults.
const (
	defaultOutputDirectory = "sfx_output"
	defaultDelimiter       = ";"
	defaultDuration        = 5.0
	defaultInfluence       = 0.3
	defaultMaxRetries      = 3
	defaultAPIBaseURL      = "https://api.elevenlabs.io"
	defaultTimeoutSeconds  = 120
)

// MaxRetriesLimit caps the configurable retry budget.
const MaxRetriesLimit = 10

// Static errors.
var (
	ErrDurationOutOfRange   = errors.New("global duration out of range")
	ErrInfluenceOutOfRange  = errors.New("global influence out of range")
	ErrMaxRetriesOutOfRange = errors.New("max retries out of range")
	ErrDelimiterNotSingle   = errors.New("delimiter must be a single character")
)

// InputConfig holds settings for reading the prompt file.
type InputConfig struct {
	Delimiter string `toml:"delimiter"`
}

// OutputConfig holds settings for the generated audio files.
type OutputConfig struct {
	Directory string `toml:"directory"`
}

// GenerationConfig holds the global generation parameters applied when a row
// carries no valid override.
type GenerationConfig struct {
	DurationSeconds float64 `toml:"duration_seconds"`
	Influence       float64 `toml:"influence"`
	MaxRetries      int     `toml:"max_retries"`
}

// APIConfig holds the connection settings for the sound-generation service.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the optional object-store mirror settings. An empty URL
// disables mirroring.
type NATSConfig struct {
	URL                    string `toml:"url"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Input      InputConfig      `toml:"input"`
	Output     OutputConfig     `toml:"output"`
	Generation GenerationConfig `toml:"generation"`
	API        APIConfig        `toml:"api"`
	NATS       NATSConfig       `toml:"nats"`
	Paths      PathsConfig      `toml:"paths"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Delimiter: defaultDelimiter,
		},
		Output: OutputConfig{
			Directory: defaultOutputDirectory,
		},
		Generation: GenerationConfig{
			DurationSeconds: defaultDuration,
			Influence:       defaultInfluence,
			MaxRetries:      defaultMaxRetries,
		},
		API: APIConfig{
			BaseURL:        defaultAPIBaseURL,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		NATS: NATSConfig{
			URL:                    "",
			AudioObjectStoreBucket: "",
		},
		Paths: PathsConfig{
			BaseLogsDir: "",
		},
	}
}

// Load builds the configuration from the defaults and an optional TOML file.
// With an explicit path the file must exist and parse; with an empty path the
// default file name is tried in the working directory and silently skipped when
// absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the loaded values against the ranges the generation service
// accepts. It is called after flag overrides have been applied, so it covers
// every layer.
func (c *Config) Validate() error {
	duration := c.Generation.DurationSeconds
	if duration < core.MinDurationSeconds || duration > core.MaxDurationSeconds {
		return fmt.Errorf(
			"%w: %v not in [%v, %v]",
			ErrDurationOutOfRange, duration,
			core.MinDurationSeconds, core.MaxDurationSeconds,
		)
	}

	influence := c.Generation.Influence
	if influence < core.MinInfluence || influence > core.MaxInfluence {
		return fmt.Errorf(
			"%w: %v not in [%v, %v]",
			ErrInfluenceOutOfRange, influence,
			core.MinInfluence, core.MaxInfluence,
		)
	}

	if c.Generation.MaxRetries < 0 || c.Generation.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf(
			"%w: %d not in [0, %d]",
			ErrMaxRetriesOutOfRange, c.Generation.MaxRetries, MaxRetriesLimit,
		)
	}

	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("%w: got %q", ErrDelimiterNotSingle, c.Input.Delimiter)
	}

	return nil
}

// DelimiterRune returns the configured delimiter as a rune. Validate must have
// accepted the configuration first.
func (c *Config) DelimiterRune() rune {
	delimiter, _ := utf8.DecodeRuneInString(c.Input.Delimiter)

	return delimiter
}
