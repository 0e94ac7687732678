package main

import (
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLogger creates a logger writing into a per-test temp directory.
func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "main-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Errorf("Failed to close test logger: %v", closeErr)
		}
	})

	return log
}

// TestResolveAPIKey verifies the flag-over-environment precedence.
func TestResolveAPIKey(t *testing.T) {
	t.Setenv(envAPIKey, "env-key")

	key, err := resolveAPIKey("flag-key", newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "flag-key", key)

	key, err = resolveAPIKey("", newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

// TestResolveAPIKey_Missing verifies the fatal error when no source provides a
// key.
func TestResolveAPIKey_Missing(t *testing.T) {
	t.Setenv(envAPIKey, "")

	_, err := resolveAPIKey("", newTestLogger(t))
	require.ErrorIs(t, err, errMissingAPIKey)
}

// TestLoadConfig_FlagOverrides verifies explicitly set flags win over config
// defaults while unset flags leave them alone.
func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	flags := appFlags{
		inputPath:       "prompts.csv",
		promptColumn:    "0",
		durationColumn:  "",
		influenceColumn: "",
		delimiter:       ",",
		outputDir:       "",
		apiKey:          "",
		duration:        8.0,
		influence:       0,
		maxRetries:      0,
		configPath:      "",
		natsURL:         "",
		natsBucket:      "",
		verbose:         false,
		debug:           false,
		set: map[string]bool{
			flagDelimiter: true,
			flagDuration:  true,
		},
	}

	cfg, err := loadConfig(flags)
	require.NoError(t, err)

	assert.Equal(t, ",", cfg.Input.Delimiter)
	assert.InEpsilon(t, 8.0, cfg.Generation.DurationSeconds, 0.001)

	// Untouched values keep their defaults.
	assert.Equal(t, "sfx_output", cfg.Output.Directory)
	assert.Equal(t, 3, cfg.Generation.MaxRetries)
}

// TestLoadConfig_RejectsInvalidOverrides verifies validation runs after the
// flag layer is applied.
func TestLoadConfig_RejectsInvalidOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	flags := appFlags{
		inputPath:       "prompts.csv",
		promptColumn:    "0",
		durationColumn:  "",
		influenceColumn: "",
		delimiter:       "",
		outputDir:       "",
		apiKey:          "",
		duration:        99.0,
		influence:       0,
		maxRetries:      0,
		configPath:      "",
		natsURL:         "",
		natsBucket:      "",
		verbose:         false,
		debug:           false,
		set: map[string]bool{
			flagDuration: true,
		},
	}

	_, err := loadConfig(flags)
	require.Error(t, err)
}
