package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/sfx-batch/internal/core"
	"github.com/book-expert/sfx-batch/internal/naming"
	"github.com/book-expert/sfx-batch/internal/prompts"
)

// staticGenerator answers every request with the same audio bytes.
type staticGenerator struct{}

func (staticGenerator) Generate(_ context.Context, _ core.Request) ([]byte, error) {
	return []byte("mp3-bytes"), nil
}

// failingReader yields its data and then a persistent error instead of EOF.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}

	n := copy(p, f.data)
	f.data = f.data[n:]

	return n, nil
}

func newInternalTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "batch-internal-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Errorf("Failed to close test logger: %v", closeErr)
		}
	})

	return log
}

// TestProcessRows_StreamErrorIsFatal verifies a persistent read error aborts
// the run instead of looping and accumulating skip outcomes forever.
func TestProcessRows_StreamErrorIsFatal(t *testing.T) {
	t.Parallel()

	streamErr := errors.New("disk read failed")
	source := &failingReader{data: []byte("prompt\nRain\n"), err: streamErr}

	reader, err := prompts.NewReader(source, ';')
	require.NoError(t, err)

	log := newInternalTestLogger(t)

	defaults := prompts.Defaults{DurationSeconds: 5.0, Influence: 0.3}

	resolver, err := prompts.NewResolver(reader.Header(), "0", "", "", defaults, log)
	require.NoError(t, err)

	outputDir := t.TempDir()

	registry, err := naming.NewRegistry(outputDir)
	require.NoError(t, err)

	processor := New(staticGenerator{}, nil, Options{
		InputPath:       "",
		OutputDir:       outputDir,
		Delimiter:       ';',
		PromptColumn:    "0",
		DurationColumn:  "",
		InfluenceColumn: "",
		Defaults:        defaults,
		Debug:           false,
	}, log)

	summary, err := processor.processRows(context.Background(), reader, resolver, registry)
	require.ErrorIs(t, err, streamErr)

	// The row read before the failure was processed; nothing was recorded for
	// the failure itself beyond the returned error.
	assert.Equal(t, 1, summary.Generated)
	assert.Len(t, summary.Outcomes, 1)
}
