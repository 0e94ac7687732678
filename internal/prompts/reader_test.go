// Package prompts_test tests prompt file reading and parameter resolution.
package prompts_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/sfx-batch/internal/prompts"
)

// newTestLogger creates a logger writing into a per-test temp directory.
func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "prompts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Errorf("Failed to close test logger: %v", closeErr)
		}
	})

	return log
}

// readAllRows drains a reader, collecting rows and skipping per-line errors.
func readAllRows(t *testing.T, reader *prompts.Reader) []prompts.Row {
	t.Helper()

	var rows []prompts.Row

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}

		if err != nil {
			continue
		}

		rows = append(rows, row)
	}
}

// TestNewReader_HeaderAndRows verifies header consumption and row numbering.
func TestNewReader_HeaderAndRows(t *testing.T) {
	t.Parallel()

	input := "prompt;note;seconds\nHello World;note;3.0\nRain;note2;\n"

	reader, err := prompts.NewReader(strings.NewReader(input), ';')
	require.NoError(t, err)

	assert.Equal(t, []string{"prompt", "note", "seconds"}, reader.Header())

	rows := readAllRows(t, reader)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, []string{"Hello World", "note", "3.0"}, rows[0].Fields)
	assert.Equal(t, 3, rows[1].Number)
	assert.Equal(t, []string{"Rain", "note2", ""}, rows[1].Fields)
}

// TestNewReader_StripsByteOrderMark verifies a UTF-8 BOM does not leak into the
// first header name.
func TestNewReader_StripsByteOrderMark(t *testing.T) {
	t.Parallel()

	input := "\xEF\xBB\xBFprompt;seconds\nThunder;2.0\n"

	reader, err := prompts.NewReader(strings.NewReader(input), ';')
	require.NoError(t, err)

	assert.Equal(t, []string{"prompt", "seconds"}, reader.Header())
}

// TestNewReader_CustomDelimiter verifies splitting on a non-default delimiter.
func TestNewReader_CustomDelimiter(t *testing.T) {
	t.Parallel()

	input := "prompt,seconds\nWind,4.5\n"

	reader, err := prompts.NewReader(strings.NewReader(input), ',')
	require.NoError(t, err)

	rows := readAllRows(t, reader)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Wind", "4.5"}, rows[0].Fields)
}

// TestNewReader_EmptyInput verifies the missing-header error.
func TestNewReader_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := prompts.NewReader(strings.NewReader(""), ';')
	require.ErrorIs(t, err, prompts.ErrMissingHeader)
}

// TestReader_InconsistentFieldCounts verifies short and long rows are still
// yielded; width validation belongs to resolution.
func TestReader_InconsistentFieldCounts(t *testing.T) {
	t.Parallel()

	input := "prompt;seconds\nonly-prompt\na;b;c;d\n"

	reader, err := prompts.NewReader(strings.NewReader(input), ';')
	require.NoError(t, err)

	rows := readAllRows(t, reader)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].Fields, 1)
	assert.Len(t, rows[1].Fields, 4)
}

// TestReader_SkipsBlankLines verifies blank lines between rows are ignored but
// still advance the physical row numbers.
func TestReader_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	input := "prompt\nFirst\n\nSecond\n"

	reader, err := prompts.NewReader(strings.NewReader(input), ';')
	require.NoError(t, err)

	rows := readAllRows(t, reader)
	require.Len(t, rows, 2)
	assert.Equal(t, "First", rows[0].Fields[0])
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "Second", rows[1].Fields[0])
	assert.Equal(t, 4, rows[1].Number)
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

// TestReader_StreamErrorIsNotRowLevel verifies an error from the underlying
// byte stream is surfaced as is, not as a skippable row error.
func TestReader_StreamErrorIsNotRowLevel(t *testing.T) {
	t.Parallel()

	streamErr := errors.New("disk read failed")
	source := &failingReader{data: []byte("prompt\nRain\n"), err: streamErr}

	reader, err := prompts.NewReader(source, ';')
	require.NoError(t, err)

	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "Rain", row.Fields[0])

	_, err = reader.Next()
	require.ErrorIs(t, err, streamErr)
	assert.NotErrorIs(t, err, prompts.ErrRowParse)
}
