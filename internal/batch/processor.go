// Package batch orchestrates one sfx-batch run: rows are read, resolved,
// generated, and written sequentially, and per-row outcomes are accumulated
// into a final summary.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/sfx-batch/internal/core"
	"github.com/book-expert/sfx-batch/internal/naming"
	"github.com/book-expert/sfx-batch/internal/prompts"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// promptSnippetLength bounds the prompt excerpt used in progress messages.
const promptSnippetLength = 50

// Log formats.
const (
	logFmtProcessingRow    = "Processing prompt from row %d: '%s' (duration: %gs, influence: %g)"
	logFmtSavedAudio       = "Saved: %s (%d bytes)"
	logFmtMirroredAudio    = "Mirrored %s to object store"
	logFmtMirrorFailed     = "Failed to mirror %s to object store: %v"
	logFmtRowSkipped       = "Skipping row %d: %v"
	logFmtRowFailed        = "Row %d ('%s') failed: %v"
	logFmtRowFailedDetail  = "Row %d ('%s') failed with unclassified error: %+v"
	logFmtSummaryGenerated = "Successfully generated %d sound effects."
	logFmtSummaryFailed    = "Failed to generate %d sound effects."
	logFmtSummarySkipped   = "Skipped %d rows."
)

// OutcomeKind tags the result of processing one row.
type OutcomeKind int

// The possible row outcomes.
const (
	// OutcomeSuccess means audio was generated and written.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeSkipped means the row never reached the generation service
	// (malformed row or empty prompt).
	OutcomeSkipped

	// OutcomeFailed means generation or the file write failed.
	OutcomeFailed
)

// Outcome is the per-row result, recorded in arrival order.
type Outcome struct {
	Kind      OutcomeKind
	RowNumber int
	Prompt    string

	// Path is the written audio file, set only on success.
	Path string

	// Err carries the skip reason or failure, nil on success.
	Err error
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	Generated int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
}

// Options configures one run of the processor.
type Options struct {
	// InputPath is the delimited prompt file.
	InputPath string

	// OutputDir receives the generated audio files; created if absent.
	OutputDir string

	// Delimiter separates fields in the input file.
	Delimiter rune

	// PromptColumn selects the prompt column by header name or 0-based
	// index. Required.
	PromptColumn string

	// DurationColumn and InfluenceColumn optionally select per-row override
	// columns.
	DurationColumn  string
	InfluenceColumn string

	// Defaults are the global fallback generation parameters.
	Defaults prompts.Defaults

	// Debug enables full detail for unclassified generation errors.
	Debug bool
}

// Processor runs the batch pipeline. Rows are processed one at a time: a row is
// fully resolved, generated, and written before the next is read, so the
// filename registry needs no locking.
type Processor struct {
	generator core.SoundGenerator
	store     core.ObjectStore
	options   Options
	log       *logger.Logger
}

// New creates a processor. The store is optional; pass nil to disable
// object-store mirroring.
func New(
	generator core.SoundGenerator,
	store core.ObjectStore,
	options Options,
	log *logger.Logger,
) *Processor {
	return &Processor{
		generator: generator,
		store:     store,
		options:   options,
		log:       log,
	}
}

// Run processes the whole input file and returns the summary. The error is
// non-nil only for fatal conditions: unreadable input, uncreatable output
// directory, an unresolvable prompt column, or an authentication rejection
// from the generation service. Per-row failures are recorded in the summary
// and do not stop the run.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	inputFile, err := os.Open(p.options.InputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open input file: %w", err)
	}

	defer func() {
		closeErr := inputFile.Close()
		if closeErr != nil {
			p.log.Warn("Failed to close input file: %v", closeErr)
		}
	}()

	reader, err := prompts.NewReader(inputFile, p.options.Delimiter)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read %s: %w", p.options.InputPath, err)
	}

	resolver, err := prompts.NewResolver(
		reader.Header(),
		p.options.PromptColumn,
		p.options.DurationColumn,
		p.options.InfluenceColumn,
		p.options.Defaults,
		p.log,
	)
	if err != nil {
		return Summary{}, err
	}

	p.log.Info("Extracting prompts from column '%s'", resolver.PromptColumnName())

	registry, err := p.prepareOutput()
	if err != nil {
		return Summary{}, err
	}

	return p.processRows(ctx, reader, resolver, registry)
}

// prepareOutput creates the output directory and seeds the filename registry
// from its current contents.
func (p *Processor) prepareOutput() (*naming.Registry, error) {
	err := os.MkdirAll(p.options.OutputDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	registry, err := naming.NewRegistry(p.options.OutputDir)
	if err != nil {
		return nil, err
	}

	return registry, nil
}

// processRows drives the sequential row loop.
func (p *Processor) processRows(
	ctx context.Context,
	reader *prompts.Reader,
	resolver *prompts.Resolver,
	registry *naming.Registry,
) (Summary, error) {
	var summary Summary

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if errors.Is(err, prompts.ErrRowParse) {
			p.recordSkip(&summary, row.Number, err)

			continue
		}

		// Any other read error repeats on every subsequent call, so the
		// run cannot make progress.
		if err != nil {
			p.finish(&summary)

			return summary, fmt.Errorf("failed to read input rows: %w", err)
		}

		outcome, fatalErr := p.processRow(ctx, row, resolver, registry)
		if fatalErr != nil {
			p.finish(&summary)

			return summary, fatalErr
		}

		p.record(&summary, outcome)
	}

	p.finish(&summary)

	return summary, nil
}

// processRow resolves, generates, and writes one row. The returned error is
// non-nil only for fatal conditions that must abort the run.
func (p *Processor) processRow(
	ctx context.Context,
	row prompts.Row,
	resolver *prompts.Resolver,
	registry *naming.Registry,
) (Outcome, error) {
	request, err := resolver.Resolve(row)
	if err != nil {
		return Outcome{
			Kind:      OutcomeSkipped,
			RowNumber: row.Number,
			Prompt:    "",
			Path:      "",
			Err:       err,
		}, nil
	}

	p.log.Info(
		logFmtProcessingRow,
		row.Number, promptSnippet(request.Prompt),
		request.DurationSeconds, request.Influence,
	)

	audioData, err := p.generator.Generate(ctx, request)
	if err != nil {
		if errors.Is(err, core.ErrAuth) {
			return Outcome{}, fmt.Errorf(
				"authentication failed on row %d: %w", row.Number, err,
			)
		}

		return p.failedOutcome(row.Number, request.Prompt, err), nil
	}

	outputPath, err := p.writeAudio(ctx, registry, request.Prompt, audioData)
	if err != nil {
		return p.failedOutcome(row.Number, request.Prompt, err), nil
	}

	return Outcome{
		Kind:      OutcomeSuccess,
		RowNumber: row.Number,
		Prompt:    request.Prompt,
		Path:      outputPath,
		Err:       nil,
	}, nil
}

// writeAudio claims a collision-free filename, writes the audio, and mirrors
// it to the object store when one is configured. A mirror failure is logged
// but does not fail the row; the local file is the primary artifact.
func (p *Processor) writeAudio(
	ctx context.Context,
	registry *naming.Registry,
	prompt string,
	audioData []byte,
) (string, error) {
	base := naming.SanitizeBaseName(prompt)
	filename := registry.Claim(base)
	outputPath := filepath.Join(p.options.OutputDir, filename)

	err := os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write audio file %s: %w", outputPath, err)
	}

	p.log.Info(logFmtSavedAudio, outputPath, len(audioData))

	if p.store != nil {
		uploadErr := p.store.Upload(ctx, filename, audioData)
		if uploadErr != nil {
			p.log.Warn(logFmtMirrorFailed, filename, uploadErr)
		} else {
			p.log.Info(logFmtMirroredAudio, filename)
		}
	}

	return outputPath, nil
}

// failedOutcome builds a per-row failure, logging full detail for unclassified
// errors only in debug mode.
func (p *Processor) failedOutcome(rowNumber int, prompt string, err error) Outcome {
	if p.options.Debug && !isClassified(err) {
		p.log.Error(logFmtRowFailedDetail, rowNumber, promptSnippet(prompt), err)
	} else {
		p.log.Error(logFmtRowFailed, rowNumber, promptSnippet(prompt), err)
	}

	return Outcome{
		Kind:      OutcomeFailed,
		RowNumber: rowNumber,
		Prompt:    prompt,
		Path:      "",
		Err:       err,
	}
}

// record appends an outcome and updates the counters.
func (p *Processor) record(summary *Summary, outcome Outcome) {
	summary.Outcomes = append(summary.Outcomes, outcome)

	switch outcome.Kind {
	case OutcomeSuccess:
		summary.Generated++
	case OutcomeSkipped:
		summary.Skipped++

		p.log.Warn(logFmtRowSkipped, outcome.RowNumber, outcome.Err)
	case OutcomeFailed:
		summary.Failed++
	}
}

// recordSkip records a row that could not even be parsed.
func (p *Processor) recordSkip(summary *Summary, rowNumber int, err error) {
	p.record(summary, Outcome{
		Kind:      OutcomeSkipped,
		RowNumber: rowNumber,
		Prompt:    "",
		Path:      "",
		Err:       err,
	})
}

// finish emits the run summary.
func (p *Processor) finish(summary *Summary) {
	p.log.System("--- Batch Processing Summary ---")
	p.log.System(logFmtSummaryGenerated, summary.Generated)
	p.log.System(logFmtSummaryFailed, summary.Failed)

	if summary.Skipped > 0 {
		p.log.System(logFmtSummarySkipped, summary.Skipped)
	}
}

// isClassified reports whether the error wraps one of the known failure kinds.
func isClassified(err error) bool {
	return errors.Is(err, core.ErrAuth) ||
		errors.Is(err, core.ErrRateLimit) ||
		errors.Is(err, core.ErrParameter) ||
		errors.Is(err, core.ErrGeneration)
}

// promptSnippet truncates a prompt for log messages.
func promptSnippet(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= promptSnippetLength {
		return prompt
	}

	return string(runes[:promptSnippetLength]) + "..."
}
