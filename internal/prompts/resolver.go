package prompts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/sfx-batch/internal/core"
)

// Static errors.
var (
	// ErrEmptyPrompt indicates the prompt cell was empty after quote
	// stripping. The row is skipped.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrMalformedRow indicates a row has fewer fields than the resolved
	// prompt column index requires. The row is skipped.
	ErrMalformedRow = errors.New("malformed row")

	// ErrColumnNotFound indicates a column selector matched nothing in the
	// header.
	ErrColumnNotFound = errors.New("column not found in header")

	// ErrColumnIndexOutOfRange indicates a numeric column selector exceeds
	// the header width.
	ErrColumnIndexOutOfRange = errors.New("column index out of range")
)

// Warning formats for override cells that fall back to the global default.
const (
	warnFmtCellMissing     = "Row %d: column '%s' missing, using global %s %v"
	warnFmtCellEmpty       = "Row %d: empty value in column '%s', using global %s %v"
	warnFmtCellUnparseable = "Row %d: invalid %s '%s' in column '%s', using global %v"
	warnFmtCellOutOfRange  = "Row %d: %s %v in column '%s' is out of range [%v, %v], using global %v"
)

// Parameter names used in warnings.
const (
	paramDuration  = "duration"
	paramInfluence = "influence"
)

// columnNotConfigured marks an optional column selector that is absent or
// unresolvable.
const columnNotConfigured = -1

// Defaults holds the global fallback values applied when a row carries no
// usable override.
type Defaults struct {
	DurationSeconds float64
	Influence       float64
}

// Resolver turns rows into validated generation requests. Column selectors are
// resolved against the header once at construction; every request it produces
// has duration and influence within their valid ranges.
type Resolver struct {
	promptIndex    int
	durationIndex  int
	influenceIndex int
	header         []string
	defaults       Defaults
	log            *logger.Logger
}

// NewResolver resolves the configured column selectors against the header. The
// prompt selector is required and failing to resolve it is an error. The
// duration and influence selectors are optional; when one is configured but
// does not resolve, a warning is logged and the global default applies to all
// rows.
func NewResolver(
	header []string,
	promptColumn, durationColumn, influenceColumn string,
	defaults Defaults,
	log *logger.Logger,
) (*Resolver, error) {
	promptIndex, err := resolveColumnSelector(header, promptColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prompt column '%s': %w", promptColumn, err)
	}

	resolver := &Resolver{
		promptIndex:    promptIndex,
		durationIndex:  columnNotConfigured,
		influenceIndex: columnNotConfigured,
		header:         header,
		defaults:       defaults,
		log:            log,
	}

	resolver.durationIndex = resolver.resolveOptionalColumn(durationColumn, paramDuration)
	resolver.influenceIndex = resolver.resolveOptionalColumn(influenceColumn, paramInfluence)

	return resolver, nil
}

// PromptColumnName returns the header name of the resolved prompt column.
func (r *Resolver) PromptColumnName() string {
	return r.header[r.promptIndex]
}

// Resolve builds the generation request for one row. It returns ErrMalformedRow
// when the row is too short to contain the prompt column and ErrEmptyPrompt
// when the prompt cell is blank after stripping one layer of surrounding double
// quotes. Out-of-range or unparseable override cells fall back to the global
// defaults with a logged warning; they never fail the row.
func (r *Resolver) Resolve(row Row) (core.Request, error) {
	if r.promptIndex >= len(row.Fields) {
		return core.Request{}, fmt.Errorf(
			"%w: row %d has %d fields, prompt column needs at least %d",
			ErrMalformedRow, row.Number, len(row.Fields), r.promptIndex+1,
		)
	}

	prompt := stripSurroundingQuotes(row.Fields[r.promptIndex])
	if strings.TrimSpace(prompt) == "" {
		return core.Request{}, fmt.Errorf("%w: row %d", ErrEmptyPrompt, row.Number)
	}

	duration := r.resolveOverride(
		row, r.durationIndex, paramDuration,
		r.defaults.DurationSeconds,
		core.MinDurationSeconds, core.MaxDurationSeconds,
	)

	influence := r.resolveOverride(
		row, r.influenceIndex, paramInfluence,
		r.defaults.Influence,
		core.MinInfluence, core.MaxInfluence,
	)

	return core.Request{
		Prompt:          prompt,
		DurationSeconds: duration,
		Influence:       influence,
	}, nil
}

// resolveOptionalColumn resolves an optional selector, degrading to the global
// default with a warning instead of failing.
func (r *Resolver) resolveOptionalColumn(selector, param string) int {
	if selector == "" {
		return columnNotConfigured
	}

	index, err := resolveColumnSelector(r.header, selector)
	if err != nil {
		r.log.Warn(
			"%s column '%s' not usable (%v), using the global %s for all rows",
			param, selector, err, param,
		)

		return columnNotConfigured
	}

	return index
}

// resolveOverride extracts a per-row numeric override, falling back to the
// global default when the column is not configured or the cell is missing,
// empty, unparseable, or out of range.
func (r *Resolver) resolveOverride(
	row Row,
	index int,
	param string,
	globalDefault, minValue, maxValue float64,
) float64 {
	if index == columnNotConfigured {
		return globalDefault
	}

	columnName := r.header[index]

	if index >= len(row.Fields) {
		r.log.Warn(warnFmtCellMissing, row.Number, columnName, param, globalDefault)

		return globalDefault
	}

	cell := strings.TrimSpace(row.Fields[index])
	if cell == "" {
		r.log.Warn(warnFmtCellEmpty, row.Number, columnName, param, globalDefault)

		return globalDefault
	}

	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		r.log.Warn(warnFmtCellUnparseable, row.Number, param, cell, columnName, globalDefault)

		return globalDefault
	}

	// NaN compares false against both bounds, so it must be rejected
	// explicitly.
	if math.IsNaN(value) || value < minValue || value > maxValue {
		r.log.Warn(
			warnFmtCellOutOfRange,
			row.Number, param, value, columnName, minValue, maxValue, globalDefault,
		)

		return globalDefault
	}

	return value
}

// stripSurroundingQuotes removes one layer of enclosing double quotes.
func stripSurroundingQuotes(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}

	return value
}

// resolveColumnSelector maps a name-or-index selector to a 0-based column
// index. A selector made entirely of digits is treated as an index, anything
// else as a header name.
func resolveColumnSelector(header []string, selector string) (int, error) {
	if isAllDigits(selector) {
		index, err := strconv.Atoi(selector)
		if err != nil {
			return 0, fmt.Errorf("invalid column index '%s': %w", selector, err)
		}

		if index < 0 || index >= len(header) {
			return 0, fmt.Errorf(
				"%w: index %d, header has %d columns",
				ErrColumnIndexOutOfRange, index, len(header),
			)
		}

		return index, nil
	}

	for i, name := range header {
		if name == selector {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: '%s'", ErrColumnNotFound, selector)
}

// isAllDigits reports whether the selector consists only of ASCII digits.
func isAllDigits(selector string) bool {
	if selector == "" {
		return false
	}

	for _, r := range selector {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
