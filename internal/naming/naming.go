// Package naming derives filesystem-safe audio filenames from prompt text and
// guarantees that no two rows of a run are assigned the same output name.
package naming

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Filename derivation limits and defaults.
const (
	// MaxBaseNameLength is the maximum length, in runes, of a sanitized base
	// name before the extension and any collision suffix are added.
	MaxBaseNameLength = 150

	// FallbackBaseName is used when sanitization leaves nothing of the prompt.
	FallbackBaseName = "sound"

	// DefaultExtension is the extension for generated audio files.
	DefaultExtension = ".mp3"

	// maxNumericSuffixes bounds the sequential collision scan before falling
	// back to a random suffix.
	maxNumericSuffixes = 1000

	// uuidSuffixLength is the number of hex characters taken from a UUID when
	// the numeric suffix scan is exhausted.
	uuidSuffixLength = 8
)

// Characters replaced with underscores in addition to whitespace.
const replacedChars = `/\:*?"<>|`

// Characters trimmed from the ends of a sanitized name.
const trimmedEdgeChars = "_.-"

// SanitizeBaseName converts prompt text into a filesystem-safe base filename.
// Whitespace and characters that are unsafe on common filesystems become
// underscores, anything else that is not a letter, digit, underscore, or period
// is dropped, and the result is lowercased, collapsed, and truncated. An empty
// result yields FallbackBaseName so every row gets a usable name.
func SanitizeBaseName(prompt string) string {
	lowered := strings.ToLower(prompt)

	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return '_'
		case strings.ContainsRune(replacedChars, r):
			return '_'
		case r == '_' || r == '.':
			return r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return -1
		}
	}, lowered)

	collapsed := collapseUnderscores(mapped)
	trimmed := strings.Trim(collapsed, trimmedEdgeChars)

	runes := []rune(trimmed)
	if len(runes) > MaxBaseNameLength {
		trimmed = strings.Trim(string(runes[:MaxBaseNameLength]), trimmedEdgeChars)
	}

	if trimmed == "" {
		return FallbackBaseName
	}

	return trimmed
}

// collapseUnderscores reduces runs of consecutive underscores to a single one.
func collapseUnderscores(name string) string {
	var builder strings.Builder

	builder.Grow(len(name))

	previousWasUnderscore := false

	for _, r := range name {
		if r == '_' {
			if previousWasUnderscore {
				continue
			}

			previousWasUnderscore = true
		} else {
			previousWasUnderscore = false
		}

		builder.WriteRune(r)
	}

	return builder.String()
}

// Registry tracks the output filenames assigned during one run. It is seeded
// with the names already present in the output directory, so collisions are
// resolved against both earlier rows and pre-existing files, even before any
// audio has been flushed to disk.
//
// Registry is not safe for concurrent use; the pipeline processes rows
// sequentially and owns the single instance.
type Registry struct {
	taken map[string]struct{}
}

// NewRegistry creates a registry seeded with the entries of the given output
// directory. A directory that does not exist yet seeds an empty registry.
func NewRegistry(outputDir string) (*Registry, error) {
	registry := &Registry{
		taken: make(map[string]struct{}),
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return registry, nil
		}

		return nil, fmt.Errorf("failed to scan output directory %s: %w", outputDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		registry.taken[entry.Name()] = struct{}{}
	}

	return registry, nil
}

// Claim resolves a base name to a free output filename and registers it. The
// first caller for a base gets "base.mp3"; later callers get "base_1.mp3",
// "base_2.mp3", and so on in claim order. Past maxNumericSuffixes collisions a
// short random suffix is used instead of scanning further.
func (r *Registry) Claim(base string) string {
	candidate := base + DefaultExtension
	if r.register(candidate) {
		return candidate
	}

	for counter := 1; counter <= maxNumericSuffixes; counter++ {
		candidate = fmt.Sprintf("%s_%d%s", base, counter, DefaultExtension)
		if r.register(candidate) {
			return candidate
		}
	}

	// Pathological collision count; fall back to a random suffix.
	for {
		suffix := uuid.NewString()[:uuidSuffixLength]

		candidate = fmt.Sprintf("%s_%s%s", base, suffix, DefaultExtension)
		if r.register(candidate) {
			return candidate
		}
	}
}

// register records a filename, reporting whether it was previously free.
func (r *Registry) register(name string) bool {
	_, exists := r.taken[name]
	if exists {
		return false
	}

	r.taken[name] = struct{}{}

	return true
}
