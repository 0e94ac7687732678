// Package core defines the shared interfaces and value types for the sfx-batch
// pipeline.
package core

import "context"

// Parameter ranges accepted by the sound-generation API.
const (
	MinDurationSeconds = 0.5
	MaxDurationSeconds = 22.0
	MinInfluence       = 0.0
	MaxInfluence       = 1.0
)

// Request holds the fully resolved parameters for one sound-effect generation
// call. It is built once per input row and is not modified afterwards.
type Request struct {
	// Prompt is the text describing the sound effect. Never empty; surrounding
	// double quotes from the input file have already been stripped.
	Prompt string

	// DurationSeconds is the requested length of the effect, within
	// [MinDurationSeconds, MaxDurationSeconds].
	DurationSeconds float64

	// Influence controls how literally the prompt is followed, within
	// [MinInfluence, MaxInfluence].
	Influence float64
}

// SoundGenerator is the abstraction over the external generation service.
// Implementations return raw encoded audio bytes for a resolved request, or an
// error wrapping one of the sentinel kinds declared in this package.
type SoundGenerator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// ObjectStore defines the interface for mirroring generated audio into a
// key-value blob store.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}
