package core

import "errors"

// The closed set of generation failure kinds. Every error returned by a
// SoundGenerator wraps exactly one of these sentinels, or none of them when the
// failure could not be classified. Callers distinguish the kinds with errors.Is.
var (
	// ErrAuth indicates a missing or rejected API key. Fatal: the whole run
	// stops, since every remaining row would fail the same way.
	ErrAuth = errors.New("authentication rejected by generation service")

	// ErrRateLimit indicates the service throttled the request and the retry
	// budget is exhausted. Per-row: the row is counted as failed and
	// processing continues.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrParameter indicates the service rejected the request parameters.
	// Per-row.
	ErrParameter = errors.New("generation parameters rejected")

	// ErrGeneration indicates the service accepted the request but failed to
	// produce audio. Per-row.
	ErrGeneration = errors.New("sound generation failed")
)
