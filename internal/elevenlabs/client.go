// Package elevenlabs implements the sound-generation collaborator against the
// ElevenLabs HTTP API.
//
// The client owns retry and backoff for throttled requests and maps every
// failure onto the closed set of error kinds in the core package, so callers
// never inspect HTTP details.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/sfx-batch/internal/core"
)

// API endpoint and headers.
const (
	apiSoundGeneration = "/v1/sound-generation"
	headerAPIKey       = "xi-api-key"
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	headerRetryAfter   = "Retry-After"
	contentTypeJSON    = "application/json"
	contentTypeMPEG    = "audio/mpeg"
	audioContentPrefix = "audio/"
)

// Backoff bounds for throttled requests.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Log formats.
const (
	logFmtRateLimited = "Rate limited by generation service, retrying in %s (attempt %d/%d)"
)

// generationRequest is the JSON payload of a sound-generation call.
type generationRequest struct {
	// Text is the prompt describing the sound effect.
	Text string `json:"text"`

	// DurationSeconds is the requested effect length.
	DurationSeconds float64 `json:"duration_seconds"`

	// PromptInfluence controls how literally the prompt is followed.
	PromptInfluence float64 `json:"prompt_influence"`
}

// errorResponse is the structured error body returned by the service.
type errorResponse struct {
	Detail errorDetail `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client calls the ElevenLabs sound-generation endpoint. It retries throttled
// requests up to the configured budget with exponential backoff, honoring a
// Retry-After header when the service sends one.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	log        *logger.Logger
}

// New creates a configured sound-generation client. The baseURL should include
// the protocol (e.g. "https://api.elevenlabs.io"); maxRetries counts the
// additional attempts made after a throttled first try.
func New(
	baseURL, apiKey string,
	maxRetries int,
	timeout time.Duration,
	log *logger.Logger,
) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Generate requests one sound effect and returns the raw MP3 bytes. The error,
// when non-nil, wraps core.ErrAuth, core.ErrRateLimit, core.ErrParameter, or
// core.ErrGeneration; transport failures are returned unclassified.
func (c *Client) Generate(ctx context.Context, req core.Request) ([]byte, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", core.ErrParameter)
	}

	requestBody, err := json.Marshal(generationRequest{
		Text:            req.Prompt,
		DurationSeconds: req.DurationSeconds,
		PromptInfluence: req.Influence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		audioData, retryAfter, requestErr := c.doRequest(ctx, requestBody)
		if requestErr == nil {
			return audioData, nil
		}

		if !errors.Is(requestErr, core.ErrRateLimit) || attempt >= c.maxRetries {
			return nil, requestErr
		}

		delay := backoffDelay(attempt, retryAfter)
		c.log.Warn(logFmtRateLimited, delay, attempt+1, c.maxRetries)

		waitErr := wait(ctx, delay)
		if waitErr != nil {
			return nil, waitErr
		}
	}
}

// doRequest performs a single HTTP attempt. For throttled responses it also
// returns the server-suggested retry delay, zero when absent.
func (c *Client) doRequest(
	ctx context.Context,
	requestBody []byte,
) ([]byte, time.Duration, error) {
	url := c.baseURL + apiSoundGeneration

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerAPIKey, c.apiKey)
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf(
			"failed to reach generation service at %s: %w", c.baseURL, err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseRetryAfter(resp), c.classifyFailure(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, audioContentPrefix) {
		return nil, 0, fmt.Errorf(
			"%w: unexpected content type %q", core.ErrGeneration, contentType,
		)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, 0, fmt.Errorf("%w: received empty audio data", core.ErrGeneration)
	}

	return audioData, 0, nil
}

// classifyFailure maps a non-OK response onto the core error kinds, preserving
// the service's diagnostic detail.
func (c *Client) classifyFailure(resp *http.Response) error {
	detail := readErrorDetail(resp)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", core.ErrAuth, detail, resp.Status)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", core.ErrRateLimit, detail, resp.Status)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s (%s)", core.ErrParameter, detail, resp.Status)
	default:
		return fmt.Errorf("%w: %s (%s)", core.ErrGeneration, detail, resp.Status)
	}
}

// readErrorDetail extracts the structured error message, falling back to the
// raw body so diagnostics are never lost.
func readErrorDetail(resp *http.Response) string {
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return "no error detail"
	}

	var structured errorResponse

	err = json.Unmarshal(body, &structured)
	if err == nil && structured.Detail.Message != "" {
		return structured.Detail.Message
	}

	return string(body)
}

// parseRetryAfter reads the Retry-After header as a whole number of seconds.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get(headerRetryAfter)
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// backoffDelay returns the pause before the next attempt: the server-suggested
// delay when present, otherwise an exponential delay capped at maxBackoff.
func backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	delay := initialBackoff << attempt
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}

	return delay
}

// wait blocks for the given delay or until the context is cancelled.
func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting to retry: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
