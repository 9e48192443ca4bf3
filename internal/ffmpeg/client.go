package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Static errors for FFmpeg service client operations.
var (
	// ErrBaseURLRequired is returned when the service base URL is not provided.
	ErrBaseURLRequired = errors.New("ffmpeg: service base URL is required")
	// ErrRemoteJobIDRequired is returned when the remote job ID is not provided.
	ErrRemoteJobIDRequired = errors.New("ffmpeg: remote job ID is required")
	// ErrGatewayUnavailable is returned when the service cannot be reached
	// after retries are exhausted.
	ErrGatewayUnavailable = errors.New("ffmpeg: service unavailable")
	// ErrBadCredentials is returned when the service rejects the API key.
	ErrBadCredentials = errors.New("ffmpeg: missing or invalid API key")
	// ErrProtocolMismatch is returned when the service responds in an
	// unrecognized shape. Never retried: a malformed response cannot be
	// fixed by asking again.
	ErrProtocolMismatch = errors.New("ffmpeg: unrecognized response shape")
	// ErrRequestFailed is returned when the request fails with a non-retryable
	// status code.
	ErrRequestFailed = errors.New("ffmpeg: request failed")
)

// Client defines the interface for the external FFmpeg processing service.
type Client interface {
	// Submit sends a processing request and returns the normalized outcome:
	// either an immediate completion with artifacts or an asynchronous
	// acceptance with a remote job id.
	Submit(ctx context.Context, mediaURL string, opts SubmitOptions) (Outcome, error)

	// PollStatus checks a remote job and returns the normalized outcome.
	PollStatus(ctx context.Context, remoteJobID string) (Outcome, error)

	// Cancel asks the service to stop a remote job. Best effort: the result
	// reports whether the service acknowledged, and callers must not treat
	// false as a failure of their own cancellation.
	Cancel(ctx context.Context, remoteJobID string) bool

	// FetchArtifact downloads an artifact by its absolute URL.
	// The caller must close the returned reader.
	FetchArtifact(ctx context.Context, artifactURL string) (io.ReadCloser, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the X-API-Key header value for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		hc.logger = logger
	}
}

// NewClient creates a new FFmpeg service HTTP client.
// The base URL must be provided; the API key is optional.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 200 * time.Millisecond,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Submit sends a processing request to the service's /process endpoint.
func (c *HTTPClient) Submit(ctx context.Context, mediaURL string, opts SubmitOptions) (Outcome, error) {
	reqBody := submitRequest{
		MediaURL:        mediaURL,
		ExtractInfo:     true,
		TakeScreenshots: true,
		ScreenshotCount: 3,
		ConvertFormat:   "mp4",
		Options: submitOptions{
			Captions:    opts.CaptionStyle,
			Music:       opts.MusicEnabled,
			Sfx:         opts.SfxEnabled,
			MaxClips:    opts.MaxClips,
			MinDuration: opts.MinDuration,
			MaxDuration: opts.MaxDuration,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Outcome{}, fmt.Errorf("ffmpeg: marshal request: %w", err)
	}

	status, respBody, err := c.doRequestWithRetry(ctx, c.baseURL+"/process", bodyBytes)
	if err != nil {
		return Outcome{}, err
	}

	return c.normalize(status, respBody, true)
}

// PollStatus checks a remote job via the service's /info endpoint.
func (c *HTTPClient) PollStatus(ctx context.Context, remoteJobID string) (Outcome, error) {
	if remoteJobID == "" {
		return Outcome{}, ErrRemoteJobIDRequired
	}

	bodyBytes, err := json.Marshal(infoRequest{JobID: remoteJobID})
	if err != nil {
		return Outcome{}, fmt.Errorf("ffmpeg: marshal request: %w", err)
	}

	status, respBody, err := c.doRequestWithRetry(ctx, c.baseURL+"/info", bodyBytes)
	if err != nil {
		return Outcome{}, err
	}

	out, err := c.normalize(status, respBody, false)
	if err != nil {
		return Outcome{}, err
	}
	if out.Kind == OutcomeAccepted && out.RemoteJobID == "" {
		out.RemoteJobID = remoteJobID
	}
	return out, nil
}

// Cancel asks the service to stop a remote job via /cancel. Any transport or
// protocol failure is swallowed: local cancellation never depends on it.
func (c *HTTPClient) Cancel(ctx context.Context, remoteJobID string) bool {
	if remoteJobID == "" {
		return false
	}

	bodyBytes, err := json.Marshal(infoRequest{JobID: remoteJobID})
	if err != nil {
		return false
	}

	status, _, err := c.doRequest(ctx, c.baseURL+"/cancel", bodyBytes)
	if err != nil || status < 200 || status >= 300 {
		c.logger.Warn("remote cancel not acknowledged",
			slog.String("remote_job_id", remoteJobID),
			slog.Int("status", status),
		)
		return false
	}
	return true
}

// FetchArtifact downloads an artifact by URL.
func (c *HTTPClient) FetchArtifact(ctx context.Context, artifactURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: create artifact request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: artifact request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: artifact fetch returned status %d", ErrRequestFailed, resp.StatusCode)
	}
	return resp.Body, nil
}

// normalize converts a raw service response into the Outcome union.
// requireJobID distinguishes submissions (an acceptance without a job id
// cannot be polled, so it is malformed) from status polls.
func (c *HTTPClient) normalize(status int, body []byte, requireJobID bool) (Outcome, error) {
	var resp processResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("unparseable service response",
			slog.Int("status", status),
			slog.String("body", string(body)),
		)
		return Outcome{}, fmt.Errorf("%w: %s", ErrProtocolMismatch, string(body))
	}

	if isFinalCompletion(&resp) {
		return Outcome{
			Kind:      OutcomeCompleted,
			Artifacts: c.artifacts(resp.Data),
		}, nil
	}

	remoteID := resp.remoteJobID()
	remoteStatus := resp.remoteStatus()
	accepted := remoteID != "" || remoteStatus != "" || status == http.StatusAccepted
	if accepted && (!requireJobID || remoteID != "") {
		if remoteStatus == "" {
			remoteStatus = "queued"
		}
		return Outcome{
			Kind:         OutcomeAccepted,
			RemoteJobID:  remoteID,
			RemoteStatus: remoteStatus,
			RemoteStage:  resp.Stage,
			Progress:     resp.progress(),
		}, nil
	}

	// Log the full body so the mismatch can be diagnosed; it is surfaced to
	// users only as a generic processing failure.
	c.logger.Error("unexpected service response shape",
		slog.Int("status", status),
		slog.String("body", string(body)),
	)
	return Outcome{}, fmt.Errorf("%w: %s", ErrProtocolMismatch, string(body))
}

// isFinalCompletion reports whether a response means the work is finished.
// The rule, verbatim from observed service behavior: a response is final if
// it carries a non-empty artifact (a conversion URL or at least one
// screenshot) OR an explicit terminal status token, even when the HTTP code
// says 202/still-processing. The outer status code is not trustworthy.
func isFinalCompletion(r *processResponse) bool {
	if r.Data != nil {
		if r.Data.Conversion != nil && r.Data.Conversion.URL != "" {
			return true
		}
		if len(r.Data.Screenshots) > 0 {
			return true
		}
	}
	// Legacy shape: code 0 with a data envelope is a synchronous success even
	// when the envelope is empty.
	if r.Code != nil && *r.Code == 0 && r.Data != nil {
		return true
	}
	return terminalStatusTokens[r.remoteStatus()]
}

// artifacts flattens a data envelope into artifact descriptors with absolute URLs.
func (c *HTTPClient) artifacts(data *processData) []Artifact {
	if data == nil {
		return nil
	}
	var out []Artifact
	for i, s := range data.Screenshots {
		if s.URL == "" {
			continue
		}
		ts := s.Timestamp
		if ts == 0 {
			ts = float64(i * 10)
		}
		out = append(out, Artifact{
			Name:      fmt.Sprintf("Screenshot %d", i+1),
			URL:       c.absoluteURL(s.URL),
			Kind:      ArtifactScreenshot,
			Timestamp: ts,
		})
	}
	if data.Conversion != nil && data.Conversion.URL != "" {
		out = append(out, Artifact{
			Name: "Converted Video",
			URL:  c.absoluteURL(data.Conversion.URL),
			Kind: ArtifactVideo,
			Size: data.Conversion.Size,
		})
	}
	return out
}

// absoluteURL resolves artifact URLs the service reports relative to itself.
func (c *HTTPClient) absoluteURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}

// doRequestWithRetry performs a POST with exponential backoff on transient
// failures. Exhausting retries yields ErrGatewayUnavailable.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, url string, body []byte) (int, []byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, fmt.Errorf("ffmpeg: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		status, respBody, err := c.doRequest(ctx, url, body)
		if err == nil {
			return status, respBody, nil
		}

		if !isRetryable(err) {
			return 0, nil, err
		}

		lastErr = err
	}

	return 0, nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

// doRequest performs a single POST request and returns the status code and body.
func (c *HTTPClient) doRequest(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("ffmpeg: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &retryableError{err: fmt.Errorf("ffmpeg: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &retryableError{err: fmt.Errorf("ffmpeg: read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return 0, nil, &retryableError{err: fmt.Errorf("ffmpeg: server error %d: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, nil, &retryableError{err: fmt.Errorf("ffmpeg: rate limited: %s", string(respBody))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, nil, ErrBadCredentials
	case resp.StatusCode >= 400:
		return 0, nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	return resp.StatusCode, respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
