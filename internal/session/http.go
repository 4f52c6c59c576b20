package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/dynamiatools/wscommands/internal/command"
)

// DispatchError is a non-2xx answer from the dispatch endpoint.
type DispatchError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *DispatchError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Event is the body posted for every dispatched command.
type Event struct {
	Target string         `json:"target"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data"`
}

// HTTP is a Session that forwards command events to a server-side handler
// endpoint as JSON.
type HTTP struct {
	id         string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// HTTPOption configures an HTTP session.
type HTTPOption func(*HTTP)

// NewHTTP creates a session with the given identity posting to endpoint.
func NewHTTP(id, endpoint string, opts ...HTTPOption) *HTTP {
	s := &HTTP{
		id:       id,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTP) {
		s.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) HTTPOption {
	return func(s *HTTP) {
		s.maxRetries = max
		s.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTP) {
		s.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(s *HTTP) {
		s.httpClient = hc
	}
}

// ID returns the identity.
func (s *HTTP) ID() string { return s.id }

// Dispatch posts the command event, retrying transient failures.
func (s *HTTP) Dispatch(ctx context.Context, event string, cmd command.Command) error {
	body, err := json.Marshal(Event{
		Target: s.id,
		Event:  event,
		Data:   cmd.Fields(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return s.doWithRetry(ctx, body)
}

func (s *HTTP) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &DispatchError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return nil
}

// doWithRetry performs the request with exponential backoff retry.
func (s *HTTP) doWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	backoff := s.retryBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff
			if backoff > 0 {
				jitter = backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			}
			s.logger.Debug("retrying dispatch",
				"attempt", attempt,
				"backoff", jitter,
				"target", s.id,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		err := s.doRequest(ctx, body)
		if err == nil {
			return nil
		}

		lastErr = err

		var dispatchErr *DispatchError
		if !errors.As(err, &dispatchErr) || !dispatchErr.IsRetryable() {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
