package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gallery_style/core"
	"gallery_style/logging"
)

// HTTPTranscriber posts audio to a plain HTTP endpoint with the same
// contract as the SageMaker one. Failed requests are retried with
// exponential backoff when the failure is a network error, 429 or 5xx.
type HTTPTranscriber struct {
	url            string
	client         *http.Client
	maxAttempts    int
	baseRetryDelay time.Duration
	logger         *logging.Logger
}

type HTTPOption func(*HTTPTranscriber)

func WithMaxAttempts(n int) HTTPOption {
	return func(h *HTTPTranscriber) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

func WithBaseRetryDelay(d time.Duration) HTTPOption {
	return func(h *HTTPTranscriber) {
		h.baseRetryDelay = d
	}
}

func WithHTTPLogger(logger *logging.Logger) HTTPOption {
	return func(h *HTTPTranscriber) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHTTPTranscriber(endpointURL string, client *http.Client, opts ...HTTPOption) (*HTTPTranscriber, error) {
	if endpointURL == "" {
		return nil, fmt.Errorf("%w: STT_ENDPOINT_URL is required for the http backend", ErrMissingEndpoint)
	}
	if err := core.ValidateURL("STT_ENDPOINT_URL", endpointURL); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	h := &HTTPTranscriber{
		url:            endpointURL,
		client:         client,
		maxAttempts:    3,
		baseRetryDelay: 500 * time.Millisecond,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("http")
	return h, nil
}

func (h *HTTPTranscriber) Name() string { return "http" }

func (h *HTTPTranscriber) Transcribe(ctx context.Context, audio Audio) (*Result, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := h.baseRetryDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := h.post(ctx, audio.Data)
		if err == nil {
			return ParseResponse(body)
		}
		lastErr = err
		h.logger.Warn("transcription request failed", zap.Int("attempt", attempt), zap.Error(err))
		if !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrEndpointRequest, lastErr)
}

func (h *HTTPTranscriber) post(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &core.HTTPStatusError{
			Method:     http.MethodPost,
			URL:        h.url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(snippet(body)),
		}
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *core.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
