// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/termline/internal/model"
)

// Configuration constants for the completions API.
const (
	// DefaultBaseURL is the base URL of the OpenAI API.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-5"

	// DefaultConnectTimeout bounds dialing and waiting for response headers.
	// The body of a stream is bounded only by the request context.
	DefaultConnectTimeout = 30 * time.Second

	// UserAgent is sent with every request.
	UserAgent = "termline/0.1.0"

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// maxErrorBodySize caps how much of an error response is read.
	maxErrorBodySize = 64 * 1024
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage represents a single message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat completions endpoint.
// Build it with NewChatRequest and do not modify it afterwards.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// NewChatRequest builds a streaming request from a history snapshot.
func NewChatRequest(modelName string, history []model.Message) ChatRequest {
	messages := make([]ChatMessage, len(history))
	for i, msg := range history {
		messages[i] = ChatMessage{Role: msg.Role.String(), Content: msg.Content}
	}
	return ChatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   true,
	}
}

// Marshal serializes the request body. Equal requests produce identical bytes.
func (r ChatRequest) Marshal() ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client streams chat completions from an OpenAI-compatible endpoint.
// A Client is safe for concurrent use once configured.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	httpClient     *http.Client
	connectTimeout time.Duration
	maxRetries     int
	retryBase      time.Duration
	limiter        *rate.Limiter
	log            logrus.FieldLogger
}

// NewClient creates a client with the given API key and default settings.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:         strings.TrimSpace(apiKey),
		baseURL:        DefaultBaseURL,
		model:          DefaultModel,
		httpClient:     newStreamingHTTPClient(DefaultConnectTimeout),
		connectTimeout: DefaultConnectTimeout,
		retryBase:      retryBaseDelay,
		log:            discardLogger(),
	}
}

// newStreamingHTTPClient returns a client with no overall timeout; the
// stream body is controlled by the request context.
func newStreamingHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: connectTimeout,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithModel sets the model to use for chat requests.
func (c *Client) WithModel(name string) *Client {
	if name != "" {
		c.model = name
	}
	return c
}

// WithTimeout sets the connect and response-header timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.connectTimeout = timeout
	c.httpClient = newStreamingHTTPClient(timeout)
	return c
}

// WithMaxRetries sets how many times a failed connection is retried.
// Zero disables retries.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	c.maxRetries = maxRetries
	return c
}

// WithRateLimit limits requests to perMinute. Zero or less removes the limit.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// WithLogger sets the logger used for request logging.
func (c *Client) WithLogger(log logrus.FieldLogger) *Client {
	if log != nil {
		c.log = log
	}
	return c
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a secure fingerprint of the API key for logging.
// SECURITY: Uses SHA-256 hash to identify the key without exposing it.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// STREAMING
// =============================================================================

// Send starts a streaming completion and returns its events.
//
// The channel yields zero or more EventDelta values followed by exactly one
// EventEnd or EventError, then closes. If ctx is cancelled the connection
// is closed and the channel closes without a terminal event.
func (c *Client) Send(ctx context.Context, req ChatRequest) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		c.stream(ctx, req, events)
	}()

	return events
}

// stream runs one completion and reports through events.
func (c *Client) stream(ctx context.Context, req ChatRequest, events chan<- StreamEvent) {
	start := time.Now()
	entry := c.log.WithFields(logrus.Fields{
		"model":           req.Model,
		"messages":        len(req.Messages),
		"key_fingerprint": c.KeyFingerprint(),
	})
	entry.Debug("completion request started")

	fail := func(err *Error) {
		entry.WithFields(logrus.Fields{
			"kind":     err.Kind.String(),
			"status":   err.Status,
			"duration": time.Since(start),
		}).Warn("completion request failed")
		emit(ctx, events, ErrorEvent(err))
	}

	if !c.IsConfigured() {
		fail(&Error{Kind: KindAuth, Detail: ErrNotConfigured.Error(), Err: ErrNotConfigured})
		return
	}

	body, err := req.Marshal()
	if err != nil {
		fail(&Error{Kind: KindTransport, Detail: err.Error(), Err: err})
		return
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(&Error{Kind: KindTransport, Detail: "rate limit wait: " + err.Error(), Err: ErrRateLimited})
			return
		}
	}

	resp, err := c.connect(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			entry.Debug("completion request cancelled before response")
			return
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			apiErr = &Error{Kind: KindTransport, Detail: err.Error(), Err: err}
		}
		fail(apiErr)
		return
	}
	defer resp.Body.Close()

	entry.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"first_byte": time.Since(start),
	}).Debug("completion stream opened")

	deltas, sErr := c.processStream(ctx, resp.Body, events)
	switch {
	case sErr != nil:
		fail(sErr)
	case ctx.Err() != nil:
		entry.WithField("deltas", deltas).Info("completion request cancelled")
	default:
		entry.WithFields(logrus.Fields{
			"deltas":   deltas,
			"duration": time.Since(start),
		}).Info("completion request finished")
	}
}

// processStream reads frames until a terminal condition. It emits deltas and
// the End event itself, and returns the error to report, if any. A nil
// error with a done context means the stream was cancelled.
func (c *Client) processStream(ctx context.Context, body io.Reader, events chan<- StreamEvent) (int, *Error) {
	reader := NewSSEReader(body)
	deltas := 0
	sawFinish := false

	for {
		if ctx.Err() != nil {
			return deltas, nil
		}

		data, err := reader.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return deltas, nil
			}
			switch {
			case errors.Is(err, io.EOF):
				if sawFinish {
					emit(ctx, events, EndEvent())
					return deltas, nil
				}
				return deltas, &Error{Kind: KindTransport, Detail: ErrIncompleteStream.Error(), Err: ErrIncompleteStream}
			case errors.Is(err, ErrFrameTooLarge):
				return deltas, &Error{
					Kind:   KindProtocol,
					Detail: fmt.Sprintf("frame exceeds %d bytes", MaxFrameSize),
					Err:    err,
				}
			default:
				return deltas, &Error{Kind: KindTransport, Detail: "read stream: " + err.Error(), Err: err}
			}
		}

		if string(data) == doneSentinel {
			emit(ctx, events, EndEvent())
			return deltas, nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return deltas, &Error{Kind: KindProtocol, Detail: string(data), Err: err}
		}

		if msg, ok := chunk.ErrorMessage(); ok {
			return deltas, &Error{Kind: KindTransport, Detail: msg}
		}

		if text := chunk.GetContent(); text != "" {
			if !emit(ctx, events, DeltaEvent(text)) {
				return deltas, nil
			}
			deltas++
		}

		if chunk.GetFinishReason() != "" {
			sawFinish = true
		}
	}
}

// emit delivers ev unless ctx is done. It returns false if the event was
// not delivered.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// =============================================================================
// CONNECTION AND RETRY
// =============================================================================

// connect opens the stream, retrying connection failures, 429 and 5xx
// responses up to maxRetries times. Retries never happen once a response
// body has been handed to the caller.
func (c *Client) connect(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			c.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"error":   lastErr,
			}).Info("retrying completion request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doStreamRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// doStreamRequest performs a single POST and checks the response status.
func (c *Client) doStreamRequest(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.baseURL + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Detail: "failed to create request: " + err.Error(), Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)

	// SECURITY: Clear Authorization header immediately after request to prevent logging
	req.Header.Del("Authorization")

	if err != nil {
		return nil, &Error{Kind: KindTransport, Detail: "request failed: " + err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, handleErrorResponse(resp.StatusCode, errBody)
	}

	return resp, nil
}

// setHeaders sets the required headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", UserAgent)
}

// handleErrorResponse converts an HTTP error response to an *Error.
func handleErrorResponse(statusCode int, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindAuth, Detail: message, Status: statusCode, Err: ErrAuthFailed}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindTransport, Detail: message, Status: statusCode, Err: ErrRateLimited}
	default:
		return &Error{Kind: KindTransport, Detail: message, Status: statusCode}
	}
}

// isRetryable determines if a connection error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Kind != KindTransport:
		return false
	case apiErr.Status == http.StatusTooManyRequests:
		return true
	case apiErr.Status >= 500 && apiErr.Status < 600:
		return true
	case apiErr.Status == 0:
		// Network failure before any response.
		return true
	}
	return false
}

// calculateBackoff returns the delay to wait before the next retry.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, etc.
	delay := c.retryBase * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
