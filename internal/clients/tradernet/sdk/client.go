// Package sdk provides a read-only Tradernet API client.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL   = "https://freedom24.com"
	rateLimitDelay   = 1500 * time.Millisecond // Between consecutive requests
	requestQueueSize = 16
)

// ErrClosed is returned for requests made after Close
var ErrClosed = errors.New("tradernet client is closed")

// ErrQueueFull is returned when the request queue cannot take another job
var ErrQueueFull = errors.New("tradernet request queue is full")

// ErrInvalidKeypair is returned when the public or private key is missing
var ErrInvalidKeypair = errors.New("tradernet keypair is not valid")

// APIError is a non-200 answer from the API
type APIError struct {
	StatusCode int
	Status     string
	Cmd        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradernet %s returned status %d: %s", e.Cmd, e.StatusCode, e.Status)
}

// requestJob is a job in the rate limiting queue
type requestJob struct {
	ctx      context.Context
	cmd      string
	params   interface{}
	resultCh chan requestResult
}

type requestResult struct {
	data map[string]interface{}
	err  error
}

// Client is the Tradernet API client.
// Requests are serialized through a worker that spaces them by the rate limit delay.
type Client struct {
	publicKey    string
	privateKey   string
	baseURL      string
	delay        time.Duration
	httpClient   *http.Client
	log          zerolog.Logger
	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL overrides the API host
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimitDelay overrides the spacing between requests
func WithRateLimitDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithTimeout overrides the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a new Tradernet client and starts its worker
func NewClient(publicKey, privateKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		publicKey:    publicKey,
		privateKey:   privateKey,
		baseURL:      defaultBaseURL,
		delay:        rateLimitDelay,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          log.With().Str("component", "tradernet-sdk").Logger(),
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.worker()

	return c
}

// authorizedRequest queues a signed request and waits for its result or ctx
func (c *Client) authorizedRequest(ctx context.Context, cmd string, params interface{}) (map[string]interface{}, error) {
	resultCh := make(chan requestResult, 1)
	job := requestJob{ctx: ctx, cmd: cmd, params: params, resultCh: resultCh}

	select {
	case <-c.stopChan:
		return nil, ErrClosed
	default:
	}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return nil, ErrClosed
	default:
		return nil, ErrQueueFull
	}

	select {
	case result := <-resultCh:
		return result.data, result.err
	case <-c.workerDone:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker processes requests from the queue sequentially with rate limiting
func (c *Client) worker() {
	defer close(c.workerDone)

	var lastRequestTime time.Time
	firstRequest := true

	processJob := func(job requestJob) {
		if job.ctx.Err() != nil {
			job.resultCh <- requestResult{err: job.ctx.Err()}
			return
		}
		if !firstRequest {
			if wait := c.delay - time.Since(lastRequestTime); wait > 0 {
				select {
				case <-time.After(wait):
				case <-job.ctx.Done():
					job.resultCh <- requestResult{err: job.ctx.Err()}
					return
				}
			}
		}
		firstRequest = false

		data, err := c.do(job.ctx, job.cmd, job.params)
		lastRequestTime = time.Now()
		job.resultCh <- requestResult{data: data, err: err}
	}

	for {
		select {
		case <-c.stopChan:
			return
		case job := <-c.requestQueue:
			processJob(job)
		}
	}
}

// Close stops the worker. Queued requests still waiting are abandoned.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

// do signs and sends one request
func (c *Client) do(ctx context.Context, cmd string, params interface{}) (map[string]interface{}, error) {
	if c.publicKey == "" || c.privateKey == "" {
		return nil, ErrInvalidKeypair
	}

	payload, err := stringify(params)
	if err != nil {
		return nil, fmt.Errorf("failed to stringify params: %w", err)
	}

	// Timestamp in seconds; the signature covers payload followed by timestamp
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := sign(c.privateKey, payload+timestamp)

	requestURL := fmt.Sprintf("%s/api/%s", c.baseURL, cmd)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader([]byte(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TradernetSDK/2.0)")
	req.Header.Set("X-NtApi-PublicKey", c.publicKey)
	req.Header.Set("X-NtApi-Timestamp", timestamp)
	req.Header.Set("X-NtApi-Sig", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", truncate(string(body), 500)).
			Str("cmd", cmd).
			Msg("API returned non-200 status")
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Cmd: cmd}
	}

	var rawResult interface{}
	if err := json.Unmarshal(body, &rawResult); err != nil {
		return nil, &DecodeError{Cmd: cmd, Err: err}
	}

	result, ok := rawResult.(map[string]interface{})
	if !ok {
		result = map[string]interface{}{"result": rawResult}
	}

	if errMsg, ok := result["errMsg"].(string); ok && errMsg != "" {
		return nil, &ResponseError{Cmd: cmd, Message: errMsg, Code: errorCode(result)}
	}

	return result, nil
}

// DecodeError is returned when the body is not JSON
type DecodeError struct {
	Cmd string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tradernet %s: failed to parse response: %v", e.Cmd, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResponseError is an errMsg carried in a 200 response
type ResponseError struct {
	Cmd     string
	Message string
	Code    int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("tradernet %s: %s (code %d)", e.Cmd, e.Message, e.Code)
}

func errorCode(result map[string]interface{}) int {
	switch v := result["code"].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
