// Package generator produces regulation summaries by calling a web-grounded
// generative model endpoint.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/munireg"
)

// Config controls the HTTP client behavior.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	// MaxRetries bounds extra attempts on transient failures.
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Client calls the summary endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

type generateRequest struct {
	Model   string `json:"model"`
	Country struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"country"`
	WebGrounding bool `json:"web_grounding"`
}

type generateResponse struct {
	Summary munireg.Summary `json:"summary"`
	Error   string          `json:"error,omitempty"`
}

// Generate requests a fresh summary for one country. Transient upstream
// failures (429, 5xx, network timeouts) are retried with jittered
// exponential backoff; any returned summary counts as success, even an
// empty one.
func (c *Client) Generate(ctx context.Context, name, code string) (munireg.Summary, error) {
	var lastErr error
	backoff := c.cfg.BackoffInitial
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(backoff)); err != nil {
				return munireg.Summary{}, err
			}
			backoff = min(backoff*2, c.cfg.BackoffMax)
		}

		summary, err := c.generateOnce(ctx, name, code)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if !isTransient(err) {
			return munireg.Summary{}, err
		}
		c.logger.Warn("transient generator failure, retrying",
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return munireg.Summary{}, fmt.Errorf("generate summary for %s: %w", code, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, name, code string) (munireg.Summary, error) {
	reqBody := generateRequest{Model: c.cfg.Model, WebGrounding: true}
	reqBody.Country.Code = code
	reqBody.Country.Name = name
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return munireg.Summary{}, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return munireg.Summary{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return munireg.Summary{}, &transientError{fmt.Errorf("call generate endpoint: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return munireg.Summary{}, &transientError{fmt.Errorf("read generate response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return munireg.Summary{}, &transientError{fmt.Errorf("generate endpoint returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return munireg.Summary{}, fmt.Errorf("generate endpoint returned %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return munireg.Summary{}, fmt.Errorf("decode generate response: %w", err)
	}
	if decoded.Error != "" {
		return munireg.Summary{}, fmt.Errorf("generate endpoint error: %s", decoded.Error)
	}
	// Missing sections come back as zero values; normalize so callers always
	// see the full shape.
	return decoded.Summary.Normalized(), nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))/2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
