// Package sparql is a small SPARQL 1.1 protocol client for Fuseki-style
// endpoints exposing /query and /update.
package sparql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by a client without an endpoint.
var ErrNotConfigured = errors.New("sparql endpoint not configured")

// Config configures a Client.
type Config struct {
	Endpoint  string        `json:"endpoint"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
}

// Client sends queries and updates through a rate limiter and a circuit breaker.
type Client struct {
	endpoint   string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewClient creates a client. The endpoint is the dataset URL without the
// /query or /update suffix.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	c := &Client{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SPARQL",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Endpoint returns the dataset URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Update runs a SPARQL update.
func (c *Client) Update(ctx context.Context, update string) error {
	_, err := c.do(ctx, "/update", "application/sparql-update", strings.NewReader(update), "")
	return err
}

// Query runs a SELECT query and decodes the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	form := url.Values{"query": {query}}
	body, err := c.do(ctx, "/query", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), "application/sparql-results+json")
	if err != nil {
		return nil, err
	}

	var results Results
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to decode SPARQL results: %w", err)
	}
	return &results, nil
}

// Ask runs an ASK query.
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	results, err := c.Query(ctx, query)
	if err != nil {
		return false, err
	}
	return results.Boolean != nil && *results.Boolean, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, payload io.Reader, accept string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// StatusError is a non-2xx endpoint response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("SPARQL endpoint returned status %d", e.Code)
	}
	return fmt.Sprintf("SPARQL endpoint returned status %d: %s", e.Code, e.Body)
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
