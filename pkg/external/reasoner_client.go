package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cvd-expert-server/internal/domain"
)

// InferRequest is the body posted to a remote reasoner.
type InferRequest struct {
	Case *domain.Case `json:"case"`
}

// InferResponse is a remote reasoner's answer.
type InferResponse struct {
	Engine  string                                 `json:"engine"`
	Derived map[domain.Relation][]domain.EntityRef `json:"derived"`
	Error   string                                 `json:"error,omitempty"`
}

// ReasonerClient is a domain.Engine backed by a reasoner service reachable
// over HTTP. Requests go through a rate limiter and a circuit breaker.
type ReasonerClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger

	mu   sync.RWMutex
	name string
}

// NewReasonerClient creates a client for config.RemoteURL.
func NewReasonerClient(config domain.EngineConfig, logger *logrus.Logger) *ReasonerClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := config.RateLimit
	if limit == 0 {
		limit = 20
	}

	c := &ReasonerClient{
		baseURL: strings.TrimRight(config.RemoteURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(limit), 1),
		logger:    logger,
		name:      "remote",
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Reasoner",
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

// Name implements domain.Engine. It reports the remote engine's own name
// once one answer has been received.
func (c *ReasonerClient) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Infer implements domain.Engine.
func (c *ReasonerClient) Infer(ctx context.Context, cs *domain.Case) (domain.Derived, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: remote reasoner URL not set", domain.ErrInferenceUnavailable)
	}

	payload, err := json.Marshal(InferRequest{Case: cs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode case: %w", err)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInferenceUnavailable, err)
	}
	resp := result.(*InferResponse)

	if resp.Engine != "" {
		c.mu.Lock()
		c.name = "remote:" + resp.Engine
		c.mu.Unlock()
	}

	derived := make(domain.Derived, len(resp.Derived))
	for rel, refs := range resp.Derived {
		if !rel.Valid() {
			c.logger.WithField("relation", rel).Warn("Ignoring unknown relation from remote reasoner")
			continue
		}
		derived[rel] = refs
	}
	return derived, nil
}

func (c *ReasonerClient) post(ctx context.Context, payload []byte) (*InferResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp InferResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil && httpResp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		if resp.Error != "" {
			return nil, fmt.Errorf("reasoner returned status %d: %s", httpResp.StatusCode, resp.Error)
		}
		return nil, fmt.Errorf("reasoner returned status %d", httpResp.StatusCode)
	}
	return &resp, nil
}

// State reports the circuit breaker state.
func (c *ReasonerClient) State() gobreaker.State {
	return c.breaker.State()
}
