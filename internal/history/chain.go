package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// Backend is one storage target of the chain.
type Backend interface {
	// Name identifies the backend in outcomes and logs.
	Name() string
	// IsConfigured reports whether enough configuration exists to try the backend.
	IsConfigured() bool
	Write(ctx context.Context, rec Record) error
	// QueryRecent returns up to limit records, newest first.
	QueryRecent(ctx context.Context, limit int, filter Filter) ([]Record, error)
}

// RecordLookup is implemented by backends that can fetch a single record.
type RecordLookup interface {
	Get(ctx context.Context, id string) (Record, error)
}

// Outcome tells where a record ended up. StoredIn is empty when every
// configured backend failed or none was configured.
type Outcome struct {
	StoredIn string   `json:"stored_in"`
	RecordID string   `json:"record_id"`
	Failed   []string `json:"failed,omitempty"`
}

// Stored reports whether any backend accepted the record.
func (o Outcome) Stored() bool {
	return o.StoredIn != ""
}

// ChainConfig tunes the chain.
type ChainConfig struct {
	WriteTimeout time.Duration
	DefaultLimit int
}

// Chain writes each record to the first backend that accepts it.
type Chain struct {
	backends     []Backend
	writeTimeout time.Duration
	defaultLimit int
	cache        ReadCache
	logger       *logrus.Logger
}

// NewChain creates a chain over backends in priority order.
func NewChain(cfg ChainConfig, logger *logrus.Logger, backends ...Backend) *Chain {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	return &Chain{
		backends:     backends,
		writeTimeout: cfg.WriteTimeout,
		defaultLimit: cfg.DefaultLimit,
		logger:       logger,
	}
}

// WithCache puts a read cache in front of QueryRecent.
func (c *Chain) WithCache(cache ReadCache) *Chain {
	c.cache = cache
	return c
}

// Backends returns the backends in priority order.
func (c *Chain) Backends() []Backend {
	return c.backends
}

// Persist stores a report with the payload that produced it.
func (c *Chain) Persist(ctx context.Context, report *domain.DiagnosisReport, input map[string]any) Outcome {
	return c.PersistRecord(ctx, NewRecord(report, input))
}

// PersistRecord tries each configured backend in order until one succeeds.
// Failures are logged and never returned.
func (c *Chain) PersistRecord(ctx context.Context, rec Record) Outcome {
	out := Outcome{RecordID: rec.ID}
	for _, b := range c.backends {
		if !b.IsConfigured() {
			c.logger.WithField("backend", b.Name()).Debug("Skipping unconfigured history backend")
			continue
		}

		err := c.attempt(ctx, b.Name(), func(ctx context.Context) error {
			return b.Write(ctx, rec)
		})
		if err != nil {
			out.Failed = append(out.Failed, b.Name())
			c.logger.WithFields(logrus.Fields{
				"backend": b.Name(),
				"case_id": rec.CaseID,
			}).WithError(err).Warn("History backend write failed")
			continue
		}

		out.StoredIn = b.Name()
		if c.cache != nil {
			c.cache.Invalidate(ctx)
		}
		c.logger.WithFields(logrus.Fields{
			"backend":   b.Name(),
			"case_id":   rec.CaseID,
			"record_id": rec.ID,
		}).Info("Diagnosis stored")
		return out
	}

	c.logger.WithFields(logrus.Fields{
		"case_id": rec.CaseID,
		"failed":  out.Failed,
	}).Error("Diagnosis not stored in any backend")
	return out
}

// QueryRecent reads from the first configured backend that answers. It
// returns an empty slice when nothing is configured or every backend fails.
func (c *Chain) QueryRecent(ctx context.Context, limit int, filter Filter) []Record {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	key := Key(limit, filter)
	var gen uint64
	if c.cache != nil {
		gen = c.cache.Generation()
		if recs, ok := c.cache.Get(ctx, key); ok {
			return recs
		}
	}

	for _, b := range c.backends {
		if !b.IsConfigured() {
			continue
		}
		var recs []Record
		err := c.attempt(ctx, b.Name(), func(ctx context.Context) error {
			var err error
			recs, err = b.QueryRecent(ctx, limit, filter)
			return err
		})
		if err != nil {
			c.logger.WithField("backend", b.Name()).WithError(err).Warn("History backend query failed")
			continue
		}
		if recs == nil {
			recs = []Record{}
		}
		if c.cache != nil {
			c.cache.Set(ctx, key, gen, recs)
		}
		return recs
	}
	return []Record{}
}

// Get returns the record with id from the first configured backend that
// holds it. The error wraps domain.ErrNotFound when none does.
func (c *Chain) Get(ctx context.Context, id string) (Record, error) {
	for _, b := range c.backends {
		lookup, ok := b.(RecordLookup)
		if !ok || !b.IsConfigured() {
			continue
		}
		var rec Record
		err := c.attempt(ctx, b.Name(), func(ctx context.Context) error {
			var err error
			rec, err = lookup.Get(ctx, id)
			return err
		})
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WithField("backend", b.Name()).WithError(err).Warn("History backend lookup failed")
		}
	}
	return Record{}, fmt.Errorf("history record %s: %w", id, domain.ErrNotFound)
}

// attempt runs op with its own deadline. A panic or an operation that
// ignores its context is reported as a failure of that backend only.
func (c *Chain) attempt(ctx context.Context, name string, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrPersistenceFailure, name, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", domain.ErrPersistenceFailure, name, ctx.Err())
	}
}
