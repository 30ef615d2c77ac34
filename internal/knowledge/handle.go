package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// EngineFactory builds the reasoning engine once the knowledge base is loaded.
type EngineFactory func(base *Base) (domain.Engine, error)

// LocalEngine returns a factory for the built-in rule reasoner.
func LocalEngine(logger *logrus.Logger) EngineFactory {
	return func(base *Base) (domain.Engine, error) {
		return NewReasoner(base, logger), nil
	}
}

// Handle is the process-wide knowledge and engine handle.
//
// The knowledge base and engine are loaded on first use. Every inference
// cycle (materialize the case, infer, optionally retain it) holds the handle
// mutex, so at most one case is inside the engine at a time.
type Handle struct {
	mu sync.Mutex

	path    string
	factory EngineFactory
	retain  int
	logger  *logrus.Logger

	base     *Base
	engine   domain.Engine
	retained []*domain.Case
}

// NewHandle creates an uninitialized handle. retain bounds how many past
// cases are kept in the fact base; zero discards each case after inference.
func NewHandle(path string, factory EngineFactory, retain int, logger *logrus.Logger) *Handle {
	return &Handle{
		path:    path,
		factory: factory,
		retain:  retain,
		logger:  logger,
	}
}

// init loads the knowledge base and engine. Callers hold h.mu.
// A failed load is not cached; the next caller retries.
func (h *Handle) init() error {
	if h.engine != nil {
		return nil
	}
	base, err := Load(h.path)
	if err != nil {
		return err
	}
	engine, err := h.factory(base)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	h.base = base
	h.engine = engine

	stats := base.Stats()
	h.logger.WithFields(logrus.Fields{
		"path":        h.path,
		"engine":      engine.Name(),
		"classes":     stats.Classes,
		"individuals": stats.Individuals,
		"rules":       stats.Rules,
	}).Info("Knowledge base loaded")
	return nil
}

// Knowledge returns the loaded knowledge base.
func (h *Handle) Knowledge() (*Base, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.init(); err != nil {
		return nil, err
	}
	return h.base, nil
}

// Load forces initialization and reports why it failed.
func (h *Handle) Load() error {
	_, err := h.Knowledge()
	return err
}

// LookupInstance implements domain.KnowledgeAccessor. Nothing is found while
// the knowledge base cannot be loaded.
func (h *Handle) LookupInstance(id string) (*domain.Entity, bool) {
	b, err := h.Knowledge()
	if err != nil {
		return nil, false
	}
	return b.LookupInstance(id)
}

// LookupClass implements domain.KnowledgeAccessor.
func (h *Handle) LookupClass(name string) (*domain.Class, bool) {
	b, err := h.Knowledge()
	if err != nil {
		return nil, false
	}
	return b.LookupClass(name)
}

// InstancesOf implements domain.KnowledgeAccessor.
func (h *Handle) InstancesOf(class string) []*domain.Entity {
	b, err := h.Knowledge()
	if err != nil {
		return nil
	}
	return b.InstancesOf(class)
}

// Property implements domain.KnowledgeIntrospector.
func (h *Handle) Property(name string) (*domain.Property, bool) {
	b, err := h.Knowledge()
	if err != nil {
		return nil, false
	}
	return b.Property(name)
}

// Name implements domain.Engine.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return "uninitialized"
	}
	return h.engine.Name()
}

// Infer implements domain.Engine with serialized access to the underlying engine.
func (h *Handle) Infer(ctx context.Context, c *domain.Case) (domain.Derived, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.init(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInferenceUnavailable, err)
	}

	derived, err := h.engine.Infer(ctx, c)
	if err != nil {
		return nil, err
	}

	if h.retain > 0 {
		h.retained = append(h.retained, c)
		if over := len(h.retained) - h.retain; over > 0 {
			h.retained = append([]*domain.Case(nil), h.retained[over:]...)
		}
	}
	return derived, nil
}

// Ready reports whether the knowledge base and engine are loaded.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine != nil
}

// Retained returns the number of cases currently kept in the fact base.
func (h *Handle) Retained() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retained)
}

// Stats implements domain.KnowledgeIntrospector; retained cases count as individuals.
func (h *Handle) Stats() (domain.KnowledgeStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.init(); err != nil {
		return domain.KnowledgeStats{}, err
	}
	s := h.base.Stats()
	s.Individuals += len(h.retained)
	return s, nil
}
