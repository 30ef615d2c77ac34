// Package app assembles the diagnosis pipeline and its storage from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/health"
	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/internal/knowledge"
	"github.com/cvd-expert-server/internal/repository"
	"github.com/cvd-expert-server/internal/service"
	"github.com/cvd-expert-server/pkg/external"
	"github.com/cvd-expert-server/pkg/sparql"
)

const annotationMemoSize = 512

// App holds the long-lived components shared by the HTTP and MCP front ends.
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Knowledge *knowledge.Handle
	Diagnosis *service.DiagnosisService
	Catalog   *service.KnowledgeService
	History   *history.Chain
	Health    *health.Checker
	Scores    service.ScoreCalculator

	documents *repository.DocumentStore
	sqlite    *history.SQLiteBackend
	cache     *history.Cache
	persister *history.AsyncPersister
}

// EngineFactory selects the reasoning engine for cfg.
func EngineFactory(cfg domain.EngineConfig, logger *logrus.Logger) knowledge.EngineFactory {
	if cfg.Mode != "remote" {
		return knowledge.LocalEngine(logger)
	}
	return func(*knowledge.Base) (domain.Engine, error) {
		if cfg.RemoteURL == "" {
			return nil, errors.New("remote engine selected without engine.remote_url")
		}
		return external.NewReasonerClient(cfg, logger), nil
	}
}

// New builds every component. Storage backends connect lazily, so an
// unreachable database does not prevent startup.
func New(cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	a.Knowledge = knowledge.NewHandle(cfg.Knowledge.Path, EngineFactory(cfg.Engine, logger), cfg.Engine.RetainCases, logger)
	a.Catalog = service.NewKnowledgeService(a.Knowledge)

	a.documents = repository.NewDocumentStore(cfg.Database, logger)
	sparqlClient := sparql.NewClient(sparql.Config{
		Endpoint:  cfg.SPARQL.Endpoint,
		Timeout:   cfg.SPARQL.Timeout,
		RateLimit: cfg.SPARQL.RateLimit,
	}, logger)
	triples := repository.NewTripleStore(sparqlClient, cfg.SPARQL.Namespace, logger)
	a.sqlite = history.NewSQLiteBackend(cfg.SQLite)

	cache, err := history.NewCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("creating history cache: %w", err)
	}
	a.cache = cache

	a.History = history.NewChain(history.ChainConfig{
		WriteTimeout: cfg.History.WriteTimeout,
		DefaultLimit: cfg.History.DefaultLimit,
	}, logger, a.documents, triples, a.sqlite).WithCache(cache)

	a.persister = history.NewAsyncPersister(a.History, cfg.History.QueueSize, logger)
	a.persister.OnOutcome(func(o history.Outcome) {
		if !o.Stored() {
			logger.WithField("failed", o.Failed).Error("Diagnosis could not be stored in any backend")
		}
	})

	a.Diagnosis, err = service.NewDiagnosisService(logger, a.Knowledge, a.Knowledge, a.persister, annotationMemoSize)
	if err != nil {
		return nil, err
	}

	a.Health = health.NewChecker(cfg.MCP.ServerVersion, 0, logger)
	a.registerChecks(sparqlClient)

	backends := make([]string, 0, 3)
	for _, b := range a.History.Backends() {
		if b.IsConfigured() {
			backends = append(backends, b.Name())
		}
	}
	logger.WithFields(logrus.Fields{
		"engine_mode": cfg.Engine.Mode,
		"backends":    backends,
		"redis_cache": cfg.Cache.RedisURL != "",
	}).Info("Case pipeline assembled")
	return a, nil
}

func (a *App) registerChecks(client *sparql.Client) {
	a.Health.Register(health.Check{
		Name:     "knowledge_base",
		Critical: true,
		Probe: func(context.Context) (map[string]any, error) {
			stats, err := a.Knowledge.Stats()
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"engine":      a.Knowledge.Name(),
				"classes":     stats.Classes,
				"individuals": stats.Individuals,
				"rules":       stats.Rules,
			}, nil
		},
	})
	a.Health.Register(health.Check{
		Name:    "postgres",
		Enabled: a.documents.IsConfigured,
		Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, a.documents.Ping(ctx)
		},
	})
	a.Health.Register(health.Check{
		Name:    "sparql",
		Enabled: client.Configured,
		Probe: func(ctx context.Context) (map[string]any, error) {
			_, err := client.Ask(ctx, "ASK { ?s ?p ?o }")
			return map[string]any{"endpoint": client.Endpoint(), "breaker": client.State().String()}, err
		},
	})
	a.Health.Register(health.Check{
		Name:    "sqlite",
		Enabled: a.sqlite.IsConfigured,
		Probe: func(ctx context.Context) (map[string]any, error) {
			if err := a.sqlite.Ping(ctx); err != nil {
				return nil, err
			}
			n, err := a.sqlite.Count(ctx)
			return map[string]any{"path": a.Config.SQLite.Path, "records": n}, err
		},
	})
	a.Health.Register(health.Check{
		Name: "history_cache",
		Probe: func(ctx context.Context) (map[string]any, error) {
			stats := a.cache.Stats()
			return map[string]any{
				"memory_hits": stats.MemoryHits,
				"redis_hits":  stats.RedisHits,
				"misses":      stats.Misses,
			}, a.cache.Ping(ctx)
		},
	})
}

// SQLite exposes the local store for maintenance commands.
func (a *App) SQLite() *history.SQLiteBackend {
	return a.sqlite
}

// Close drains pending writes and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.persister.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("draining history queue: %w", err))
	}
	a.documents.Close()
	if err := a.sqlite.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
