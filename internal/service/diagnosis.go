package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// KnowledgeSource is a knowledge accessor that can report a failed load.
type KnowledgeSource interface {
	domain.KnowledgeAccessor
	Load() error
}

// ReportPersister stores finished reports without blocking the caller.
// Submit returns an error when the report was dropped.
type ReportPersister interface {
	Submit(report *domain.DiagnosisReport, input map[string]any) error
}

// DiagnosisService runs the case pipeline: build, infer, synthesize, persist.
type DiagnosisService struct {
	logger      *logrus.Logger
	knowledge   KnowledgeSource
	builder     *CaseBuilder
	gateway     *InferenceGateway
	synthesizer *ResultSynthesizer
	persister   ReportPersister
}

// NewDiagnosisService wires the pipeline. persister may be nil, in which case
// reports are not stored.
func NewDiagnosisService(
	logger *logrus.Logger,
	knowledge KnowledgeSource,
	engine domain.Engine,
	persister ReportPersister,
	memoSize int,
) (*DiagnosisService, error) {
	resolver, err := NewAnnotationResolver(knowledge, memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating annotation resolver: %w", err)
	}
	return &DiagnosisService{
		logger:      logger,
		knowledge:   knowledge,
		builder:     NewCaseBuilder(),
		gateway:     NewInferenceGateway(engine, logger),
		synthesizer: NewResultSynthesizer(knowledge, resolver),
		persister:   persister,
	}, nil
}

// Diagnose turns a request payload into a diagnosis report.
//
// Only invalid input and an unloadable knowledge base abort the request. An
// engine failure still yields a report, with no derived findings and
// InferenceError set. Persistence is handed off and never delays the result.
func (s *DiagnosisService) Diagnose(ctx context.Context, raw map[string]any) (*domain.DiagnosisReport, error) {
	startTime := time.Now()

	// Step 1: Build the canonical case
	c, err := s.builder.Build(raw)
	if err != nil {
		return nil, err
	}

	// Step 2: The knowledge base backs metadata resolution for every step below
	if err := s.knowledge.Load(); err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"case_id":  c.ID,
		"symptoms": c.Symptoms.Len(),
	}).Info("Starting diagnosis")

	// Step 3: Inference
	res := s.gateway.Infer(ctx, c)

	// Step 4: Synthesis
	report := s.synthesizer.Synthesize(c, res.Derived, res.Trace)
	if res.Err != nil {
		report.InferenceError = res.Err.Error()
	}

	// Step 5: Persistence, fire and continue
	if s.persister != nil {
		if err := s.persister.Submit(report, raw); err != nil {
			s.logger.WithField("case_id", report.CaseID).WithError(err).Warn("Report not persisted")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"case_id":         report.CaseID,
		"diagnoses":       len(report.Diagnoses),
		"medications":     len(report.Medications),
		"emergency":       report.Emergency,
		"rules_fired":     report.RulesFired,
		"recommendations": report.RecommendationSource,
		"processing_time": time.Since(startTime),
	}).Info("Diagnosis completed")

	return report, nil
}
