package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// Trace line tags.
const (
	TagInput            = "Input:"
	TagEngine           = "Engine:"
	TagInferred         = "Inferred:"
	TagMedication       = "Medication:"
	TagRecommendation   = "Recommendation:"
	TagContraindication = "Contraindication:"
	TagRisk             = "Risk:"
	TagSeverity         = "Severity:"
	TagError            = "Error:"
)

var relationTags = map[domain.Relation]string{
	domain.RelHasCondition:           TagInferred,
	domain.RelRequiresMedication:     TagMedication,
	domain.RelRequiresRecommendation: TagRecommendation,
	domain.RelContraindicatedFor:     TagContraindication,
	domain.RelHasRiskCategory:        TagRisk,
	domain.RelHasSeverity:            TagSeverity,
}

// firedTags mark trace lines counted as fired rules.
var firedTags = []string{TagInferred, TagMedication, TagRecommendation}

// InferenceResult is the outcome of one gateway call. Err is set when the
// engine could not run; Derived is then empty and Trace ends with an error line.
type InferenceResult struct {
	Derived domain.Derived
	Trace   []string
	Err     error
}

// InferenceGateway hands a case to the reasoning engine and keeps the reasoning trace.
type InferenceGateway struct {
	engine domain.Engine
	logger *logrus.Logger
}

// NewInferenceGateway creates a gateway over engine.
func NewInferenceGateway(engine domain.Engine, logger *logrus.Logger) *InferenceGateway {
	return &InferenceGateway{engine: engine, logger: logger}
}

// Infer never returns an error past the boundary; failures are reported in
// the result.
func (g *InferenceGateway) Infer(ctx context.Context, c *domain.Case) *InferenceResult {
	res := &InferenceResult{Derived: domain.Derived{}}
	res.Trace = inputTrace(c)

	raw, err := g.invoke(ctx, c)
	res.Trace = append(res.Trace, fmt.Sprintf("%s %s", TagEngine, g.engine.Name()))
	if err != nil {
		res.Err = err
		res.Trace = append(res.Trace, fmt.Sprintf("%s %v", TagError, err))
		g.logger.WithFields(logrus.Fields{
			"case_id": c.ID,
			"engine":  g.engine.Name(),
		}).WithError(err).Warn("Inference failed, continuing with empty derived set")
		return res
	}

	for _, rel := range domain.Relations {
		members := uniqueRefs(raw[rel])
		if len(members) == 0 {
			continue
		}
		if rel.SingleValued() {
			members = members[:1]
		}
		res.Derived[rel] = members
		for _, m := range members {
			res.Trace = append(res.Trace, fmt.Sprintf("%s %s", relationTags[rel], describeRef(m)))
		}
	}

	g.logger.WithFields(logrus.Fields{
		"case_id":     c.ID,
		"conditions":  len(res.Derived[domain.RelHasCondition]),
		"medications": len(res.Derived[domain.RelRequiresMedication]),
		"trace_lines": len(res.Trace),
	}).Debug("Inference completed")
	return res
}

// invoke calls the engine, converting a panic into ErrInferenceUnavailable.
func (g *InferenceGateway) invoke(ctx context.Context, c *domain.Case) (derived domain.Derived, err error) {
	defer func() {
		if r := recover(); r != nil {
			derived = nil
			err = fmt.Errorf("%w: engine panic: %v", domain.ErrInferenceUnavailable, r)
		}
	}()
	derived, err = g.engine.Infer(ctx, c)
	if err != nil {
		if errors.Is(err, domain.ErrInferenceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInferenceUnavailable, err)
	}
	return derived, nil
}

// uniqueRefs drops repeated entity ids, keeping the first occurrence.
func uniqueRefs(refs []domain.EntityRef) []domain.EntityRef {
	if len(refs) < 2 {
		return refs
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]domain.EntityRef, 0, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func describeRef(ref domain.EntityRef) string {
	if len(ref.Types) == 0 {
		return ref.ID
	}
	return fmt.Sprintf("%s (%s)", ref.ID, strings.Join(ref.Types, ", "))
}

// inputTrace writes one line per populated fact: demographics, numeric slots
// in slot-table order, then symptoms, comorbidities and history.
func inputTrace(c *domain.Case) []string {
	var lines []string
	if c.Demographics.Name != nil {
		lines = append(lines, fmt.Sprintf("%s Name = %s", TagInput, *c.Demographics.Name))
	}
	if c.Demographics.Gender != nil {
		lines = append(lines, fmt.Sprintf("%s Gender = %s", TagInput, *c.Demographics.Gender))
	}
	for _, slot := range domain.Slots {
		v, ok := slot.Value(c)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s %s = %s", TagInput, slot.Label, strconv.FormatFloat(v, 'f', -1, 64))
		if slot.Unit != "" {
			line += " " + slot.Unit
		}
		lines = append(lines, line)
	}
	for _, id := range c.Symptoms.Items() {
		lines = append(lines, fmt.Sprintf("%s Symptom %s", TagInput, id))
	}
	for _, id := range c.Comorbidities.Items() {
		lines = append(lines, fmt.Sprintf("%s Comorbidity %s", TagInput, id))
	}
	for _, id := range c.History.Items() {
		lines = append(lines, fmt.Sprintf("%s History %s", TagInput, id))
	}
	return lines
}

// CountFiredRules counts trace lines tagged as inference, medication or
// recommendation events.
func CountFiredRules(trace []string) int {
	n := 0
	for _, line := range trace {
		for _, tag := range firedTags {
			if strings.HasPrefix(line, tag) {
				n++
				break
			}
		}
	}
	return n
}
