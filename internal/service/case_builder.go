package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cvd-expert-server/internal/domain"
)

// CaseBuilder maps a loosely structured request payload into a canonical Case.
type CaseBuilder struct {
	suffix func() string
}

// NewCaseBuilder creates a case builder that suffixes case ids with random hex.
func NewCaseBuilder() *CaseBuilder {
	return &CaseBuilder{
		suffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
}

// Build converts raw into a Case. Unknown sections, keys and tags are ignored;
// a value that cannot be coerced fails with a ValidationError naming the slot.
func (b *CaseBuilder) Build(raw map[string]any) (*domain.Case, error) {
	c := &domain.Case{}

	sections := make(map[string]map[string]any)
	for _, name := range []string{
		domain.SectionDemographics,
		domain.SectionVitals,
		domain.SectionLabs,
		domain.SectionScores,
		domain.SectionComorbid,
		domain.SectionHistory,
	} {
		section, err := objectSection(raw, name)
		if err != nil {
			return nil, err
		}
		sections[name] = section
	}

	if err := b.buildDemographics(c, sections[domain.SectionDemographics]); err != nil {
		return nil, err
	}

	for _, slot := range domain.Slots {
		v, ok := lookupKeys(sections[slot.Section], slot.Keys())
		if !ok {
			continue
		}
		f, present, err := coerceNumber(v)
		if err != nil {
			return nil, domain.NewValidationError(slot.Name(), err.Error(), v)
		}
		if !present {
			continue
		}
		switch slot.Kind {
		case domain.SlotInt:
			if f > math.MaxInt32 || f < math.MinInt32 {
				return nil, domain.NewValidationError(slot.Name(), "out of range", v)
			}
			slot.SetInt(c, int(math.Trunc(f)))
		case domain.SlotFloat:
			slot.SetFloat(c, f)
		}
	}

	symptoms, err := tagList(raw, domain.SectionSymptoms)
	if err != nil {
		return nil, err
	}
	for _, tag := range symptoms {
		if id, ok := domain.SymptomFacts.Lookup(tag); ok {
			c.Symptoms.Add(id)
		}
	}

	addFlags(&c.Comorbidities, sections[domain.SectionComorbid], domain.ComorbidityFacts)
	addFlags(&c.History, sections[domain.SectionHistory], domain.HistoryFacts)

	c.ID = fmt.Sprintf("Patient_%s_%s", strings.ReplaceAll(c.PatientName(), " ", "_"), b.suffix())
	return c, nil
}

func (b *CaseBuilder) buildDemographics(c *domain.Case, section map[string]any) error {
	if v, ok := section["name"]; ok && v != nil {
		name, isString := v.(string)
		if !isString {
			return domain.NewValidationError("demographics.name", "must be a string", v)
		}
		if name = strings.TrimSpace(name); name != "" {
			c.Demographics.Name = &name
		}
	}

	if v, ok := section["gender"]; ok && v != nil {
		s, isString := v.(string)
		if !isString {
			return domain.NewValidationError("demographics.gender", "must be a string", v)
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		g, known := domain.ParseGender(s)
		if !known {
			return domain.NewValidationError("demographics.gender", "must be male or female", v)
		}
		c.Demographics.Gender = &g
	}
	return nil
}

// objectSection returns raw[name] as an object. A missing or null section is empty.
func objectSection(raw map[string]any, name string) (map[string]any, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return nil, nil
	}
	section, isObject := v.(map[string]any)
	if !isObject {
		return nil, domain.NewValidationError(name, "must be an object", v)
	}
	return section, nil
}

func lookupKeys(section map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := section[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// coerceNumber converts JSON numbers and numeric strings. An empty string is
// reported as absent.
func coerceNumber(v any) (float64, bool, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", n.String())
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not a number: %q", n)
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a finite number")
	}
	return f, true, nil
}

// tagList reads an ordered list of lower-cased tags. Non-string items are skipped.
func tagList(raw map[string]any, name string) ([]string, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return nil, nil
	}
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	default:
		return nil, domain.NewValidationError(name, "must be a list of tags", v)
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString {
			tags = append(tags, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	return tags, nil
}

// addFlags adds the fact for every truthy flag, in table order.
func addFlags(set *domain.FactSet, section map[string]any, table domain.FactTable) {
	for _, entry := range table {
		if truthy(section[entry.Tag]) {
			set.Add(entry.Fact)
		}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return strings.TrimSpace(t) != ""
	default:
		f, present, err := coerceNumber(v)
		return err == nil && present && f != 0
	}
}
