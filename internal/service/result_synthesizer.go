package service

import (
	"strings"
	"time"

	"github.com/cvd-expert-server/internal/domain"
)

// Fallback values for unresolved metadata.
const (
	UnknownLabel         = "Unknown"
	DefaultDose          = "As prescribed"
	DefaultFrequency     = "As directed"
	DefaultCaseSeverity  = domain.SeverityMild
	DefaultDiagnosisTier = domain.SeverityMild
)

// severityLabels maps knowledge-base severity names to report tiers.
var severityLabels = map[string]string{
	"Ringan":   domain.SeverityMild,
	"Sedang":   domain.SeverityModerate,
	"Berat":    domain.SeveritySevere,
	"Kritis":   domain.SeverityCritical,
	"Mild":     domain.SeverityMild,
	"Moderate": domain.SeverityModerate,
	"Severe":   domain.SeveritySevere,
	"Critical": domain.SeverityCritical,
}

// riskLabels maps knowledge-base risk categories to display labels.
var riskLabels = map[string]string{
	"RisikoRendah":       "Low Risk",
	"RisikoBorderline":   "Borderline Risk",
	"RisikoSedang":       "Intermediate Risk",
	"RisikoTinggi":       "High Risk",
	"RisikoSangatTinggi": "Very High Risk",
}

// ResultSynthesizer builds the diagnosis report from derived entities.
type ResultSynthesizer struct {
	kb                domain.KnowledgeAccessor
	resolver          *AnnotationResolver
	contraindications ContraindicationTable
	now               func() time.Time
}

// NewResultSynthesizer creates a synthesizer with the default contraindication table.
func NewResultSynthesizer(kb domain.KnowledgeAccessor, resolver *AnnotationResolver) *ResultSynthesizer {
	return &ResultSynthesizer{
		kb:                kb,
		resolver:          resolver,
		contraindications: DefaultContraindications,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Synthesize assembles the report. It never fails; missing metadata falls
// back to defaults.
func (s *ResultSynthesizer) Synthesize(c *domain.Case, derived domain.Derived, trace []string) *domain.DiagnosisReport {
	report := &domain.DiagnosisReport{
		CaseID:            c.ID,
		Timestamp:         s.now(),
		Diagnoses:         []domain.Diagnosis{},
		Medications:       []domain.Medication{},
		Contraindications: []domain.Contraindication{},
	}

	for _, ref := range derived[domain.RelHasCondition] {
		d := s.diagnosis(ref)
		if d.Severity == domain.SeverityCritical {
			report.Emergency = true
		}
		report.Diagnoses = append(report.Diagnoses, d)
	}

	for _, ref := range derived[domain.RelRequiresMedication] {
		report.Medications = append(report.Medications, s.medication(ref))
	}

	conditions := derived[domain.RelHasCondition]
	for _, ref := range derived[domain.RelContraindicatedFor] {
		report.Contraindications = append(report.Contraindications, domain.Contraindication{
			Drug:   s.resolver.Resolve(ref).Or(domain.FieldDisplayName, ref.ID),
			Reason: s.contraindications.Explain(ref, c, conditions),
			Source: domain.SourceInferred,
		})
	}

	report.RiskCategory = domain.RiskCategory{Label: UnknownLabel, Score: c.Scores.ASCVD}
	if refs := derived[domain.RelHasRiskCategory]; len(refs) > 0 {
		report.RiskCategory.Label = lookupLabel(refs[0], riskLabels)
	}

	report.Severity = DefaultCaseSeverity
	if refs := derived[domain.RelHasSeverity]; len(refs) > 0 {
		report.Severity = lookupLabel(refs[0], severityLabels)
	}

	strategy := SelectRecommendations(derived[domain.RelRequiresRecommendation], report.DiagnosisNames(), c, s.kb, s.resolver)
	report.LifestyleRecommendations = strategy.Recommend()
	report.RecommendationSource = strategy.Source()

	report.ReasoningTrace = append([]string{}, trace...)
	report.RulesFired = CountFiredRules(report.ReasoningTrace)
	return report
}

func (s *ResultSynthesizer) diagnosis(ref domain.EntityRef) domain.Diagnosis {
	rec := s.resolver.Resolve(ref)
	severity := DefaultDiagnosisTier
	if v, ok := rec.Get(domain.FieldSeverityOrPriority); ok {
		severity = normalizeSeverity(v)
	}
	return domain.Diagnosis{
		Name:        rec.Or(domain.FieldDisplayName, ref.ID),
		Class:       primaryType(ref),
		Severity:    severity,
		Source:      domain.SourceInferred,
		Code:        rec.Ptr(domain.FieldCode),
		Description: rec.Ptr(domain.FieldDescription),
	}
}

func (s *ResultSynthesizer) medication(ref domain.EntityRef) domain.Medication {
	rec := s.resolver.Resolve(ref)
	return domain.Medication{
		Name:        rec.Or(domain.FieldDisplayName, ref.ID),
		Class:       rec.Or(domain.FieldCategory, UnknownLabel),
		Dose:        rec.Or(domain.FieldDose, DefaultDose),
		Frequency:   rec.Or(domain.FieldFrequency, DefaultFrequency),
		Source:      domain.SourceInferred,
		Description: rec.Ptr(domain.FieldDescription),
	}
}

// normalizeSeverity maps a known severity name onto a report tier and keeps
// any other value verbatim.
func normalizeSeverity(v string) string {
	if tier, ok := severityLabels[strings.TrimSpace(v)]; ok {
		return tier
	}
	return v
}

// lookupLabel maps the entity's stripped identifier, then its types, through
// table. Unmapped entities are Unknown.
func lookupLabel(ref domain.EntityRef, table map[string]string) string {
	if label, ok := table[strings.TrimSuffix(ref.ID, instanceSuffix)]; ok {
		return label
	}
	for _, t := range ref.Types {
		if label, ok := table[t]; ok {
			return label
		}
	}
	return UnknownLabel
}

func primaryType(ref domain.EntityRef) string {
	if len(ref.Types) > 0 {
		return ref.Types[0]
	}
	return UnknownLabel
}
