package domain

import "time"

// Severity tiers of a diagnosis, lowest first.
const (
	SeverityMild     = "Mild"
	SeverityModerate = "Moderate"
	SeveritySevere   = "Severe"
	SeverityCritical = "Critical"
)

// SourceInferred marks findings derived by the reasoning engine.
const (
	SourceInferred = "inferred"
	SourceStatic   = "static"
)

// RecommendationSource tells which strategy produced the lifestyle recommendations.
type RecommendationSource string

const (
	RecommendationsDerived RecommendationSource = "derived"
	RecommendationsStatic  RecommendationSource = "static"
)

// Diagnosis is one derived condition.
type Diagnosis struct {
	Name        string  `json:"name"`
	Class       string  `json:"class"`
	Severity    string  `json:"severity"`
	Source      string  `json:"source"`
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Medication is one derived therapy.
type Medication struct {
	Name        string  `json:"name"`
	Class       string  `json:"class"`
	Dose        string  `json:"dose"`
	Frequency   string  `json:"frequency"`
	Source      string  `json:"source"`
	Description *string `json:"description,omitempty"`
}

// Contraindication is a drug the case must avoid, with the reason.
type Contraindication struct {
	Drug   string `json:"drug"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// RiskCategory is the cardiovascular risk band and the supplied ASCVD score.
type RiskCategory struct {
	Label string   `json:"label"`
	Score *float64 `json:"score,omitempty"`
}

// Recommendation is one lifestyle recommendation.
type Recommendation struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Priority    int     `json:"priority"`
	Source      string  `json:"source"`
	Description *string `json:"description,omitempty"`
}

// DiagnosisReport is the canonical result of one diagnosis request.
// It is immutable once returned.
type DiagnosisReport struct {
	CaseID                   string               `json:"case_id"`
	Timestamp                time.Time            `json:"timestamp"`
	Emergency                bool                 `json:"emergency"`
	Diagnoses                []Diagnosis          `json:"diagnoses"`
	Medications              []Medication         `json:"medications"`
	Contraindications        []Contraindication   `json:"contraindications"`
	RiskCategory             RiskCategory         `json:"risk_category"`
	Severity                 string               `json:"severity"`
	LifestyleRecommendations []Recommendation     `json:"lifestyle_recommendations"`
	RecommendationSource     RecommendationSource `json:"recommendation_source"`
	ReasoningTrace           []string             `json:"reasoning_trace"`
	RulesFired               int                  `json:"rules_fired"`
	InferenceError           string               `json:"inference_error,omitempty"`
}

// DiagnosisNames returns the diagnosis display names in report order.
func (r *DiagnosisReport) DiagnosisNames() []string {
	names := make([]string, 0, len(r.Diagnoses))
	for _, d := range r.Diagnoses {
		names = append(names, d.Name)
	}
	return names
}
