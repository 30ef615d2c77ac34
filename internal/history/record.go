// Package history stores finished diagnosis reports and reads them back.
//
// Reports are written through a prioritized chain of storage backends; the
// first backend that accepts a record ends the chain. Reads go to the first
// configured backend that answers, behind a two-tier read cache.
package history

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cvd-expert-server/internal/domain"
)

// DefaultLimit is the number of records returned when the caller gives none.
const DefaultLimit = 50

// Record is one stored diagnosis.
type Record struct {
	ID          string                  `json:"id"`
	CaseID      string                  `json:"case_id"`
	PatientName string                  `json:"patient_name"`
	Timestamp   time.Time               `json:"timestamp"`
	Report      *domain.DiagnosisReport `json:"report"`
	Input       map[string]any          `json:"input,omitempty"`
}

// NewRecord wraps a report and the payload that produced it.
func NewRecord(report *domain.DiagnosisReport, input map[string]any) Record {
	name := "Unknown"
	if s, ok := demographic(input, "name").(string); ok && strings.TrimSpace(s) != "" {
		name = strings.TrimSpace(s)
	}
	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Record{
		ID:          uuid.New().String(),
		CaseID:      report.CaseID,
		PatientName: name,
		Timestamp:   ts,
		Report:      report,
		Input:       input,
	}
}

// Filter narrows a history query. An empty filter matches everything.
type Filter struct {
	// Patient matches either the case id or the patient name.
	Patient string `json:"patient,omitempty"`
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r Record) bool {
	if f.Patient == "" {
		return true
	}
	return r.CaseID == f.Patient || r.PatientName == f.Patient
}

// Key renders the filter for cache keys.
func (f Filter) Key() string {
	return "patient=" + f.Patient
}

// Summary is the flat projection of a record used by tabular history views.
type Summary struct {
	ID                string    `json:"id"`
	CaseID            string    `json:"case_id"`
	PatientName       string    `json:"patient_name"`
	Age               *int      `json:"age,omitempty"`
	Gender            string    `json:"gender,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Diagnoses         string    `json:"diagnoses"`
	Medications       string    `json:"medications"`
	Contraindications string    `json:"contraindications"`
	RiskCategory      string    `json:"risk_category"`
	ASCVDScore        *float64  `json:"ascvd_score,omitempty"`
	Severity          string    `json:"severity"`
	RulesFired        int       `json:"rules_fired"`
	Emergency         bool      `json:"emergency"`
}

// Summary flattens the record. Names are joined with ", ".
func (r Record) Summary() Summary {
	s := Summary{
		ID:          r.ID,
		CaseID:      r.CaseID,
		PatientName: r.PatientName,
		Timestamp:   r.Timestamp,
		Age:         intValue(demographic(r.Input, "age")),
	}
	if g, ok := demographic(r.Input, "gender").(string); ok {
		if parsed, ok := domain.ParseGender(g); ok {
			s.Gender = string(parsed)
		}
	}
	if r.Report == nil {
		return s
	}

	meds := make([]string, 0, len(r.Report.Medications))
	for _, m := range r.Report.Medications {
		meds = append(meds, m.Name)
	}
	contra := make([]string, 0, len(r.Report.Contraindications))
	for _, c := range r.Report.Contraindications {
		contra = append(contra, c.Drug)
	}

	s.Diagnoses = strings.Join(r.Report.DiagnosisNames(), ", ")
	s.Medications = strings.Join(meds, ", ")
	s.Contraindications = strings.Join(contra, ", ")
	s.RiskCategory = r.Report.RiskCategory.Label
	s.ASCVDScore = r.Report.RiskCategory.Score
	s.Severity = r.Report.Severity
	s.RulesFired = r.Report.RulesFired
	s.Emergency = r.Report.Emergency
	return s
}

// Summaries projects every record.
func Summaries(records []Record) []Summary {
	out := make([]Summary, 0, len(records))
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out
}

func demographic(input map[string]any, key string) any {
	section, ok := input["demographics"].(map[string]any)
	if !ok {
		return nil
	}
	return section[key]
}

func intValue(v any) *int {
	var n int
	switch x := v.(type) {
	case float64:
		n = int(x)
	case int:
		n = x
	case int64:
		n = int(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		n = int(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		n = int(f)
	default:
		return nil
	}
	return &n
}
