package domain

import (
	"encoding/json"
	"strings"
)

// Gender is the administrative sex recorded on a case.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender accepts the English and Indonesian spellings used by intake forms.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "l", "laki-laki", "pria":
		return GenderMale, true
	case "female", "f", "p", "perempuan", "wanita":
		return GenderFemale, true
	}
	return "", false
}

// Demographics holds identifying facts for a case.
type Demographics struct {
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Gender *Gender `json:"gender,omitempty"`
}

// Vitals holds bedside measurements.
type Vitals struct {
	SBP    *int     `json:"sbp,omitempty"`
	DBP    *int     `json:"dbp,omitempty"`
	HR     *int     `json:"hr,omitempty"`
	BMI    *float64 `json:"bmi,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Labs holds laboratory results.
type Labs struct {
	FBG           *float64 `json:"fbg,omitempty"`
	HbA1c         *float64 `json:"hba1c,omitempty"`
	LDL           *float64 `json:"ldl,omitempty"`
	HDL           *float64 `json:"hdl,omitempty"`
	TotalChol     *float64 `json:"total_chol,omitempty"`
	Triglycerides *float64 `json:"triglycerides,omitempty"`
	EF            *float64 `json:"ef,omitempty"`
	Troponin      *float64 `json:"troponin,omitempty"`
	GFR           *float64 `json:"gfr,omitempty"`
	Creatinine    *float64 `json:"creatinine,omitempty"`
	Potassium     *float64 `json:"potassium,omitempty"`
	BNP           *float64 `json:"bnp,omitempty"`
	NTproBNP      *float64 `json:"nt_probnp,omitempty"`
}

// Scores holds precomputed clinical risk scores supplied with the request.
type Scores struct {
	ASCVD       *float64 `json:"ascvd,omitempty"`
	CHA2DS2VASc *int     `json:"cha2ds2vasc,omitempty"`
	HASBLED     *int     `json:"hasbled,omitempty"`
}

// Case is the canonical fact set for one diagnosis request.
// A nil slot means the fact was not supplied; zero is a real value.
type Case struct {
	ID            string       `json:"id"`
	Demographics  Demographics `json:"demographics"`
	Vitals        Vitals       `json:"vitals"`
	Labs          Labs         `json:"labs"`
	Scores        Scores       `json:"scores"`
	Symptoms      FactSet      `json:"symptoms"`
	Comorbidities FactSet      `json:"comorbidities"`
	History       FactSet      `json:"history"`
}

// PatientName returns the demographic name or "Unknown".
func (c *Case) PatientName() string {
	if c.Demographics.Name != nil && *c.Demographics.Name != "" {
		return *c.Demographics.Name
	}
	return "Unknown"
}

// HasFact reports whether id is present in any of the case's fact sets.
func (c *Case) HasFact(id string) bool {
	return c.Symptoms.Has(id) || c.Comorbidities.Has(id) || c.History.Has(id)
}

// FactSet is an insertion-ordered set of knowledge-base fact identifiers.
type FactSet struct {
	items []string
}

// NewFactSet builds a set from ids, dropping duplicates.
func NewFactSet(ids ...string) FactSet {
	var s FactSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add appends id unless it is already present. It reports whether the set changed.
func (s *FactSet) Add(id string) bool {
	if id == "" || s.Has(id) {
		return false
	}
	s.items = append(s.items, id)
	return true
}

// Has reports membership.
func (s FactSet) Has(id string) bool {
	for _, item := range s.items {
		if item == id {
			return true
		}
	}
	return false
}

// Items returns a copy of the members in insertion order.
func (s FactSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of members.
func (s FactSet) Len() int {
	return len(s.items)
}

// MarshalJSON encodes the set as a JSON array, never null.
func (s FactSet) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes an array, collapsing duplicates.
func (s *FactSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewFactSet(ids...)
	return nil
}
