package domain

// SlotKind is the value type of a numeric case slot.
type SlotKind int

const (
	SlotInt SlotKind = iota
	SlotFloat
)

// Input sections of a case submission.
const (
	SectionDemographics = "demographics"
	SectionVitals       = "vitals"
	SectionLabs         = "labs"
	SectionScores       = "scores"
	SectionSymptoms     = "symptoms"
	SectionComorbid     = "comorbid"
	SectionHistory      = "history"
)

// SlotSpec describes one numeric fact slot: where it comes from in the
// request, how it is labelled in traces and which knowledge-base property
// carries its description.
type SlotSpec struct {
	Section  string
	Key      string
	Aliases  []string
	Kind     SlotKind
	Label    string
	Unit     string
	Property string

	intField   func(*Case) **int
	floatField func(*Case) **float64
}

// Name returns the qualified slot name, e.g. "vitals.sbp".
func (s SlotSpec) Name() string {
	return s.Section + "." + s.Key
}

// Keys returns the canonical key followed by its aliases.
func (s SlotSpec) Keys() []string {
	return append([]string{s.Key}, s.Aliases...)
}

// Value returns the slot value as float64 and whether it is present.
func (s SlotSpec) Value(c *Case) (float64, bool) {
	switch s.Kind {
	case SlotInt:
		if p := *s.intField(c); p != nil {
			return float64(*p), true
		}
	case SlotFloat:
		if p := *s.floatField(c); p != nil {
			return *p, true
		}
	}
	return 0, false
}

// SetInt stores v into an integer slot.
func (s SlotSpec) SetInt(c *Case, v int) {
	*s.intField(c) = &v
}

// SetFloat stores v into a float slot.
func (s SlotSpec) SetFloat(c *Case, v float64) {
	*s.floatField(c) = &v
}

func intSlot(section, key, label, unit, property string, f func(*Case) **int, aliases ...string) SlotSpec {
	return SlotSpec{Section: section, Key: key, Aliases: aliases, Kind: SlotInt, Label: label, Unit: unit, Property: property, intField: f}
}

func floatSlot(section, key, label, unit, property string, f func(*Case) **float64, aliases ...string) SlotSpec {
	return SlotSpec{Section: section, Key: key, Aliases: aliases, Kind: SlotFloat, Label: label, Unit: unit, Property: property, floatField: f}
}

// Slots lists every numeric case slot in trace order.
var Slots = []SlotSpec{
	intSlot(SectionDemographics, "age", "Age", "years", "memilikiUsia", func(c *Case) **int { return &c.Demographics.Age }),

	intSlot(SectionVitals, "sbp", "Systolic BP", "mmHg", "memilikiTekananSistolik", func(c *Case) **int { return &c.Vitals.SBP }),
	intSlot(SectionVitals, "dbp", "Diastolic BP", "mmHg", "memilikiTekananDiastolik", func(c *Case) **int { return &c.Vitals.DBP }),
	intSlot(SectionVitals, "hr", "Heart rate", "bpm", "memilikiDenyutJantung", func(c *Case) **int { return &c.Vitals.HR }),
	floatSlot(SectionVitals, "bmi", "BMI", "kg/m²", "memilikiIMT", func(c *Case) **float64 { return &c.Vitals.BMI }),
	floatSlot(SectionVitals, "weight", "Weight", "kg", "memilikiBeratBadan", func(c *Case) **float64 { return &c.Vitals.Weight }),
	floatSlot(SectionVitals, "height", "Height", "cm", "memilikiTinggiBadan", func(c *Case) **float64 { return &c.Vitals.Height }),

	floatSlot(SectionLabs, "fbg", "Fasting glucose", "mg/dL", "memilikiGulaDarahPuasa", func(c *Case) **float64 { return &c.Labs.FBG }),
	floatSlot(SectionLabs, "hba1c", "HbA1c", "%", "memilikiHbA1c", func(c *Case) **float64 { return &c.Labs.HbA1c }),
	floatSlot(SectionLabs, "ldl", "LDL", "mg/dL", "memilikiKolesterolLDL", func(c *Case) **float64 { return &c.Labs.LDL }),
	floatSlot(SectionLabs, "hdl", "HDL", "mg/dL", "memilikiKolesterolHDL", func(c *Case) **float64 { return &c.Labs.HDL }),
	floatSlot(SectionLabs, "total_chol", "Total cholesterol", "mg/dL", "memilikiKolesterolTotal", func(c *Case) **float64 { return &c.Labs.TotalChol }, "totalChol"),
	floatSlot(SectionLabs, "triglycerides", "Triglycerides", "mg/dL", "memilikiTrigliserida", func(c *Case) **float64 { return &c.Labs.Triglycerides }),
	floatSlot(SectionLabs, "ef", "Ejection fraction", "%", "memilikiEjectionFraction", func(c *Case) **float64 { return &c.Labs.EF }),
	floatSlot(SectionLabs, "troponin", "Troponin I", "ng/mL", "memilikiTroponinI", func(c *Case) **float64 { return &c.Labs.Troponin }),
	floatSlot(SectionLabs, "gfr", "eGFR", "mL/min/1.73m²", "memilikiGFR", func(c *Case) **float64 { return &c.Labs.GFR }),
	floatSlot(SectionLabs, "creatinine", "Creatinine", "mg/dL", "memilikiKreatinin", func(c *Case) **float64 { return &c.Labs.Creatinine }),
	floatSlot(SectionLabs, "potassium", "Potassium", "mEq/L", "memilikiKalium", func(c *Case) **float64 { return &c.Labs.Potassium }),
	floatSlot(SectionLabs, "bnp", "BNP", "pg/mL", "memilikiBNP", func(c *Case) **float64 { return &c.Labs.BNP }),
	floatSlot(SectionLabs, "nt_probnp", "NT-proBNP", "pg/mL", "memilikiNTproBNP", func(c *Case) **float64 { return &c.Labs.NTproBNP }, "ntProBnp"),

	floatSlot(SectionScores, "ascvd", "ASCVD score", "%", "memilikiASCVDScore", func(c *Case) **float64 { return &c.Scores.ASCVD }),
	intSlot(SectionScores, "cha2ds2vasc", "CHA2DS2-VASc", "", "memilikiCHA2DS2VASc", func(c *Case) **int { return &c.Scores.CHA2DS2VASc }),
	intSlot(SectionScores, "hasbled", "HAS-BLED", "", "memilikiHASBLED", func(c *Case) **int { return &c.Scores.HASBLED }),
}

// SlotByName returns the spec for a qualified name ("labs.ldl") or a bare key ("ldl").
func SlotByName(name string) (SlotSpec, bool) {
	for _, s := range Slots {
		if s.Name() == name || s.Key == name {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// FactTag maps one external tag to a knowledge-base fact identifier.
type FactTag struct {
	Tag  string
	Fact string
}

// FactTable is an ordered tag lookup table.
type FactTable []FactTag

// Lookup returns the fact identifier for tag.
func (t FactTable) Lookup(tag string) (string, bool) {
	for _, e := range t {
		if e.Tag == tag {
			return e.Fact, true
		}
	}
	return "", false
}

// SymptomFacts maps symptom tags, Indonesian and English, to fact identifiers.
var SymptomFacts = FactTable{
	{"nyeri_dada", "NyeriDada_Instance"},
	{"chest_pain", "NyeriDada_Instance"},
	{"sesak_napas", "SesakNapas_Instance"},
	{"dyspnea", "SesakNapas_Instance"},
	{"edema", "EdemaPerifer_Instance"},
	{"kelelahan", "Kelelahan_Instance"},
	{"fatigue", "Kelelahan_Instance"},
	{"pusing", "Pusing_Instance"},
	{"dizziness", "Pusing_Instance"},
	{"orthopnea", "Orthopnea_Instance"},
	{"palpitasi", "Palpitasi_Instance"},
	{"palpitation", "Palpitasi_Instance"},
}

// ComorbidityFacts maps comorbidity flags to fact identifiers.
var ComorbidityFacts = FactTable{
	{"asthma", "Asma_Instance"},
	{"pregnancy", "Kehamilan_Instance"},
	{"liver_disease", "PenyakitHatiAktif_Instance"},
}

// HistoryFacts maps history flags to fact identifiers.
var HistoryFacts = FactTable{
	{"cad", "PJK_Instance"},
	{"smoking", "Merokok_Instance"},
}

// SmokingFact is the history fact that gates smoking-cessation advice.
const SmokingFact = "Merokok_Instance"
