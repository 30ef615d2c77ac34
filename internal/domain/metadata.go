package domain

// MetadataField names one resolvable display attribute.
type MetadataField int

const (
	FieldDisplayName MetadataField = iota
	FieldSeverityOrPriority
	FieldCode
	FieldDescription
	FieldDose
	FieldFrequency
	FieldCategory
)

// MetadataFields lists every field in resolution order.
var MetadataFields = []MetadataField{
	FieldDisplayName,
	FieldSeverityOrPriority,
	FieldCode,
	FieldDescription,
	FieldDose,
	FieldFrequency,
	FieldCategory,
}

func (f MetadataField) String() string {
	switch f {
	case FieldDisplayName:
		return "display_name"
	case FieldSeverityOrPriority:
		return "severity_or_priority"
	case FieldCode:
		return "code"
	case FieldDescription:
		return "description"
	case FieldDose:
		return "dose"
	case FieldFrequency:
		return "frequency"
	case FieldCategory:
		return "category"
	}
	return "unknown"
}

// MetadataRecord is the resolved display information for one entity.
// Absent fields are nil; an empty string is never used as "absent".
type MetadataRecord struct {
	DisplayName        *string `json:"display_name,omitempty"`
	SeverityOrPriority *string `json:"severity_or_priority,omitempty"`
	Code               *string `json:"code,omitempty"`
	Description        *string `json:"description,omitempty"`
	Dose               *string `json:"dose,omitempty"`
	Frequency          *string `json:"frequency,omitempty"`
	Category           *string `json:"category,omitempty"`
}

func (m *MetadataRecord) slot(f MetadataField) **string {
	switch f {
	case FieldDisplayName:
		return &m.DisplayName
	case FieldSeverityOrPriority:
		return &m.SeverityOrPriority
	case FieldCode:
		return &m.Code
	case FieldDescription:
		return &m.Description
	case FieldDose:
		return &m.Dose
	case FieldFrequency:
		return &m.Frequency
	case FieldCategory:
		return &m.Category
	}
	return nil
}

// Get returns the value of f and whether it was resolved.
func (m MetadataRecord) Get(f MetadataField) (string, bool) {
	p := m.slot(f)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// Or returns the value of f, or def when it was not resolved.
func (m MetadataRecord) Or(f MetadataField, def string) string {
	if v, ok := m.Get(f); ok {
		return v
	}
	return def
}

// Ptr returns a copy of the value of f as a pointer, nil when unresolved.
func (m MetadataRecord) Ptr(f MetadataField) *string {
	if v, ok := m.Get(f); ok {
		return &v
	}
	return nil
}

// With returns a copy of m with f set to v.
func (m MetadataRecord) With(f MetadataField, v string) MetadataRecord {
	if p := m.slot(f); p != nil {
		*p = &v
	}
	return m
}
