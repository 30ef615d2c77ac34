package service

import (
	"github.com/cvd-expert-server/internal/domain"
)

// DefaultDescription is returned for fields the knowledge base does not document.
const DefaultDescription = "Tidak ada deskripsi"

// FieldDescription is the label and help text of one input field.
type FieldDescription struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// textFields are the non-numeric input fields with their properties and labels.
var textFields = []struct {
	Key, Property, Label string
}{
	{"name", "memilikiNama", "Name"},
	{"gender", "memilikiJenisKelamin", "Gender"},
}

// KnowledgeService answers introspection queries over the knowledge base.
type KnowledgeService struct {
	kb domain.KnowledgeIntrospector
}

// NewKnowledgeService creates a knowledge introspection service.
func NewKnowledgeService(kb domain.KnowledgeIntrospector) *KnowledgeService {
	return &KnowledgeService{kb: kb}
}

// Stats returns knowledge-base element counts.
func (k *KnowledgeService) Stats() (domain.KnowledgeStats, error) {
	return k.kb.Stats()
}

// Descriptions returns label and description for every input field, keyed by
// the field's request key.
func (k *KnowledgeService) Descriptions() map[string]FieldDescription {
	out := make(map[string]FieldDescription, len(textFields)+len(domain.Slots))
	for _, f := range textFields {
		out[f.Key] = k.describe(f.Property, f.Label)
	}
	for _, slot := range domain.Slots {
		out[slot.Key] = k.describe(slot.Property, slot.Label)
	}
	return out
}

func (k *KnowledgeService) describe(property, fallbackLabel string) FieldDescription {
	d := FieldDescription{Label: fallbackLabel, Description: DefaultDescription}
	p, ok := k.kb.Property(property)
	if !ok {
		return d
	}
	if p.Label != "" {
		d.Label = p.Label
	}
	if p.Comment != "" {
		d.Description = p.Comment
	}
	return d
}
