package service

import (
	"strings"

	"github.com/cvd-expert-server/internal/domain"
)

// GenericContraindicationReason is used when no table entry explains a contraindication.
const GenericContraindicationReason = "Kontraindikasi berdasarkan kondisi pasien"

// ContraindicationTrigger ties a condition marker to the reason it gives.
// A marker matches a case fact or a derived condition by identifier (with or
// without the instance suffix) or by one of the condition's declared types.
type ContraindicationTrigger struct {
	Marker string
	Reason string
}

// ContraindicationRule explains contraindications for one drug class.
type ContraindicationRule struct {
	DrugClass string
	Triggers  []ContraindicationTrigger
}

// ContraindicationTable is an ordered, static explanation table.
type ContraindicationTable []ContraindicationRule

// DefaultContraindications is the built-in explanation table.
var DefaultContraindications = ContraindicationTable{
	{DrugClass: "BetaBlocker", Triggers: []ContraindicationTrigger{
		{Marker: "Asma", Reason: "Pasien memiliki Asma - Beta Blocker dapat memperburuk bronkospasme"},
	}},
	{DrugClass: "ACEInhibitor", Triggers: []ContraindicationTrigger{
		{Marker: "Kehamilan", Reason: "Pasien hamil - ACE Inhibitor teratogenik"},
	}},
	{DrugClass: "Statin", Triggers: []ContraindicationTrigger{
		{Marker: "PenyakitHatiAktif", Reason: "Pasien memiliki penyakit hati aktif"},
	}},
	{DrugClass: "Metformin", Triggers: []ContraindicationTrigger{
		{Marker: "CKD_Stage4", Reason: "eGFR < 30 - risiko asidosis laktat"},
	}},
	{DrugClass: "Spironolactone", Triggers: []ContraindicationTrigger{
		{Marker: "Hiperkalemia", Reason: "Kalium > 5.5 - risiko hiperkalemia berat"},
	}},
}

// Explain returns the reason drug is contraindicated for c. The first rule
// whose drug class occurs in the drug's id or types wins; within it the first
// trigger present in the case gives the reason, else the rule's first reason.
func (t ContraindicationTable) Explain(drug domain.EntityRef, c *domain.Case, conditions []domain.EntityRef) string {
	for _, rule := range t {
		if !refMentions(drug, rule.DrugClass) {
			continue
		}
		for _, trig := range rule.Triggers {
			if markerPresent(trig.Marker, c, conditions) {
				return trig.Reason
			}
		}
		if len(rule.Triggers) > 0 {
			return rule.Triggers[0].Reason
		}
		return GenericContraindicationReason
	}
	return GenericContraindicationReason
}

func refMentions(ref domain.EntityRef, substr string) bool {
	if strings.Contains(ref.ID, substr) {
		return true
	}
	for _, t := range ref.Types {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

func markerPresent(marker string, c *domain.Case, conditions []domain.EntityRef) bool {
	if c != nil && (c.HasFact(marker) || c.HasFact(marker+instanceSuffix)) {
		return true
	}
	for _, cond := range conditions {
		if cond.ID == marker || cond.ID == marker+instanceSuffix {
			return true
		}
		for _, t := range cond.Types {
			if t == marker {
				return true
			}
		}
	}
	return false
}
