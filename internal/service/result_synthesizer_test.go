package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/knowledge"
)

func newKnowledgeSynthesizer(t *testing.T) *ResultSynthesizer {
	t.Helper()
	base, err := knowledge.Load("")
	require.NoError(t, err)
	resolver, err := NewAnnotationResolver(base, 64)
	require.NoError(t, err)
	s := NewResultSynthesizer(base, resolver)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return s
}

func newFakeSynthesizer(t *testing.T, kb *fakeKnowledge) *ResultSynthesizer {
	t.Helper()
	resolver, err := NewAnnotationResolver(kb, 0)
	require.NoError(t, err)
	return NewResultSynthesizer(kb, resolver)
}

func ref(id string, types ...string) domain.EntityRef {
	return domain.EntityRef{ID: id, Types: types}
}

func TestResultSynthesizer_Diagnoses(t *testing.T) {
	s := newKnowledgeSynthesizer(t)
	c := &domain.Case{ID: "Patient_A"}

	t.Run("Critical diagnosis raises the emergency flag", func(t *testing.T) {
		report := s.Synthesize(c, domain.Derived{
			domain.RelHasCondition: {
				ref("KrisisHipertensi_Instance", "KrisisHipertensi"),
				ref("Obesitas_Instance", "Obesitas"),
			},
		}, nil)

		require.Len(t, report.Diagnoses, 2)
		d := report.Diagnoses[0]
		assert.Equal(t, "Krisis Hipertensi", d.Name)
		assert.Equal(t, "KrisisHipertensi", d.Class)
		assert.Equal(t, domain.SeverityCritical, d.Severity)
		assert.Equal(t, domain.SourceInferred, d.Source)
		require.NotNil(t, d.Code)
		assert.Equal(t, "I16.9", *d.Code)
		assert.True(t, report.Emergency)
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), report.Timestamp)
	})

	t.Run("No critical diagnosis keeps the flag down", func(t *testing.T) {
		report := s.Synthesize(c, domain.Derived{
			domain.RelHasCondition: {ref("HipertensiStage2_Instance", "HipertensiStage2")},
		}, nil)
		assert.False(t, report.Emergency)
		assert.Equal(t, domain.SeverityModerate, report.Diagnoses[0].Severity)
	})

	t.Run("Unresolved severity defaults to Mild", func(t *testing.T) {
		report := s.Synthesize(c, domain.Derived{
			domain.RelHasCondition: {ref("Sindrom_Baru_Instance")},
		}, nil)
		d := report.Diagnoses[0]
		assert.Equal(t, "Sindrom Baru", d.Name)
		assert.Equal(t, UnknownLabel, d.Class)
		assert.Equal(t, domain.SeverityMild, d.Severity)
		assert.Nil(t, d.Code)
		assert.False(t, report.Emergency)
	})

	t.Run("Empty derived set", func(t *testing.T) {
		report := s.Synthesize(c, domain.Derived{}, nil)
		assert.NotNil(t, report.Diagnoses)
		assert.NotNil(t, report.Medications)
		assert.NotNil(t, report.Contraindications)
		assert.Equal(t, UnknownLabel, report.RiskCategory.Label)
		assert.Equal(t, domain.SeverityMild, report.Severity)
		assert.NotEmpty(t, report.LifestyleRecommendations)
	})
}

func TestResultSynthesizer_Medications(t *testing.T) {
	s := newKnowledgeSynthesizer(t)
	report := s.Synthesize(&domain.Case{}, domain.Derived{
		domain.RelRequiresMedication: {
			ref("Furosemid_Instance", "LoopDiuretik"),
			ref("Nitrogliserin_Instance", "Nitrat"),
			ref("Obat_Baru_Instance"),
		},
	}, nil)

	require.Len(t, report.Medications, 3)
	assert.Equal(t, domain.Medication{
		Name:      "Furosemid",
		Class:     "Loop Diuretik",
		Dose:      "20-40 mg",
		Frequency: "1-2x sehari",
		Source:    domain.SourceInferred,
	}, report.Medications[0])

	assert.Equal(t, DefaultDose, report.Medications[1].Dose)
	assert.Equal(t, DefaultFrequency, report.Medications[1].Frequency)
	assert.Equal(t, "Nitrat", report.Medications[1].Class)

	assert.Equal(t, "Obat Baru", report.Medications[2].Name)
	assert.Equal(t, UnknownLabel, report.Medications[2].Class)
}

func TestResultSynthesizer_RiskAndSeverity(t *testing.T) {
	s := newKnowledgeSynthesizer(t)
	c := &domain.Case{}
	c.Scores.ASCVD = floatPtr(14.2)

	report := s.Synthesize(c, domain.Derived{
		domain.RelHasRiskCategory: {ref("RisikoSedang_Instance", "RisikoSedang")},
		domain.RelHasSeverity:     {ref("Berat_Instance", "Berat")},
	}, nil)
	assert.Equal(t, "Intermediate Risk", report.RiskCategory.Label)
	require.NotNil(t, report.RiskCategory.Score)
	assert.Equal(t, 14.2, *report.RiskCategory.Score)
	assert.Equal(t, domain.SeveritySevere, report.Severity)

	report = s.Synthesize(c, domain.Derived{
		domain.RelHasRiskCategory: {ref("RisikoAneh_Instance")},
		domain.RelHasSeverity:     {ref("Parah_Instance")},
	}, nil)
	assert.Equal(t, UnknownLabel, report.RiskCategory.Label)
	assert.Equal(t, UnknownLabel, report.Severity)

	report = s.Synthesize(c, domain.Derived{
		domain.RelHasRiskCategory: {ref("Risk_42", "RisikoTinggi")},
	}, nil)
	assert.Equal(t, "High Risk", report.RiskCategory.Label, "label found through declared type")
}

func TestContraindicationTable_Explain(t *testing.T) {
	asthmatic := &domain.Case{}
	asthmatic.Comorbidities.Add("Asma_Instance")

	tests := []struct {
		name       string
		drug       domain.EntityRef
		c          *domain.Case
		conditions []domain.EntityRef
		want       string
	}{
		{
			name: "Beta blocker with asthma",
			drug: ref("Bisoprolol_Instance", "BetaBlocker"),
			c:    asthmatic,
			want: "Pasien memiliki Asma - Beta Blocker dapat memperburuk bronkospasme",
		},
		{
			name:       "Metformin with derived CKD stage 4",
			drug:       ref("Metformin_Instance", "Metformin"),
			c:          &domain.Case{},
			conditions: []domain.EntityRef{ref("CKD_Stage4_Instance", "CKD_Stage4")},
			want:       "eGFR < 30 - risiko asidosis laktat",
		},
		{
			name:       "Spironolactone matched by condition type",
			drug:       ref("Spironolactone_Instance", "Spironolactone"),
			c:          &domain.Case{},
			conditions: []domain.EntityRef{ref("K_High", "Hiperkalemia")},
			want:       "Kalium > 5.5 - risiko hiperkalemia berat",
		},
		{
			name: "Drug class matched but trigger absent uses the entry reason",
			drug: ref("Atorvastatin_Instance", "Statin"),
			c:    &domain.Case{},
			want: "Pasien memiliki penyakit hati aktif",
		},
		{
			name: "Drug class found in the identifier",
			drug: ref("ACEInhibitor_Generic"),
			c:    &domain.Case{},
			want: "Pasien hamil - ACE Inhibitor teratogenik",
		},
		{
			name: "No table entry",
			drug: ref("Valsartan_Instance", "ARB"),
			c:    asthmatic,
			want: GenericContraindicationReason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultContraindications.Explain(tt.drug, tt.c, tt.conditions))
		})
	}
}

func TestContraindicationTable_FirstMatchingEntryWins(t *testing.T) {
	table := ContraindicationTable{
		{DrugClass: "Blocker", Triggers: []ContraindicationTrigger{{Marker: "Asma", Reason: "first"}}},
		{DrugClass: "BetaBlocker", Triggers: []ContraindicationTrigger{{Marker: "Asma", Reason: "second"}}},
	}
	assert.Equal(t, "first", table.Explain(ref("X", "BetaBlocker"), &domain.Case{}, nil))
}

func TestResultSynthesizer_Contraindications(t *testing.T) {
	s := newKnowledgeSynthesizer(t)
	c := &domain.Case{}
	c.Comorbidities.Add("Kehamilan_Instance")

	report := s.Synthesize(c, domain.Derived{
		domain.RelContraindicatedFor: {
			ref("Ramipril_Instance", "ACEInhibitor"),
			ref("Valsartan_Instance", "ARB"),
		},
	}, nil)

	assert.Equal(t, []domain.Contraindication{
		{Drug: "Ramipril", Reason: "Pasien hamil - ACE Inhibitor teratogenik", Source: domain.SourceInferred},
		{Drug: "Valsartan", Reason: GenericContraindicationReason, Source: domain.SourceInferred},
	}, report.Contraindications)
}

func TestResultSynthesizer_RulesFired(t *testing.T) {
	s := newKnowledgeSynthesizer(t)
	trace := []string{
		"Input: Systolic BP = 150 mmHg",
		"Input: LDL = 170 mg/dL",
		"Engine: local-rules",
		"Inferred: HipertensiStage2_Instance (HipertensiStage2)",
		"Medication: Ramipril_Instance (ACEInhibitor)",
		"Severity: Sedang_Instance (Sedang)",
	}
	report := s.Synthesize(&domain.Case{}, domain.Derived{}, trace)

	assert.Equal(t, 2, report.RulesFired)
	assert.NotEqual(t, len(trace), report.RulesFired)
	assert.Equal(t, trace, report.ReasoningTrace)
}
