package knowledge

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvd-expert-server/internal/domain"
)

func intp(v int) *int                        { return &v }
func floatp(v float64) *float64              { return &v }
func genderp(g domain.Gender) *domain.Gender { return &g }

func newTestReasoner(t *testing.T) *Reasoner {
	t.Helper()
	b, err := Load("")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewReasoner(b, logger)
}

func ids(refs []domain.EntityRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func TestReasoner_Infer(t *testing.T) {
	r := newTestReasoner(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		build func(c *domain.Case)
		check func(t *testing.T, d domain.Derived)
	}{
		{
			name:  "Empty case derives nothing",
			build: func(c *domain.Case) {},
			check: func(t *testing.T, d domain.Derived) {
				assert.Empty(t, d)
			},
		},
		{
			name: "Hypertensive crisis suppresses lower stages",
			build: func(c *domain.Case) {
				c.Vitals.SBP = intp(185)
				c.Vitals.DBP = intp(110)
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"KrisisHipertensi_Instance"}, ids(d[domain.RelHasCondition]))
				assert.Equal(t, "Kritis_Instance", d[domain.RelHasSeverity][0].ID)
				assert.Contains(t, ids(d[domain.RelRequiresMedication]), "Amlodipine_Instance")
				assert.Contains(t, ids(d[domain.RelRequiresRecommendation]), "Rek_BatasiGaram")
			},
		},
		{
			name: "Stage 2 hypertension",
			build: func(c *domain.Case) {
				c.Vitals.SBP = intp(150)
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"HipertensiStage2_Instance"}, ids(d[domain.RelHasCondition]))
				assert.Equal(t, []string{"Ramipril_Instance", "Amlodipine_Instance"}, ids(d[domain.RelRequiresMedication]))
				assert.Equal(t, []string{"Sedang_Instance"}, ids(d[domain.RelHasSeverity]))
			},
		},
		{
			name: "Stage 1 hypertension from diastolic only",
			build: func(c *domain.Case) {
				c.Vitals.DBP = intp(82)
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"HipertensiStage1_Instance"}, ids(d[domain.RelHasCondition]))
			},
		},
		{
			name: "Severe LDL does not double as generic dyslipidemia",
			build: func(c *domain.Case) {
				c.Labs.LDL = floatp(210)
				c.Labs.Triglycerides = floatp(250)
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"HiperkolesterolemiaBerat_Instance"}, ids(d[domain.RelHasCondition]))
				assert.Equal(t, []string{"Atorvastatin_Instance"}, ids(d[domain.RelRequiresMedication]))
				assert.Empty(t, d[domain.RelRequiresRecommendation])
			},
		},
		{
			name: "HFrEF with asthma contraindicates beta blocker",
			build: func(c *domain.Case) {
				c.Labs.EF = floatp(35)
				c.Comorbidities.Add("Asma_Instance")
				c.Symptoms.Add("EdemaPerifer_Instance")
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"HFrEF_Instance"}, ids(d[domain.RelHasCondition]))
				meds := ids(d[domain.RelRequiresMedication])
				assert.Contains(t, meds, "Bisoprolol_Instance")
				assert.Contains(t, meds, "Furosemid_Instance")
				assert.Equal(t, []string{"Bisoprolol_Instance"}, ids(d[domain.RelContraindicatedFor]))
				assert.Equal(t, "Berat_Instance", d[domain.RelHasSeverity][0].ID)
			},
		},
		{
			name: "HFpEF needs peptide and symptom",
			build: func(c *domain.Case) {
				c.Labs.EF = floatp(60)
				c.Labs.NTproBNP = floatp(400)
				c.Symptoms.Add("SesakNapas_Instance")
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"HFpEF_Instance"}, ids(d[domain.RelHasCondition]))
			},
		},
		{
			name: "Acute coronary syndrome outranks heart failure severity",
			build: func(c *domain.Case) {
				c.Labs.Troponin = floatp(0.8)
				c.Labs.EF = floatp(35)
				c.Scores.ASCVD = floatp(12)
			},
			check: func(t *testing.T, d domain.Derived) {
				sev := ids(d[domain.RelHasSeverity])
				assert.Equal(t, []string{"Kritis_Instance", "Berat_Instance"}, sev)
				risk := ids(d[domain.RelHasRiskCategory])
				assert.Equal(t, "RisikoSangatTinggi_Instance", risk[0])
				assert.Contains(t, risk, "RisikoSedang_Instance")
			},
		},
		{
			name: "CKD stage 4 contraindicates metformin",
			build: func(c *domain.Case) {
				c.Labs.GFR = floatp(25)
				c.Labs.FBG = floatp(160)
			},
			check: func(t *testing.T, d domain.Derived) {
				conds := ids(d[domain.RelHasCondition])
				assert.Contains(t, conds, "CKD_Stage4_Instance")
				assert.Contains(t, conds, "DiabetesMelitusTipe2_Instance")
				assert.Contains(t, ids(d[domain.RelRequiresMedication]), "Metformin_Instance")
				assert.Equal(t, []string{"Metformin_Instance"}, ids(d[domain.RelContraindicatedFor]))
			},
		},
		{
			name: "ASCVD band boundaries",
			build: func(c *domain.Case) {
				c.Scores.ASCVD = floatp(7.5)
			},
			check: func(t *testing.T, d domain.Derived) {
				assert.Equal(t, []string{"RisikoSedang_Instance"}, ids(d[domain.RelHasRiskCategory]))
			},
		},
		{
			name: "Derived refs carry declared types",
			build: func(c *domain.Case) {
				c.Vitals.BMI = floatp(27.5)
				c.Demographics.Gender = genderp(domain.GenderFemale)
			},
			check: func(t *testing.T, d domain.Derived) {
				require.Len(t, d[domain.RelHasCondition], 1)
				assert.Equal(t, domain.EntityRef{ID: "Overweight_Instance", Types: []string{"Overweight"}}, d[domain.RelHasCondition][0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &domain.Case{ID: "Patient_Test"}
			tt.build(c)

			d, err := r.Infer(ctx, c)
			require.NoError(t, err)
			tt.check(t, d)
		})
	}
}

func TestReasoner_Gender(t *testing.T) {
	doc := `
classes: [{name: A}]
instances: [{id: A_Instance, types: [A]}]
rules:
  - name: women-only
    when: [{gender: female}, {slot: demographics.age, op: exists}]
    then: [{relation: has-condition, entity: A_Instance}]
`
	b, err := Parse([]byte(doc))
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	r := NewReasoner(b, logger)

	c := &domain.Case{Demographics: domain.Demographics{Gender: genderp(domain.GenderFemale), Age: intp(60)}}
	d, err := r.Infer(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, d[domain.RelHasCondition], 1)

	c.Demographics.Gender = genderp(domain.GenderMale)
	d, err = r.Infer(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestReasoner_CanceledContext(t *testing.T) {
	r := newTestReasoner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Infer(ctx, &domain.Case{})
	assert.ErrorIs(t, err, context.Canceled)
}
