package service

import (
	"math"

	"github.com/cvd-expert-server/internal/domain"
)

// ScoreResult is a computed clinical score with its category.
type ScoreResult struct {
	Value    float64 `json:"value"`
	Category string  `json:"category"`
}

// ScoreRequest carries the inputs of the bedside score calculators. Only the
// scores whose inputs are complete are computed.
type ScoreRequest struct {
	Age        *int     `json:"age,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	Race       string   `json:"race,omitempty"`
	Creatinine *float64 `json:"creatinine,omitempty"`
	GFR        *float64 `json:"gfr,omitempty"`
	TotalChol  *float64 `json:"total_chol,omitempty"`
	HDL        *float64 `json:"hdl,omitempty"`
	SBP        *float64 `json:"sbp,omitempty"`
	DBP        *float64 `json:"dbp,omitempty"`
	FBG        *float64 `json:"fbg,omitempty"`
	HbA1c      *float64 `json:"hba1c,omitempty"`

	OnHypertensionTreatment bool `json:"on_hypertension_treatment,omitempty"`
	Smoker                  bool `json:"smoker,omitempty"`
	HeartFailure            bool `json:"heart_failure,omitempty"`
	StrokeHistory           bool `json:"stroke_history,omitempty"`
	VascularDisease         bool `json:"vascular_disease,omitempty"`
	LiverDisease            bool `json:"liver_disease,omitempty"`
	BleedingHistory         bool `json:"bleeding_history,omitempty"`
	LabileINR               bool `json:"labile_inr,omitempty"`
	Antiplatelet            bool `json:"antiplatelet,omitempty"`
	Alcohol                 bool `json:"alcohol,omitempty"`
}

// ScoreReport holds every score that could be computed.
type ScoreReport struct {
	EGFR        *ScoreResult `json:"egfr,omitempty"`
	ASCVD       *ScoreResult `json:"ascvd,omitempty"`
	CHA2DS2VASc *ScoreResult `json:"cha2ds2vasc,omitempty"`
	HASBLED     *ScoreResult `json:"hasbled,omitempty"`
}

// ScoreCalculator computes derived clinical scores. It never writes into a case.
type ScoreCalculator struct{}

// Calculate computes all scores the request has inputs for.
func (ScoreCalculator) Calculate(req ScoreRequest) ScoreReport {
	var out ScoreReport
	gender, hasGender := domain.ParseGender(req.Gender)
	female := hasGender && gender == domain.GenderFemale

	if req.Creatinine != nil && req.Age != nil && hasGender && *req.Creatinine > 0 {
		r := EGFR(*req.Creatinine, *req.Age, female)
		out.EGFR = &r
	}

	diabetes := (req.FBG != nil && *req.FBG >= 126) || (req.HbA1c != nil && *req.HbA1c >= 6.5)
	hypertension := (req.SBP != nil && *req.SBP >= 140) || (req.DBP != nil && *req.DBP >= 90)

	if req.Age != nil && hasGender && req.TotalChol != nil && req.HDL != nil && req.SBP != nil &&
		*req.Age > 0 && *req.TotalChol > 0 && *req.HDL > 0 && *req.SBP > 0 {
		r := ASCVD(ASCVDInput{
			Age:       *req.Age,
			Female:    female,
			Black:     req.Race == "black",
			TotalChol: *req.TotalChol,
			HDL:       *req.HDL,
			SBP:       *req.SBP,
			TreatedBP: req.OnHypertensionTreatment,
			Smoker:    req.Smoker,
			Diabetes:  diabetes,
		})
		out.ASCVD = &r
	}

	age := 0
	if req.Age != nil {
		age = *req.Age
	}

	cha := CHA2DS2VASc(CHA2DS2VAScInput{
		Age:             age,
		Female:          female,
		HeartFailure:    req.HeartFailure,
		Hypertension:    hypertension,
		Diabetes:        diabetes,
		StrokeHistory:   req.StrokeHistory,
		VascularDisease: req.VascularDisease,
	})
	out.CHA2DS2VASc = &cha

	gfr := 100.0
	switch {
	case req.GFR != nil:
		gfr = *req.GFR
	case out.EGFR != nil:
		gfr = out.EGFR.Value
	}
	sbp := 0.0
	if req.SBP != nil {
		sbp = *req.SBP
	}
	hb := HASBLED(HASBLEDInput{
		SBP:             sbp,
		GFR:             gfr,
		Age:             age,
		LiverDisease:    req.LiverDisease,
		StrokeHistory:   req.StrokeHistory,
		BleedingHistory: req.BleedingHistory,
		LabileINR:       req.LabileINR,
		Antiplatelet:    req.Antiplatelet,
		Alcohol:         req.Alcohol,
	})
	out.HASBLED = &hb
	return out
}

// EGFR estimates the glomerular filtration rate with the race-free CKD-EPI
// 2021 creatinine equation, rounded to a whole number.
func EGFR(creatinine float64, age int, female bool) ScoreResult {
	kappa, alpha, sex := 0.9, -0.302, 1.0
	if female {
		kappa, alpha, sex = 0.7, -0.241, 1.012
	}
	ratio := creatinine / kappa
	v := 142 * math.Pow(math.Min(ratio, 1), alpha) * math.Pow(math.Max(ratio, 1), -1.200) *
		math.Pow(0.9938, float64(age)) * sex
	v = math.Round(v)

	var category string
	switch {
	case v >= 90:
		category = "Normal"
	case v >= 60:
		category = "CKD Stage 2"
	case v >= 30:
		category = "CKD Stage 3"
	case v >= 15:
		category = "CKD Stage 4"
	default:
		category = "CKD Stage 5"
	}
	return ScoreResult{Value: v, Category: category}
}

// ASCVDInput holds the pooled cohort equation inputs.
type ASCVDInput struct {
	Age       int
	Female    bool
	Black     bool
	TotalChol float64
	HDL       float64
	SBP       float64
	TreatedBP bool
	Smoker    bool
	Diabetes  bool
}

// ASCVD returns the 10-year atherosclerotic cardiovascular risk in percent
// from the pooled cohort equations, rounded to one decimal.
func ASCVD(in ASCVDInput) ScoreResult {
	lnAge := math.Log(float64(in.Age))
	lnTC := math.Log(in.TotalChol)
	lnHDL := math.Log(in.HDL)
	lnSBP := math.Log(in.SBP)
	smoker := b2f(in.Smoker)
	diabetes := b2f(in.Diabetes)

	var sum, baseline, mean float64
	switch {
	case in.Female && !in.Black:
		sbpCoef := 1.957
		if in.TreatedBP {
			sbpCoef = 2.019
		}
		sum = -29.799*lnAge + 4.884*lnAge*lnAge + 13.540*lnTC - 3.114*lnAge*lnTC -
			13.578*lnHDL + 3.149*lnAge*lnHDL + sbpCoef*lnSBP + 7.574*smoker -
			1.665*lnAge*smoker + 0.661*diabetes
		baseline, mean = 0.9665, -29.18
	case in.Female && in.Black:
		sbpCoef, ageSBPCoef := 27.820, 6.087
		if in.TreatedBP {
			sbpCoef, ageSBPCoef = 29.291, 6.432
		}
		sum = 17.114*lnAge + 0.940*lnTC - 18.920*lnHDL + 4.475*lnAge*lnHDL +
			sbpCoef*lnSBP - ageSBPCoef*lnAge*lnSBP + 0.691*smoker + 0.874*diabetes
		baseline, mean = 0.9533, 86.61
	case !in.Female && !in.Black:
		sbpCoef := 1.764
		if in.TreatedBP {
			sbpCoef = 1.797
		}
		sum = 12.344*lnAge + 11.853*lnTC - 2.664*lnAge*lnTC - 7.990*lnHDL +
			1.769*lnAge*lnHDL + sbpCoef*lnSBP + 7.837*smoker - 1.795*lnAge*smoker +
			0.658*diabetes
		baseline, mean = 0.9144, 61.18
	default:
		sbpCoef := 1.809
		if in.TreatedBP {
			sbpCoef = 1.916
		}
		sum = 2.469*lnAge + 0.302*lnTC - 0.307*lnHDL + sbpCoef*lnSBP +
			0.549*smoker + 0.645*diabetes
		baseline, mean = 0.8954, 19.54
	}

	risk := (1 - math.Pow(baseline, math.Exp(sum-mean))) * 100
	risk = math.Max(0, math.Min(100, risk))
	risk = math.Round(risk*10) / 10

	var category string
	switch {
	case risk < 5:
		category = "Low"
	case risk < 7.5:
		category = "Borderline"
	case risk < 20:
		category = "Intermediate"
	default:
		category = "High"
	}
	return ScoreResult{Value: risk, Category: category}
}

// CHA2DS2VAScInput holds the stroke-risk score inputs.
type CHA2DS2VAScInput struct {
	Age             int
	Female          bool
	HeartFailure    bool
	Hypertension    bool
	Diabetes        bool
	StrokeHistory   bool
	VascularDisease bool
}

// CHA2DS2VASc scores stroke risk in atrial fibrillation.
func CHA2DS2VASc(in CHA2DS2VAScInput) ScoreResult {
	score := 0
	if in.HeartFailure {
		score++
	}
	if in.Hypertension {
		score++
	}
	switch {
	case in.Age >= 75:
		score += 2
	case in.Age >= 65:
		score++
	}
	if in.Diabetes {
		score++
	}
	if in.StrokeHistory {
		score += 2
	}
	if in.VascularDisease {
		score++
	}
	if in.Female {
		score++
	}

	var category string
	switch {
	case score == 0:
		category = "Low"
	case score == 1:
		category = "Low-Moderate"
	case score <= 3:
		category = "Moderate"
	default:
		category = "High"
	}
	return ScoreResult{Value: float64(score), Category: category}
}

// HASBLEDInput holds the bleeding-risk score inputs.
type HASBLEDInput struct {
	SBP             float64
	GFR             float64
	Age             int
	LiverDisease    bool
	StrokeHistory   bool
	BleedingHistory bool
	LabileINR       bool
	Antiplatelet    bool
	Alcohol         bool
}

// HASBLED scores bleeding risk under anticoagulation.
func HASBLED(in HASBLEDInput) ScoreResult {
	score := 0
	for _, point := range []bool{
		in.SBP > 160,
		in.GFR < 30,
		in.LiverDisease,
		in.StrokeHistory,
		in.BleedingHistory,
		in.LabileINR,
		in.Age > 65,
		in.Antiplatelet,
		in.Alcohol,
	} {
		if point {
			score++
		}
	}

	var category string
	switch {
	case score <= 1:
		category = "Low"
	case score == 2:
		category = "Moderate"
	default:
		category = "High"
	}
	return ScoreResult{Value: float64(score), Category: category}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
