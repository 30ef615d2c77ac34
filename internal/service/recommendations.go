package service

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cvd-expert-server/internal/domain"
)

// Recommendation categories.
const (
	CategoryGeneral          = "General"
	CategoryBloodPressure    = "Blood Pressure"
	CategoryBloodGlucose     = "Blood Glucose"
	CategoryCholesterol      = "Cholesterol"
	CategoryWeight           = "Weight"
	CategoryHeartFailure     = "Heart Failure"
	CategorySmokingCessation = "Smoking Cessation"
)

// DefaultRecommendationPriority applies when a recommendation declares none.
const DefaultRecommendationPriority = 99

// recommendationCategory binds a category to its knowledge-base class, the
// diagnosis keywords selecting it and the built-in text used when the class
// has no instances.
type recommendationCategory struct {
	Name     string
	Class    string
	Keywords []string
	Builtin  []string
}

var recommendationCategories = []recommendationCategory{
	{
		Name:  CategoryGeneral,
		Class: "RekomendasiUmum",
		Builtin: []string{
			"Kontrol rutin ke dokter setiap 3-6 bulan",
			"Patuhi pengobatan yang diresepkan",
			"Jaga pola tidur 7-8 jam per malam",
		},
	},
	{
		Name:     CategoryBloodPressure,
		Class:    "RekomendasiTekananDarah",
		Keywords: []string{"hipertensi", "hypertension", "tekanan darah", "blood pressure"},
		Builtin: []string{
			"Batasi asupan garam < 2g/hari",
			"Diet DASH (buah, sayur, rendah lemak)",
			"Hindari stres berlebihan",
			"Olahraga aerobik 30 menit, 5x/minggu",
		},
	},
	{
		Name:     CategoryBloodGlucose,
		Class:    "RekomendasiGulaDarah",
		Keywords: []string{"diabetes", "prediabetes", "gula darah", "glucose"},
		Builtin: []string{
			"Batasi karbohidrat sederhana (gula, nasi putih)",
			"Makan teratur 3x sehari",
			"Cek gula darah rutin",
			"Target HbA1c < 7%",
		},
	},
	{
		Name:     CategoryCholesterol,
		Class:    "RekomendasiKolesterol",
		Keywords: []string{"dislipidemia", "dyslipidemia", "kolesterol", "cholesterol", "ldl"},
		Builtin: []string{
			"Batasi lemak jenuh dan trans",
			"Konsumsi ikan 2x/minggu",
			"Tingkatkan serat (oat, kacang)",
			"Hindari gorengan",
		},
	},
	{
		Name:     CategoryWeight,
		Class:    "RekomendasiBeratBadan",
		Keywords: []string{"obesitas", "obesity", "overweight"},
		Builtin: []string{
			"Target penurunan 5-10% dalam 6 bulan",
			"Kurangi porsi makan",
			"Hindari makan malam terlalu larut",
			"Aktivitas fisik minimal 150 menit/minggu",
		},
	},
	{
		Name:     CategoryHeartFailure,
		Class:    "RekomendasiGagalJantung",
		Keywords: []string{"gagal jantung", "heart failure", "hfref", "hfpef", "hfmref"},
		Builtin: []string{
			"Batasi cairan 1.5-2L/hari",
			"Timbang berat badan setiap hari",
			"Hindari aktivitas berat",
			"Tidur dengan kepala agak tinggi",
		},
	},
	{
		Name:  CategorySmokingCessation,
		Class: "RekomendasiBerhentiMerokok",
		Builtin: []string{
			"Berhenti merokok SEGERA",
			"Konsultasi program berhenti merokok",
			"Gunakan terapi pengganti nikotin jika perlu",
			"Merokok meningkatkan risiko serangan jantung 2-4x",
		},
	},
}

// RecommendationStrategy is one source of lifestyle recommendations.
type RecommendationStrategy interface {
	Source() domain.RecommendationSource
	Recommend() []domain.Recommendation
}

// DerivedRecommendations uses the members of the requires-recommendation relation.
type DerivedRecommendations struct {
	Members  []domain.EntityRef
	resolver *AnnotationResolver
}

// Source implements RecommendationStrategy.
func (DerivedRecommendations) Source() domain.RecommendationSource {
	return domain.RecommendationsDerived
}

// Recommend deduplicates members by id, first occurrence winning.
func (d DerivedRecommendations) Recommend() []domain.Recommendation {
	seen := make(map[string]bool, len(d.Members))
	out := make([]domain.Recommendation, 0, len(d.Members))
	for _, ref := range d.Members {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		out = append(out, recommendationFrom(d.resolver.Resolve(ref), CategoryGeneral, domain.SourceInferred))
	}
	sortRecommendations(out)
	return out
}

// StaticRecommendations reads the recommendations of fixed categories.
type StaticRecommendations struct {
	Categories []string
	kb         domain.KnowledgeAccessor
	resolver   *AnnotationResolver
}

// Source implements RecommendationStrategy.
func (StaticRecommendations) Source() domain.RecommendationSource {
	return domain.RecommendationsStatic
}

// Recommend lists every recommendation of the selected categories. A category
// whose class has no instances contributes its built-in text.
func (s StaticRecommendations) Recommend() []domain.Recommendation {
	var out []domain.Recommendation
	for _, name := range s.Categories {
		cat, ok := categoryByName(name)
		if !ok {
			continue
		}
		instances := s.kb.InstancesOf(cat.Class)
		if len(instances) == 0 {
			for i, text := range cat.Builtin {
				out = append(out, domain.Recommendation{
					Name:     text,
					Category: cat.Name,
					Priority: i + 1,
					Source:   domain.SourceStatic,
				})
			}
			continue
		}
		for _, e := range instances {
			out = append(out, recommendationFrom(s.resolver.Resolve(e.Ref()), cat.Name, domain.SourceStatic))
		}
	}
	sortRecommendations(out)
	return out
}

// StaticCategories selects the fallback categories: General always, one per
// keyword found in a diagnosis name, and smoking cessation for smokers.
func StaticCategories(diagnosisNames []string, c *domain.Case) []string {
	lowered := make([]string, len(diagnosisNames))
	for i, n := range diagnosisNames {
		lowered[i] = strings.ToLower(n)
	}

	var out []string
	for _, cat := range recommendationCategories {
		switch cat.Name {
		case CategoryGeneral:
			out = append(out, cat.Name)
		case CategorySmokingCessation:
			if c != nil && c.HasFact(domain.SmokingFact) {
				out = append(out, cat.Name)
			}
		default:
			if anyKeyword(lowered, cat.Keywords) {
				out = append(out, cat.Name)
			}
		}
	}
	return out
}

// SelectRecommendations picks the derived strategy when the engine derived any
// recommendation and the static strategy otherwise. The two are never merged.
func SelectRecommendations(derived []domain.EntityRef, diagnosisNames []string, c *domain.Case, kb domain.KnowledgeAccessor, resolver *AnnotationResolver) RecommendationStrategy {
	if len(derived) > 0 {
		return DerivedRecommendations{Members: derived, resolver: resolver}
	}
	return StaticRecommendations{
		Categories: StaticCategories(diagnosisNames, c),
		kb:         kb,
		resolver:   resolver,
	}
}

func recommendationFrom(rec domain.MetadataRecord, category, source string) domain.Recommendation {
	priority := DefaultRecommendationPriority
	if v, ok := rec.Get(domain.FieldSeverityOrPriority); ok {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			priority = p
		}
	}
	return domain.Recommendation{
		Name:        rec.Or(domain.FieldDisplayName, ""),
		Category:    rec.Or(domain.FieldCategory, category),
		Priority:    priority,
		Source:      source,
		Description: rec.Ptr(domain.FieldDescription),
	}
}

func sortRecommendations(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Category != recs[j].Category {
			return recs[i].Category < recs[j].Category
		}
		return recs[i].Priority < recs[j].Priority
	})
}

func categoryByName(name string) (recommendationCategory, bool) {
	for _, cat := range recommendationCategories {
		if cat.Name == name {
			return cat, true
		}
	}
	return recommendationCategory{}, false
}

func anyKeyword(names []string, keywords []string) bool {
	for _, n := range names {
		for _, k := range keywords {
			if strings.Contains(n, k) {
				return true
			}
		}
	}
	return false
}
