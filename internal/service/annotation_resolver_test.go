package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvd-expert-server/internal/domain"
)

// fakeKnowledge is an in-memory knowledge accessor that counts instance lookups.
type fakeKnowledge struct {
	instances map[string]*domain.Entity
	classes   map[string]*domain.Class
	order     []string
	lookups   int
	loadErr   error
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{
		instances: map[string]*domain.Entity{},
		classes:   map[string]*domain.Class{},
	}
}

func (f *fakeKnowledge) addClass(name string, ann domain.Annotations, parents ...string) {
	f.classes[name] = &domain.Class{Name: name, Parents: parents, Annotations: ann}
}

func (f *fakeKnowledge) addInstance(id string, types []string, ann domain.Annotations) {
	f.instances[id] = &domain.Entity{ID: id, Types: types, Annotations: ann}
	f.order = append(f.order, id)
}

func (f *fakeKnowledge) LookupInstance(id string) (*domain.Entity, bool) {
	f.lookups++
	e, ok := f.instances[id]
	return e, ok
}

func (f *fakeKnowledge) LookupClass(name string) (*domain.Class, bool) {
	c, ok := f.classes[name]
	return c, ok
}

func (f *fakeKnowledge) InstancesOf(class string) []*domain.Entity {
	var out []*domain.Entity
	for _, id := range f.order {
		for _, t := range f.instances[id].Types {
			if t == class {
				out = append(out, f.instances[id])
				break
			}
		}
	}
	return out
}

func (f *fakeKnowledge) Load() error { return f.loadErr }

func TestAnnotationResolver_Precedence(t *testing.T) {
	kb := newFakeKnowledge()
	kb.addClass("GagalJantung", domain.Annotations{
		"hasDisplayName":   {"Gagal Jantung"},
		"hasSeverityLevel": {"Severe"},
		"hasICD10Code":     {"I50.9"},
	})
	kb.addClass("HFrEF", domain.Annotations{
		"hasDisplayName": {"HFrEF"},
		"hasICD10Code":   {"I50.2"},
	}, "GagalJantung")
	kb.addInstance("HFrEF_Instance", []string{"HFrEF", "GagalJantung"}, domain.Annotations{
		"hasDisplayName": {"Gagal Jantung HFrEF"},
	})

	r, err := NewAnnotationResolver(kb, 0)
	require.NoError(t, err)

	rec := r.Resolve(domain.EntityRef{ID: "HFrEF_Instance", Types: []string{"HFrEF", "GagalJantung"}})

	assert.Equal(t, "Gagal Jantung HFrEF", rec.Or(domain.FieldDisplayName, ""), "instance wins over class")
	assert.Equal(t, "I50.2", rec.Or(domain.FieldCode, ""), "first declared type wins")
	assert.Equal(t, "Severe", rec.Or(domain.FieldSeverityOrPriority, ""), "later type supplies a field the first lacks")
	_, ok := rec.Get(domain.FieldDose)
	assert.False(t, ok, "unresolved fields stay absent")
}

func TestAnnotationResolver_Fallbacks(t *testing.T) {
	kb := newFakeKnowledge()
	kb.addClass("Statin", domain.Annotations{"hasDrugClass": {"Statin"}})
	kb.addInstance("Atorvastatin_Instance", []string{"Statin"}, domain.Annotations{
		"hasDose":      {"20 mg", "40 mg"},
		"hasFrequency": {"", "1x sehari"},
		"hasCategory":  {},
	})

	r, err := NewAnnotationResolver(kb, 0)
	require.NoError(t, err)

	t.Run("Plural values collapse to the first element", func(t *testing.T) {
		rec := r.Resolve(domain.EntityRef{ID: "Atorvastatin_Instance", Types: []string{"Statin"}})
		assert.Equal(t, "20 mg", rec.Or(domain.FieldDose, ""))
		assert.Equal(t, "1x sehari", rec.Or(domain.FieldFrequency, ""))
	})

	t.Run("Empty collection counts as absent", func(t *testing.T) {
		rec := r.Resolve(domain.EntityRef{ID: "Atorvastatin_Instance", Types: []string{"Statin"}})
		assert.Equal(t, "Statin", rec.Or(domain.FieldCategory, ""))
	})

	t.Run("Display name derived from identifier", func(t *testing.T) {
		rec := r.Resolve(domain.EntityRef{ID: "Penyakit_Ginjal_Instance"})
		assert.Equal(t, "Penyakit Ginjal", rec.Or(domain.FieldDisplayName, ""))
		_, ok := rec.Get(domain.FieldDescription)
		assert.False(t, ok, "only the display name has a textual fallback")
	})

	t.Run("Types taken from the instance when the reference has none", func(t *testing.T) {
		rec := r.Resolve(domain.EntityRef{ID: "Atorvastatin_Instance"})
		assert.Equal(t, "Statin", rec.Or(domain.FieldCategory, ""))
		assert.Equal(t, "Atorvastatin", rec.Or(domain.FieldDisplayName, ""))
	})
}

func TestAnnotationResolver_Memo(t *testing.T) {
	kb := newFakeKnowledge()
	kb.addInstance("Aspirin_Instance", nil, domain.Annotations{"hasDisplayName": {"Aspirin"}})

	r, err := NewAnnotationResolver(kb, 8)
	require.NoError(t, err)

	ref := domain.EntityRef{ID: "Aspirin_Instance"}
	first := r.Resolve(ref)
	second := r.Resolve(ref)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, kb.lookups)

	r.Resolve(domain.EntityRef{ID: "Ghost_Instance"})
	r.Resolve(domain.EntityRef{ID: "Ghost_Instance"})
	assert.Equal(t, 3, kb.lookups, "entities missing from the knowledge base are not memoized")
}

func TestDisplayNameFromID(t *testing.T) {
	tests := map[string]string{
		"Gagal_Jantung_Instance": "Gagal Jantung",
		"Hipertensi":             "Hipertensi",
		"CKD_Stage4_Instance":    "CKD Stage4",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayNameFromID(in), in)
	}
}
