package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMetadataRecordAccess(t *testing.T) {
	var m MetadataRecord

	for _, f := range MetadataFields {
		_, ok := m.Get(f)
		assert.False(t, ok, f.String())
	}
	assert.Equal(t, "As prescribed", m.Or(FieldDose, "As prescribed"))
	assert.Nil(t, m.Ptr(FieldCode))

	m2 := m.With(FieldDose, "5 mg")
	_, ok := m.Get(FieldDose)
	assert.False(t, ok, "With must not mutate the receiver")
	assert.Equal(t, "5 mg", m2.Or(FieldDose, "As prescribed"))

	empty := m.With(FieldDescription, "")
	v, ok := empty.Get(FieldDescription)
	assert.True(t, ok, "an explicit empty value is still present")
	assert.Equal(t, "", v)
}

func TestValuesUnmarshalYAML(t *testing.T) {
	var doc struct {
		A Values `yaml:"a"`
		B Values `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: Hipertensi\nb: [I10, I11]\n"), &doc))

	assert.Equal(t, Values{"Hipertensi"}, doc.A)
	first, ok := doc.B.First()
	assert.True(t, ok)
	assert.Equal(t, "I10", first)

	_, ok = Values{}.First()
	assert.False(t, ok)

	var bad struct {
		A Values `yaml:"a"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("a: {x: 1}\n"), &bad))
}

func TestRelations(t *testing.T) {
	assert.True(t, RelHasSeverity.SingleValued())
	assert.True(t, RelHasRiskCategory.SingleValued())
	assert.False(t, RelHasCondition.SingleValued())
	assert.True(t, RelRequiresRecommendation.Valid())
	assert.False(t, Relation("has-allergy").Valid())
}
