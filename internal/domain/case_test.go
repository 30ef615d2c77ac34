package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactSet(t *testing.T) {
	s := NewFactSet("NyeriDada_Instance", "SesakNapas_Instance", "NyeriDada_Instance")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"NyeriDada_Instance", "SesakNapas_Instance"}, s.Items())
	assert.False(t, s.Add("SesakNapas_Instance"))
	assert.False(t, s.Add(""))
	assert.True(t, s.Add("Pusing_Instance"))
	assert.True(t, s.Has("Pusing_Instance"))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["NyeriDada_Instance","SesakNapas_Instance","Pusing_Instance"]`, string(data))

	var empty FactSet
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	var decoded FactSet
	require.NoError(t, json.Unmarshal([]byte(`["a","b","a"]`), &decoded))
	assert.Equal(t, []string{"a", "b"}, decoded.Items())
}

func TestSlotSpecs(t *testing.T) {
	c := &Case{}

	sbp, ok := SlotByName("vitals.sbp")
	require.True(t, ok)
	_, present := sbp.Value(c)
	assert.False(t, present, "absent slot must not read as zero")

	sbp.SetInt(c, 0)
	v, present := sbp.Value(c)
	assert.True(t, present)
	assert.Equal(t, 0.0, v)
	require.NotNil(t, c.Vitals.SBP)

	chol, ok := SlotByName("total_chol")
	require.True(t, ok)
	assert.Equal(t, []string{"total_chol", "totalChol"}, chol.Keys())
	chol.SetFloat(c, 212.5)
	require.NotNil(t, c.Labs.TotalChol)
	assert.Equal(t, 212.5, *c.Labs.TotalChol)

	_, ok = SlotByName("nonexistent")
	assert.False(t, ok)

	seen := map[string]bool{}
	for _, s := range Slots {
		assert.False(t, seen[s.Name()], "duplicate slot %s", s.Name())
		seen[s.Name()] = true
		assert.NotEmpty(t, s.Property, s.Name())
	}
}

func TestParseGender(t *testing.T) {
	tests := []struct {
		input string
		want  Gender
		ok    bool
	}{
		{"male", GenderMale, true},
		{" Female ", GenderFemale, true},
		{"L", GenderMale, true},
		{"perempuan", GenderFemale, true},
		{"other", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseGender(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFactTableLookup(t *testing.T) {
	id, ok := SymptomFacts.Lookup("chest_pain")
	assert.True(t, ok)
	assert.Equal(t, "NyeriDada_Instance", id)

	_, ok = HistoryFacts.Lookup("diabetes")
	assert.False(t, ok)
}

func TestCasePatientName(t *testing.T) {
	c := &Case{}
	assert.Equal(t, "Unknown", c.PatientName())

	name := "Budi Santoso"
	c.Demographics.Name = &name
	assert.Equal(t, "Budi Santoso", c.PatientName())
}
