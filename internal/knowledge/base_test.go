package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvd-expert-server/internal/domain"
)

const miniKnowledge = `
classes:
  - name: Obat
  - name: BetaBlocker
    parents: [Obat]
    annotations:
      hasDrugClass: Beta Blocker
  - name: Kondisi
  - name: Hipertensi
    parents: [Kondisi]
instances:
  - id: Bisoprolol_Instance
    types: [BetaBlocker]
    annotations:
      hasDose: [1.25 mg, 2.5 mg]
  - id: Hipertensi_Instance
    types: [Hipertensi]
properties:
  - name: memilikiTekananSistolik
    label: Tekanan Sistolik (mmHg)
  - name: memerlukan
    kind: object
rules:
  - name: hypertension
    when:
      - {slot: vitals.sbp, op: ">=", value: 140}
    then:
      - {relation: has-condition, entity: Hipertensi_Instance}
`

func TestParse(t *testing.T) {
	b, err := Parse([]byte(miniKnowledge))
	require.NoError(t, err)

	assert.Equal(t, DefaultNamespace, b.Namespace())

	e, ok := b.LookupInstance("Bisoprolol_Instance")
	require.True(t, ok)
	assert.Equal(t, []string{"BetaBlocker"}, e.Types)
	assert.Equal(t, domain.Values{"1.25 mg", "2.5 mg"}, e.Annotations["hasDose"])

	c, ok := b.LookupClass("BetaBlocker")
	require.True(t, ok)
	assert.Equal(t, []string{"Obat"}, c.Parents)

	_, ok = b.LookupInstance("Missing_Instance")
	assert.False(t, ok)

	p, ok := b.Property("memilikiTekananSistolik")
	require.True(t, ok)
	assert.Equal(t, domain.DataProperty, p.Kind)

	stats := b.Stats()
	assert.Equal(t, domain.KnowledgeStats{
		Classes:          4,
		ObjectProperties: 1,
		DataProperties:   1,
		Individuals:      2,
		Rules:            1,
	}, stats)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "Malformed YAML",
			doc:  "classes: [",
			want: "decoding knowledge base",
		},
		{
			name: "Duplicate class",
			doc:  "classes:\n  - name: A\n  - name: A\n",
			want: `duplicate class "A"`,
		},
		{
			name: "Unknown parent",
			doc:  "classes:\n  - name: A\n    parents: [B]\n",
			want: `unknown parent "B"`,
		},
		{
			name: "Unknown instance type",
			doc:  "instances:\n  - id: X\n    types: [Nope]\n",
			want: `unknown type "Nope"`,
		},
		{
			name: "Rule with unknown slot",
			doc: `classes: [{name: A}]
instances: [{id: A_Instance, types: [A]}]
rules:
  - name: r
    when: [{slot: vitals.bogus, op: ">", value: 1}]
    then: [{relation: has-condition, entity: A_Instance}]
`,
			want: `unknown slot "vitals.bogus"`,
		},
		{
			name: "Rule with unknown operator",
			doc: `classes: [{name: A}]
instances: [{id: A_Instance, types: [A]}]
rules:
  - name: r
    when: [{slot: vitals.sbp, op: "~", value: 1}]
    then: [{relation: has-condition, entity: A_Instance}]
`,
			want: `unknown operator "~"`,
		},
		{
			name: "Rule with unknown relation",
			doc: `classes: [{name: A}]
instances: [{id: A_Instance, types: [A]}]
rules:
  - name: r
    when: [{fact: X}]
    then: [{relation: knows, entity: A_Instance}]
`,
			want: `unknown relation "knows"`,
		},
		{
			name: "Rule with unknown entity",
			doc: `rules:
  - name: r
    when: [{fact: X}]
    then: [{relation: has-condition, entity: Ghost}]
`,
			want: `unknown entity "Ghost"`,
		},
		{
			name: "Condition with two kinds",
			doc: `classes: [{name: A}]
instances: [{id: A_Instance, types: [A]}]
rules:
  - name: r
    when: [{fact: X, gender: male}]
    then: [{relation: has-condition, entity: A_Instance}]
`,
			want: "exactly one kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrKnowledgeBaseUnavailable))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Embedded default", func(t *testing.T) {
		b, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultNamespace, b.Namespace())
		assert.NotEmpty(t, b.Rules())
	})

	t.Run("File on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.yaml")
		require.NoError(t, os.WriteFile(path, []byte(miniKnowledge), 0o644))

		b, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, b.Rules(), 1)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrKnowledgeBaseUnavailable))
	})
}

func TestBase_InstancesOf(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)

	diuretics := b.InstancesOf("Diuretik")
	ids := make([]string, len(diuretics))
	for i, e := range diuretics {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"Furosemid_Instance", "Spironolactone_Instance"}, ids)

	assert.Empty(t, b.InstancesOf("NoSuchClass"))
	assert.NotEmpty(t, b.InstancesOf("RekomendasiUmum"))
}

func TestBase_IsA(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)

	assert.True(t, b.IsA([]string{"HFrEF"}, "GagalJantung"))
	assert.True(t, b.IsA([]string{"HFrEF"}, "PenyakitKardiovaskular"))
	assert.True(t, b.IsA([]string{"HFrEF"}, "HFrEF"))
	assert.False(t, b.IsA([]string{"HFrEF"}, "Hipertensi"))
	assert.False(t, b.IsA(nil, "Kondisi"))
}

func TestDefaultKnowledge_Properties(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)

	for _, slot := range domain.Slots {
		p, ok := b.Property(slot.Property)
		if assert.True(t, ok, "property for %s", slot.Name()) {
			assert.Equal(t, domain.DataProperty, p.Kind)
			assert.NotEmpty(t, p.Label)
		}
	}

	stats := b.Stats()
	assert.Equal(t, 8, stats.ObjectProperties)
	assert.Greater(t, stats.Individuals, 0)
}
