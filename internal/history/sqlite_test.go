package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvd-expert-server/internal/domain"
)

func createTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	b := NewSQLiteBackend(domain.SQLiteConfig{Enabled: true, Path: dbPath})
	t.Cleanup(func() { b.Close() })
	return b
}

func fullReport() *domain.DiagnosisReport {
	code := "I10"
	score := 14.2
	return &domain.DiagnosisReport{
		CaseID:    "Patient_Budi_1a2b3c4d",
		Timestamp: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
		Emergency: false,
		Diagnoses: []domain.Diagnosis{
			{Name: "Hipertensi Stage 2", Class: "HipertensiStage2", Severity: domain.SeverityModerate, Source: domain.SourceInferred, Code: &code},
		},
		Medications: []domain.Medication{
			{Name: "Ramipril", Class: "ACE Inhibitor", Dose: "2.5-10 mg", Frequency: "1x sehari", Source: domain.SourceInferred},
		},
		Contraindications: []domain.Contraindication{},
		RiskCategory:      domain.RiskCategory{Label: "Intermediate Risk", Score: &score},
		Severity:          domain.SeverityModerate,
		LifestyleRecommendations: []domain.Recommendation{
			{Name: "Batasi garam", Category: "Blood Pressure", Priority: 1, Source: domain.SourceInferred},
		},
		RecommendationSource: domain.RecommendationsDerived,
		ReasoningTrace:       []string{"Input: Systolic BP = 150 mmHg", "Inferred: HipertensiStage2_Instance (HipertensiStage2)"},
		RulesFired:           1,
	}
}

func TestSQLiteBackend_Configured(t *testing.T) {
	assert.False(t, NewSQLiteBackend(domain.SQLiteConfig{Path: "x.db"}).IsConfigured())
	assert.False(t, NewSQLiteBackend(domain.SQLiteConfig{Enabled: true}).IsConfigured())
	assert.True(t, NewSQLiteBackend(domain.SQLiteConfig{Enabled: true, Path: "x.db"}).IsConfigured())

	_, err := NewSQLiteBackend(domain.SQLiteConfig{}).QueryRecent(context.Background(), 1, Filter{})
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	b := createTestBackend(t)
	ctx := context.Background()

	input := map[string]any{
		"demographics": map[string]any{"name": "Budi", "age": 58.0},
		"vitals":       map[string]any{"sbp": 150.0},
	}
	rec := NewRecord(fullReport(), input)
	require.NoError(t, b.Write(ctx, rec))

	_, err := os.Stat(b.dbPath)
	assert.NoError(t, err, "database file created on first use")

	got, err := b.QueryRecent(ctx, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "Budi", got[0].PatientName)
	assert.True(t, rec.Timestamp.Equal(got[0].Timestamp))
	assert.Equal(t, rec.Report, got[0].Report)
	assert.Equal(t, input, got[0].Input)

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	one, err := b.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Report, one.Report)

	_, err = b.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteBackend_QueryRecent(t *testing.T) {
	b := createTestBackend(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ani", "Budi", "Ani", "Citra"} {
		report := testReport("Patient_" + name)
		report.Timestamp = base.Add(time.Duration(i) * time.Hour)
		rec := NewRecord(report, map[string]any{"demographics": map[string]any{"name": name}})
		require.NoError(t, b.Write(ctx, rec))
	}

	all, err := b.QueryRecent(ctx, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Citra", all[0].PatientName, "newest first")
	assert.Equal(t, "Ani", all[3].PatientName)

	limited, err := b.QueryRecent(ctx, 2, Filter{})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	ani, err := b.QueryRecent(ctx, 10, Filter{Patient: "Ani"})
	require.NoError(t, err)
	assert.Len(t, ani, 2)

	byCase, err := b.QueryRecent(ctx, 10, Filter{Patient: "Patient_Budi"})
	require.NoError(t, err)
	assert.Len(t, byCase, 1)

	none, err := b.QueryRecent(ctx, 10, Filter{Patient: "Dewi"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLiteBackend_ExportJSON(t *testing.T) {
	b := createTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, NewRecord(fullReport(), nil)))

	var buf bytes.Buffer
	require.NoError(t, b.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Records, 1)
	assert.Equal(t, "Patient_Budi_1a2b3c4d", export.Records[0].CaseID)
}

func TestSQLiteBackend_DriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewSQLiteBackendFromDB(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO diagnosis_history").
		WillReturnError(errors.New("database is locked"))
	err = b.Write(ctx, NewRecord(testReport("Patient_X"), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	mock.ExpectQuery("SELECT id, case_id, patient_name, created_at, report, input").
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "patient_name", "created_at", "report", "input"}).
			AddRow("r1", "Patient_X", "X", int64(0), "{not json", "{}"))
	_, err = b.QueryRecent(ctx, 5, Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode report r1")

	assert.NoError(t, mock.ExpectationsWereMet())
}
