package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/pkg/sparql"
)

// DefaultNamespace is the knowledge-base namespace used for stored triples.
const DefaultNamespace = "http://www.cvd-expert-system.org/ontology#"

// TripleStore keeps history as RDF in a SPARQL dataset. Each record becomes
// one diagnosis event linked to its patient; the full report and input ride
// along as JSON literals so they can be read back intact.
type TripleStore struct {
	client    *sparql.Client
	namespace string
	log       *logrus.Logger
}

// NewTripleStore creates a triple store over client.
func NewTripleStore(client *sparql.Client, namespace string, logger *logrus.Logger) *TripleStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &TripleStore{client: client, namespace: namespace, log: logger}
}

// Name implements history.Backend.
func (s *TripleStore) Name() string { return "sparql" }

// IsConfigured implements history.Backend.
func (s *TripleStore) IsConfigured() bool {
	return s.client != nil && s.client.Configured()
}

func (s *TripleStore) prefixes() string {
	return fmt.Sprintf("PREFIX cvd: <%s>\n"+
		"PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>\n"+
		"PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>\n", s.namespace)
}

// Write implements history.Backend.
func (s *TripleStore) Write(ctx context.Context, rec history.Record) error {
	update, err := s.insertData(rec)
	if err != nil {
		return err
	}
	if err := s.client.Update(ctx, update); err != nil {
		return fmt.Errorf("inserting diagnosis triples: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"record_id": rec.ID,
		"case_id":   rec.CaseID,
	}).Debug("Diagnosis triples inserted")
	return nil
}

func (s *TripleStore) insertData(rec history.Record) (string, error) {
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return "", fmt.Errorf("marshaling input: %w", err)
	}

	event := "cvd:Diagnosa_" + sparql.LocalName(rec.ID)
	patient := "cvd:" + sparql.LocalName(rec.CaseID)
	summary := rec.Summary()

	var b strings.Builder
	b.WriteString(s.prefixes())
	b.WriteString("INSERT DATA {\n")

	fmt.Fprintf(&b, "  %s rdf:type cvd:Pasien ;\n", patient)
	fmt.Fprintf(&b, "    cvd:memilikiNama %s", sparql.TypedLiteral(rec.PatientName, "string"))
	if summary.Age != nil {
		fmt.Fprintf(&b, " ;\n    cvd:memilikiUsia %s", sparql.TypedLiteral(strconv.Itoa(*summary.Age), "integer"))
	}
	if summary.Gender != "" {
		fmt.Fprintf(&b, " ;\n    cvd:memilikiJenisKelamin %s", sparql.TypedLiteral(summary.Gender, "string"))
	}
	b.WriteString(" .\n")

	triple := func(pred, obj string) {
		fmt.Fprintf(&b, "  %s %s %s .\n", event, pred, obj)
	}
	triple("rdf:type", "cvd:DiagnosisEvent")
	triple("cvd:forPatient", patient)
	triple("cvd:recordId", sparql.Literal(rec.ID))
	triple("cvd:caseId", sparql.Literal(rec.CaseID))
	triple("cvd:memilikiNama", sparql.Literal(rec.PatientName))
	triple("cvd:diagnosisTime", sparql.TypedLiteral(rec.Timestamp.UTC().Format(time.RFC3339Nano), "dateTime"))
	if rec.Report != nil {
		for _, d := range rec.Report.Diagnoses {
			triple("cvd:hasRecentDiagnosis", sparql.Literal(d.Name))
		}
		for _, m := range rec.Report.Medications {
			triple("cvd:hasRecommendedMedication", sparql.Literal(m.Name))
		}
		for _, c := range rec.Report.Contraindications {
			triple("cvd:hasContraindication", sparql.Literal(c.Drug))
		}
		triple("cvd:hasRecentRiskCategory", sparql.Literal(rec.Report.RiskCategory.Label))
		triple("cvd:hasRecentSeverity", sparql.Literal(rec.Report.Severity))
		triple("cvd:hasRulesFired", sparql.TypedLiteral(strconv.Itoa(rec.Report.RulesFired), "integer"))
		triple("cvd:isEmergency", sparql.TypedLiteral(strconv.FormatBool(rec.Report.Emergency), "boolean"))
		if score := rec.Report.RiskCategory.Score; score != nil {
			triple("cvd:hasRecentASCVD", sparql.TypedLiteral(strconv.FormatFloat(*score, 'f', -1, 64), "float"))
		}
	}
	triple("cvd:hasReportJSON", sparql.Literal(string(report)))
	triple("cvd:hasInputJSON", sparql.Literal(string(input)))
	b.WriteString("}\n")
	return b.String(), nil
}

func (s *TripleStore) selectRecent(limit int, filter history.Filter) string {
	var b strings.Builder
	b.WriteString(s.prefixes())
	b.WriteString(`SELECT ?id ?case ?name ?time ?report ?input WHERE {
  ?event rdf:type cvd:DiagnosisEvent ;
         cvd:recordId ?id ;
         cvd:caseId ?case ;
         cvd:memilikiNama ?name ;
         cvd:diagnosisTime ?time ;
         cvd:hasReportJSON ?report .
  OPTIONAL { ?event cvd:hasInputJSON ?input }
`)
	if filter.Patient != "" {
		p := sparql.Literal(filter.Patient)
		fmt.Fprintf(&b, "  FILTER(?case = %s || ?name = %s)\n", p, p)
	}
	fmt.Fprintf(&b, "}\nORDER BY DESC(?time)\nLIMIT %d\n", limit)
	return b.String()
}

// QueryRecent implements history.Backend.
func (s *TripleStore) QueryRecent(ctx context.Context, limit int, filter history.Filter) ([]history.Record, error) {
	results, err := s.client.Query(ctx, s.selectRecent(limit, filter))
	if err != nil {
		return nil, fmt.Errorf("querying diagnosis history: %w", err)
	}

	records := make([]history.Record, 0, len(results.Rows()))
	for _, row := range results.Rows() {
		rec, err := decodeRow(row)
		if err != nil {
			s.log.WithError(err).Warn("Skipping undecodable history row")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRow(row map[string]sparql.Term) (history.Record, error) {
	rec := history.Record{
		ID:          sparql.Value(row, "id"),
		CaseID:      sparql.Value(row, "case"),
		PatientName: sparql.Value(row, "name"),
	}
	ts, err := time.Parse(time.RFC3339Nano, sparql.Value(row, "time"))
	if err != nil {
		return history.Record{}, fmt.Errorf("parsing time of %s: %w", rec.ID, err)
	}
	rec.Timestamp = ts
	if err := json.Unmarshal([]byte(sparql.Value(row, "report")), &rec.Report); err != nil {
		return history.Record{}, fmt.Errorf("decoding report of %s: %w", rec.ID, err)
	}
	if in := sparql.Value(row, "input"); in != "" && in != "null" {
		if err := json.Unmarshal([]byte(in), &rec.Input); err != nil {
			return history.Record{}, fmt.Errorf("decoding input of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}
