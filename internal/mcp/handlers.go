package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/internal/service"
)

// Tool names.
const (
	ToolDiagnoseCase          = "diagnose_case"
	ToolGetHistory            = "get_history"
	ToolKnowledgeStats        = "knowledge_stats"
	ToolParameterDescriptions = "parameter_descriptions"
	ToolCalculateScores       = "calculate_scores"
)

const maxHistoryLimit = 500

func numberProps(keys ...string) map[string]*jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(keys))
	for _, k := range keys {
		props[k] = &jsonschema.Schema{Type: "number"}
	}
	return props
}

func flagProps(keys ...string) map[string]*jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(keys))
	for _, k := range keys {
		props[k] = &jsonschema.Schema{Type: "boolean"}
	}
	return props
}

func (s *Server) registerTools() {
	demographics := objectSchema("Patient demographics", map[string]*jsonschema.Schema{
		"name":   {Type: "string"},
		"age":    {Type: "number"},
		"gender": {Type: "string", Description: "male/female (L/P accepted)"},
	})

	s.register(&mcp.Tool{
		Name:        ToolDiagnoseCase,
		Description: "Run a cardiovascular case through the expert system and return the diagnosis report",
		InputSchema: objectSchema("Clinical case; every section is optional", map[string]*jsonschema.Schema{
			"demographics": demographics,
			"vitals":       objectSchema("Bedside measurements", numberProps("sbp", "dbp", "hr", "bmi", "weight", "height")),
			"labs": objectSchema("Laboratory results", numberProps(
				"fbg", "hba1c", "ldl", "hdl", "total_chol", "triglycerides", "ef", "troponin",
				"gfr", "creatinine", "potassium", "bnp", "nt_probnp")),
			"scores":   objectSchema("Precomputed risk scores", numberProps("ascvd", "cha2ds2vasc", "hasbled")),
			"symptoms": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Symptom tags such as nyeri_dada or sesak_napas"},
			"comorbid": objectSchema("Comorbidity flags", flagProps("asthma", "pregnancy", "liver_disease")),
			"history":  objectSchema("History flags", flagProps("cad", "smoking")),
		}),
	}, s.diagnoseCase)

	s.register(&mcp.Tool{
		Name:        ToolGetHistory,
		Description: "List recent diagnoses, newest first",
		InputSchema: objectSchema("History query", map[string]*jsonschema.Schema{
			"limit":   {Type: "integer", Description: "Maximum records (default 50)"},
			"patient": {Type: "string", Description: "Patient name or case id"},
			"format":  {Type: "string", Enum: []any{"full", "flat"}},
		}),
	}, s.getHistory)

	s.register(&mcp.Tool{
		Name:        ToolKnowledgeStats,
		Description: "Count classes, properties, individuals and rules in the knowledge base",
		InputSchema: objectSchema("No arguments", map[string]*jsonschema.Schema{}),
	}, s.knowledgeStats)

	s.register(&mcp.Tool{
		Name:        ToolParameterDescriptions,
		Description: "Label and description of every accepted input field",
		InputSchema: objectSchema("No arguments", map[string]*jsonschema.Schema{}),
	}, s.parameterDescriptions)

	scoreProps := numberProps("creatinine", "gfr", "total_chol", "hdl", "sbp", "dbp", "fbg", "hba1c")
	scoreProps["age"] = &jsonschema.Schema{Type: "integer"}
	scoreProps["gender"] = &jsonschema.Schema{Type: "string"}
	scoreProps["race"] = &jsonschema.Schema{Type: "string"}
	for k, v := range flagProps("on_hypertension_treatment", "smoker", "heart_failure", "stroke_history",
		"vascular_disease", "liver_disease", "bleeding_history", "labile_inr", "antiplatelet", "alcohol") {
		scoreProps[k] = v
	}
	s.register(&mcp.Tool{
		Name:        ToolCalculateScores,
		Description: "Compute eGFR, ASCVD 10-year risk, CHA2DS2-VASc and HAS-BLED from raw inputs",
		InputSchema: objectSchema("Score inputs; scores with incomplete inputs are omitted", scoreProps),
	}, s.calculateScores)
}

func (s *Server) diagnoseCase(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var raw map[string]any
	if err := decodeArgs(req, &raw); err != nil {
		return errorResult(err), nil
	}
	if raw == nil {
		raw = map[string]any{}
	}

	report, err := s.deps.Diagnosis.Diagnose(ctx, raw)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return errorResult(ve), nil
		}
		s.logger.WithError(err).Error("Diagnosis tool failed")
		return errorResult(fmt.Errorf("diagnosis failed: %w", err)), nil
	}
	return jsonResult(report)
}

type historyArgs struct {
	Limit   int    `json:"limit"`
	Patient string `json:"patient"`
	Format  string `json:"format"`
}

func (s *Server) getHistory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args historyArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	if args.Limit < 0 {
		return errorResult(domain.NewValidationError("limit", "must be positive", args.Limit)), nil
	}
	if args.Limit == 0 {
		args.Limit = s.defaultLimit
	}
	args.Limit = min(args.Limit, maxHistoryLimit)

	records := s.deps.History.QueryRecent(ctx, args.Limit, history.Filter{Patient: strings.TrimSpace(args.Patient)})
	if records == nil {
		records = []history.Record{}
	}
	if args.Format == "flat" {
		return jsonResult(history.Summaries(records))
	}
	return jsonResult(records)
}

func (s *Server) knowledgeStats(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.deps.Knowledge.Stats()
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(stats)
}

func (s *Server) parameterDescriptions(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.deps.Knowledge.Descriptions())
}

func (s *Server) calculateScores(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args service.ScoreRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(s.deps.Scores.Calculate(args))
}
