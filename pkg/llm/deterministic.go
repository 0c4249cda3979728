package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// DeterministicClient is the offline runtime: it synthesizes schema-valid
// responses without a provider. Used in development and in end-to-end tests
// where the pipeline must run unattended.
type DeterministicClient struct{}

// NewDeterministicClient creates the offline runtime.
func NewDeterministicClient() *DeterministicClient {
	return &DeterministicClient{}
}

// Complete synthesizes a response for the requested kind.
func (c *DeterministicClient) Complete(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindStructured:
		return c.structured(req)
	case KindSuggestion:
		return c.suggestion()
	default:
		return "", fmt.Errorf("deterministic runtime: unknown kind %q", req.Kind)
	}
}

func (c *DeterministicClient) structured(req Request) (string, error) {
	report := models.StructuredReport{
		SchemaVersion:      models.ReportSchemaVersion,
		AgencyRecordNumber: req.RecordNumber,
		Patient: models.ReportPatient{
			Name: "Paciente não identificado",
			Sex:  "unknown",
		},
		EDA: models.ReportEDA{
			Procedure:  "endoscopia digestiva alta",
			Indication: firstLine(req.User),
			Urgency:    "routine",
		},
		PolicyPrecheck: models.PolicyPrecheck{Eligible: true},
		Summary: models.ReportSummary{Bullets: []string{
			"laudo processado em modo offline",
			"dados estruturados sintetizados",
			"revisão médica obrigatória",
		}},
	}
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("deterministic runtime: %w", err)
	}
	return string(data), nil
}

func (c *DeterministicClient) suggestion() (string, error) {
	action := models.SuggestedAction{
		Decision:              models.DoctorAccept,
		SupportRecommendation: models.SupportNone,
		Rationale:             "sugestão padrão do modo offline; decisão final é do médico",
	}
	data, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("deterministic runtime: %w", err)
	}
	return string(data), nil
}

// firstLine returns the first non-empty line of the rendered user prompt,
// bounded so the synthesized indication stays short.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return "indicação não informada"
}
