package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

func TestDeterministicStructuredSatisfiesSchema(t *testing.T) {
	client := NewDeterministicClient()

	out, err := client.Complete(context.Background(), Request{
		Kind:         KindStructured,
		User:         "paciente com disfagia\nnumero: 12345",
		RecordNumber: "12345",
	})
	require.NoError(t, err)

	report, err := models.ParseStructuredReport([]byte(out), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.ReportSchemaVersion, report.SchemaVersion)
	assert.GreaterOrEqual(t, len(report.Summary.Bullets), 3)
	assert.LessOrEqual(t, len(report.Summary.Bullets), 8)
}

func TestDeterministicSuggestionSatisfiesSchema(t *testing.T) {
	client := NewDeterministicClient()

	out, err := client.Complete(context.Background(), Request{Kind: KindSuggestion})
	require.NoError(t, err)

	action, err := models.ParseSuggestedAction([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, models.DoctorAccept, action.Decision)
	assert.Equal(t, models.SupportNone, action.SupportRecommendation)
}

func TestDeterministicUnknownKind(t *testing.T) {
	client := NewDeterministicClient()
	_, err := client.Complete(context.Background(), Request{Kind: "other"})
	assert.Error(t, err)
}
