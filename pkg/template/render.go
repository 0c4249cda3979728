package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// ProcessingAck is the room-1 reply posted when a PDF is accepted.
const ProcessingAck = "processing..."

// RenderRoom1FinalAccepted renders the room-1 success reply. Bit-exact
// contract: downstream tooling greps these lines.
func RenderRoom1FinalAccepted(apptAt time.Time, location, instructions, caseID string) string {
	return fmt.Sprintf("✅ accepted\nappointment: %s\nlocation: %s\ninstructions: %s\ncase: %s",
		FormatBRT(apptAt), location, instructions, caseID)
}

// RenderRoom1FinalDenialTriage renders the room-1 reply for a doctor denial.
func RenderRoom1FinalDenialTriage(reason *string, caseID string) string {
	return fmt.Sprintf("❌ denied (triage)\nreason: %s\ncase: %s", orDash(reason), caseID)
}

// RenderRoom1FinalDenialAppt renders the room-1 reply for a scheduler denial.
func RenderRoom1FinalDenialAppt(reason *string, caseID string) string {
	return fmt.Sprintf("❌ denied (appointment)\nreason: %s\ncase: %s", orDash(reason), caseID)
}

// RenderRoom1FinalFailure renders the room-1 reply for an exhausted or
// fatal pipeline failure.
func RenderRoom1FinalFailure(cause, details, caseID string) string {
	return fmt.Sprintf("⚠️ processing failed\ncause: %s\ndetails: %s\ncase: %s",
		cause, details, caseID)
}

// RenderRoom2Widget renders the doctor decision widget: PDF link, summary,
// LLM suggestion, and the literal decision-template instructions the strict
// parser expects back.
func RenderRoom2Widget(pdfURI, summaryText string, suggestion *models.SuggestedAction, caseID string) string {
	var b strings.Builder
	b.WriteString("📄 Laudo: " + pdfURI + "\n\n")
	b.WriteString(strings.TrimRight(summaryText, "\n") + "\n\n")
	if suggestion != nil {
		b.WriteString(fmt.Sprintf("🤖 sugestão: %s (suporte: %s)\n",
			suggestion.Decision, suggestion.SupportRecommendation))
		if suggestion.Rationale != "" {
			b.WriteString(suggestion.Rationale + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Responda a esta mensagem com o modelo:\n")
	b.WriteString("```\n")
	b.WriteString("decision: accept|deny\n")
	b.WriteString("support_flag: none|anesthesist|anesthesist_icu\n")
	b.WriteString("reason: (opcional)\n")
	b.WriteString("case_id: " + caseID + "\n")
	b.WriteString("```")
	return b.String()
}

// RenderRoom3Request renders the scheduler request post (first of the pair).
func RenderRoom3Request(patientName, recordNumber string, support models.SupportFlag, caseID string) string {
	var b strings.Builder
	b.WriteString("📅 Solicitação de agendamento de EDA\n")
	b.WriteString("paciente: " + patientName + "\n")
	b.WriteString("registro: " + recordNumber + "\n")
	if support != models.SupportNone {
		b.WriteString("suporte: " + string(support) + "\n")
	}
	b.WriteString("caso: " + caseID)
	return b.String()
}

// RenderRoom3Template renders the reply template post (second of the pair).
// Contains the literal keyed-form tokens the scheduler parser accepts.
func RenderRoom3Template(caseID string) string {
	var b strings.Builder
	b.WriteString("Responda com o modelo:\n")
	b.WriteString("```\n")
	b.WriteString("status: confirmado\n")
	b.WriteString("data_hora: DD-MM-YYYY HH:MM BRT\n")
	b.WriteString("local: \n")
	b.WriteString("instrucoes: \n")
	b.WriteString("motivo: (se negado)\n")
	b.WriteString("caso: " + caseID + "\n")
	b.WriteString("```")
	return b.String()
}

// RenderDecisionAck renders the deterministic room-2 reply confirming a
// recorded doctor decision.
func RenderDecisionAck(decision models.DoctorDecision) string {
	return "✔️ decisão registrada: " + string(decision)
}

// RenderSchedulerAck renders the deterministic room-3 reply confirming a
// recorded scheduler outcome.
func RenderSchedulerAck(status models.AppointmentStatus) string {
	return "✔️ agendamento registrado: " + string(status)
}

// RenderParseRejection renders the in-chat reply for a template violation.
func RenderParseRejection(perr *ParseError) string {
	return "⚠️ não entendi a resposta: " + perr.Reason
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
