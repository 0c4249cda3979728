package template

import (
	"strings"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// DoctorReply is the parsed room-2 decision template.
type DoctorReply struct {
	Decision    models.DoctorDecision
	SupportFlag models.SupportFlag
	Reason      *string
	CaseID      string
}

// decisionAliases maps normalized decision values (English and Portuguese)
// to the canonical decision.
var decisionAliases = map[string]models.DoctorDecision{
	"accept":  models.DoctorAccept,
	"aceitar": models.DoctorAccept,
	"aceito":  models.DoctorAccept,
	"aceita":  models.DoctorAccept,
	"deny":    models.DoctorDeny,
	"negar":   models.DoctorDeny,
	"negado":  models.DoctorDeny,
}

// supportAliases maps normalized support_flag values to the canonical flag.
var supportAliases = map[string]models.SupportFlag{
	"none":            models.SupportNone,
	"nenhum":          models.SupportNone,
	"anesthesist":     models.SupportAnesthesist,
	"anestesista":     models.SupportAnesthesist,
	"anesthesist_icu": models.SupportAnesthesistICU,
	"anestesista_icu": models.SupportAnesthesistICU,
	"anestesista_uti": models.SupportAnesthesistICU,
}

// doctorKeys are the only recognized template keys, in rendered order.
var doctorKeys = map[string]bool{
	"decision":     true,
	"support_flag": true,
	"reason":       true,
	"case_id":      true,
}

// ParseDoctorReply parses a room-2 decision reply against the strict
// template grammar. expectedCaseID is the case the replied-to widget
// belongs to.
func ParseDoctorReply(body, expectedCaseID string) (*DoctorReply, *ParseError) {
	fields := map[string]string{}

	sawContent := false
	for _, line := range strings.Split(body, "\n") {
		if ignorableLine(line) {
			continue
		}
		sawContent = true

		key, value, ok := splitKeyValue(line)
		if !ok {
			continue // free text around the template
		}
		if !doctorKeys[key] {
			return nil, parseErr(ReasonUnknownField, key)
		}
		if _, dup := fields[key]; dup {
			return nil, parseErr(ReasonDuplicateField, key)
		}
		fields[key] = value
	}
	if !sawContent {
		return nil, parseErr(ReasonEmptyMessage, "")
	}

	for _, required := range []string{"decision", "support_flag", "case_id"} {
		if _, ok := fields[required]; !ok {
			return nil, parseErr(MissingFieldReason(required), "")
		}
	}

	decision, ok := decisionAliases[normalizeValue(fields["decision"])]
	if !ok {
		return nil, parseErr(ReasonInvalidDecision, fields["decision"])
	}

	support, ok := supportAliases[normalizeValue(fields["support_flag"])]
	if !ok {
		return nil, parseErr(ReasonInvalidSupport, fields["support_flag"])
	}
	if decision == models.DoctorDeny && support != models.SupportNone {
		return nil, parseErr(ReasonSupportForDeny, string(support))
	}

	caseID := findUUID(fields["case_id"])
	if caseID == "" {
		return nil, parseErr(ReasonInvalidCaseLine, fields["case_id"])
	}
	if !strings.EqualFold(caseID, expectedCaseID) {
		return nil, parseErr(ReasonCaseIDMismatch, caseID)
	}

	return &DoctorReply{
		Decision:    decision,
		SupportFlag: support,
		Reason:      normalizeReason(fields["reason"]),
		CaseID:      expectedCaseID,
	}, nil
}

// RenderDoctorReply renders a reply in the canonical template grammar.
// Parsing the rendered form yields the original value back.
func RenderDoctorReply(r *DoctorReply) string {
	reason := "(opcional)"
	if r.Reason != nil {
		reason = *r.Reason
	}
	var b strings.Builder
	b.WriteString("decision: " + string(r.Decision) + "\n")
	b.WriteString("support_flag: " + string(r.SupportFlag) + "\n")
	b.WriteString("reason: " + reason + "\n")
	b.WriteString("case_id: " + r.CaseID)
	return b.String()
}
