package template

import (
	"strings"
	"sync"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// BRTLayout is the human-facing datetime form used in rooms 1 and 3.
const BRTLayout = "02-01-2006 15:04"

// brtLocation resolves America/Bahia once. BRT is a rendering and parsing
// concern only; storage is always UTC.
var brtLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("America/Bahia")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
})

// SchedulerReply is the parsed room-3 reply. CaseID is empty when the reply
// carried no case line.
type SchedulerReply struct {
	Outcome models.SchedulerOutcome
	CaseID  string
}

// schedulerKeyAliases maps Portuguese and English keys to canonical names.
var schedulerKeyAliases = map[string]string{
	"status":       "status",
	"data_hora":    "data_hora",
	"datetime":     "data_hora",
	"local":        "local",
	"location":     "local",
	"instrucoes":   "instrucoes",
	"instructions": "instrucoes",
	"motivo":       "motivo",
	"reason":       "motivo",
	"caso":         "caso",
	"case":         "caso",
	"case_id":      "caso",
}

var statusAliases = map[string]models.AppointmentStatus{
	"confirmado": models.AppointmentConfirmed,
	"confirmed":  models.AppointmentConfirmed,
	"negado":     models.AppointmentDenied,
	"denied":     models.AppointmentDenied,
}

// ParseBRTDatetime parses "DD-MM-YYYY HH:MM BRT" and returns the instant in
// UTC. The trailing BRT token is required.
func ParseBRTDatetime(s string) (time.Time, bool) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if !strings.HasSuffix(lower, " brt") {
		return time.Time{}, false
	}
	trimmed = strings.TrimSpace(trimmed[:len(trimmed)-4])

	t, err := time.ParseInLocation(BRTLayout, trimmed, brtLocation())
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// FormatBRT renders a UTC instant in the BRT human-facing form.
func FormatBRT(t time.Time) string {
	return t.In(brtLocation()).Format(BRTLayout) + " BRT"
}

// ParseSchedulerReply parses a room-3 scheduler reply. Three shapes are
// recognized: positional (line 1 is a BRT datetime), header+positional
// (line 1 is Confirmed:/Denied:), and fully keyed (status:/data_hora:/...).
func ParseSchedulerReply(body, expectedCaseID string) (*SchedulerReply, *ParseError) {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if !ignorableLine(line) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return nil, parseErr(ReasonEmptyMessage, "")
	}

	fields := map[string]string{}
	var positional []string
	for _, line := range lines {
		key, value, ok := splitKeyValue(line)
		if !ok {
			positional = append(positional, line)
			continue
		}
		canonical, known := schedulerKeyAliases[stripDiacritics(key)]
		if !known {
			// Header lines ("Confirmed:") and free text are classified
			// positionally; truly foreign keys are ignored.
			positional = append(positional, line)
			continue
		}
		if _, dup := fields[canonical]; dup {
			return nil, parseErr(ReasonDuplicateField, canonical)
		}
		fields[canonical] = value
	}

	status, perr := resolveSchedulerStatus(fields, positional)
	if perr != nil {
		return nil, perr
	}

	reply := &SchedulerReply{Outcome: models.SchedulerOutcome{Status: status}}

	if status == models.AppointmentConfirmed {
		raw, ok := fields["data_hora"]
		if !ok {
			raw, ok = firstDatetimeCandidate(positional)
		}
		if !ok {
			return nil, parseErr(MissingFieldReason("data_hora"), "")
		}
		at, parsed := ParseBRTDatetime(raw)
		if !parsed {
			return nil, parseErr(ReasonInvalidConfirmed, raw)
		}
		reply.Outcome.At = &at

		if v, ok := fields["local"]; ok && strings.TrimSpace(v) != "" {
			loc := strings.TrimSpace(v)
			reply.Outcome.Location = &loc
		}
		if v, ok := fields["instrucoes"]; ok && strings.TrimSpace(v) != "" {
			ins := strings.TrimSpace(v)
			reply.Outcome.Instructions = &ins
		}
	} else {
		reply.Outcome.Reason = normalizeReason(fields["motivo"])
	}

	if raw, ok := fields["caso"]; ok {
		caseID := findUUID(raw)
		if caseID == "" {
			return nil, parseErr(ReasonInvalidCaseLine, raw)
		}
		if !strings.EqualFold(caseID, expectedCaseID) {
			return nil, parseErr(ReasonCaseIDMismatch, caseID)
		}
		reply.CaseID = expectedCaseID
	}

	return reply, nil
}

// resolveSchedulerStatus determines confirmed/denied from the keyed status
// line, a header line, or a leading positional datetime.
func resolveSchedulerStatus(fields map[string]string, positional []string) (models.AppointmentStatus, *ParseError) {
	if raw, ok := fields["status"]; ok {
		status, known := statusAliases[normalizeValue(raw)]
		if !known {
			return "", parseErr(ReasonInvalidStatus, raw)
		}
		return status, nil
	}

	if len(positional) == 0 {
		return "", parseErr(MissingFieldReason("status"), "")
	}

	first := positional[0]
	header := normalizeValue(strings.TrimSuffix(strings.TrimSpace(strings.SplitN(first, ":", 2)[0]), ":"))
	if status, known := statusAliases[header]; known {
		// Header+positional: "Confirmed:" may carry the datetime after the
		// colon; that value lands in firstDatetimeCandidate.
		return status, nil
	}

	if _, ok := ParseBRTDatetime(first); ok {
		return models.AppointmentConfirmed, nil
	}
	return "", parseErr(ReasonInvalidConfirmed, first)
}

// firstDatetimeCandidate scans positional lines for the confirmed datetime:
// either a bare datetime line or the value after a Confirmed: header.
func firstDatetimeCandidate(positional []string) (string, bool) {
	for _, line := range positional {
		if _, ok := ParseBRTDatetime(line); ok {
			return line, true
		}
		if key, value, ok := splitKeyValue(line); ok {
			if _, isHeader := statusAliases[normalizeValue(key)]; isHeader && strings.TrimSpace(value) != "" {
				return value, true
			}
		}
	}
	return "", false
}
