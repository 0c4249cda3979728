package template

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

const caseID = "b7a9c1d2-3e4f-4a5b-8c6d-7e8f9a0b1c2d"

func strptr(s string) *string { return &s }

func TestParseDoctorReply(t *testing.T) {
	t.Run("parses canonical accept reply", func(t *testing.T) {
		body := "decision: accept\nsupport_flag: none\nreason: ok\ncase_id: " + caseID
		reply, perr := ParseDoctorReply(body, caseID)
		require.Nil(t, perr)
		assert.Equal(t, models.DoctorAccept, reply.Decision)
		assert.Equal(t, models.SupportNone, reply.SupportFlag)
		require.NotNil(t, reply.Reason)
		assert.Equal(t, "ok", *reply.Reason)
		assert.Equal(t, caseID, reply.CaseID)
	})

	t.Run("accepts portuguese aliases with diacritics and casing", func(t *testing.T) {
		body := "decision: ACEITAR\nsupport_flag: Anestesista_UTI\nreason: -\ncase_id: " + caseID
		reply, perr := ParseDoctorReply(body, caseID)
		require.Nil(t, perr)
		assert.Equal(t, models.DoctorAccept, reply.Decision)
		assert.Equal(t, models.SupportAnesthesistICU, reply.SupportFlag)
		assert.Nil(t, reply.Reason)
	})

	t.Run("accepts deny with nenhum", func(t *testing.T) {
		body := "decision: negar\nsupport_flag: nenhum\nreason: sem indicação\ncase_id: " + caseID
		reply, perr := ParseDoctorReply(body, caseID)
		require.Nil(t, perr)
		assert.Equal(t, models.DoctorDeny, reply.Decision)
		assert.Equal(t, models.SupportNone, reply.SupportFlag)
		assert.Equal(t, "sem indicação", *reply.Reason)
	})

	t.Run("empty markers normalize reason to absent", func(t *testing.T) {
		for _, marker := range []string{"", "-", "n/a", "(opcional)", "  "} {
			body := fmt.Sprintf("decision: accept\nsupport_flag: none\nreason: %s\ncase_id: %s", marker, caseID)
			reply, perr := ParseDoctorReply(body, caseID)
			require.Nil(t, perr, "marker %q", marker)
			assert.Nil(t, reply.Reason, "marker %q", marker)
		}
	})

	t.Run("ignores quoted context and code fences", func(t *testing.T) {
		body := "> decision: deny\n```\ndecision: accept\nsupport_flag: none\ncase_id: " + caseID + "\n```"
		reply, perr := ParseDoctorReply(body, caseID)
		require.Nil(t, perr)
		assert.Equal(t, models.DoctorAccept, reply.Decision)
	})

	t.Run("finds uuid inside decorated case line", func(t *testing.T) {
		body := "decision: accept\nsupport_flag: none\ncase_id: caso `" + caseID + "`"
		reply, perr := ParseDoctorReply(body, caseID)
		require.Nil(t, perr)
		assert.Equal(t, caseID, reply.CaseID)
	})

	errCases := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty body", "", ReasonEmptyMessage},
		{"only blank lines", "\n  \n", ReasonEmptyMessage},
		{"unknown identity key", "doctor_user_id: @dr\ndecision: accept\nsupport_flag: none\ncase_id: " + caseID, ReasonUnknownField},
		{"duplicate key", "decision: accept\ndecision: deny\nsupport_flag: none\ncase_id: " + caseID, ReasonDuplicateField},
		{"missing decision", "support_flag: none\ncase_id: " + caseID, "missing_decision_line"},
		{"missing support_flag", "decision: accept\ncase_id: " + caseID, "missing_support_flag_line"},
		{"missing case_id", "decision: accept\nsupport_flag: none", "missing_case_id_line"},
		{"bad decision value", "decision: talvez\nsupport_flag: none\ncase_id: " + caseID, ReasonInvalidDecision},
		{"bad support value", "decision: accept\nsupport_flag: muito\ncase_id: " + caseID, ReasonInvalidSupport},
		{"deny with support", "decision: deny\nsupport_flag: anesthesist\ncase_id: " + caseID, ReasonSupportForDeny},
		{"unparseable case line", "decision: accept\nsupport_flag: none\ncase_id: not-a-uuid", ReasonInvalidCaseLine},
		{"case mismatch", "decision: accept\nsupport_flag: none\ncase_id: 00000000-0000-4000-8000-000000000000", ReasonCaseIDMismatch},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			reply, perr := ParseDoctorReply(tc.body, caseID)
			require.NotNil(t, perr)
			assert.Nil(t, reply)
			assert.Equal(t, tc.reason, perr.Reason)
		})
	}
}

func TestDoctorReplyRoundTrip(t *testing.T) {
	decisions := []models.DoctorDecision{models.DoctorAccept, models.DoctorDeny}
	supports := []models.SupportFlag{models.SupportNone, models.SupportAnesthesist, models.SupportAnesthesistICU}
	reasons := []*string{nil, strptr("ok"), strptr("avaliação pré-anestésica")}

	for _, d := range decisions {
		for _, s := range supports {
			if d == models.DoctorDeny && s != models.SupportNone {
				continue // not in the grammar
			}
			for _, r := range reasons {
				in := &DoctorReply{Decision: d, SupportFlag: s, Reason: r, CaseID: caseID}
				out, perr := ParseDoctorReply(RenderDoctorReply(in), caseID)
				require.Nil(t, perr, "render: %q", RenderDoctorReply(in))
				assert.Equal(t, in, out)
			}
		}
	}
}
