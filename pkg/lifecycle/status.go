// Package lifecycle defines the case status enumeration and the strict
// transition table every status mutation must pass through.
package lifecycle

import "fmt"

// Status is the lifecycle state of a triage case.
type Status string

// Case statuses, in pipeline order.
const (
	StatusNew                 Status = "NEW"
	StatusR1AckProcessing     Status = "R1_ACK_PROCESSING"
	StatusExtracting          Status = "EXTRACTING"
	StatusLLMStruct           Status = "LLM_STRUCT"
	StatusLLMSuggest          Status = "LLM_SUGGEST"
	StatusR2PostWidget        Status = "R2_POST_WIDGET"
	StatusWaitDoctor          Status = "WAIT_DOCTOR"
	StatusDoctorAccepted      Status = "DOCTOR_ACCEPTED"
	StatusDoctorDenied        Status = "DOCTOR_DENIED"
	StatusR3PostRequest       Status = "R3_POST_REQUEST"
	StatusWaitAppt            Status = "WAIT_APPT"
	StatusApptConfirmed       Status = "APPT_CONFIRMED"
	StatusApptDenied          Status = "APPT_DENIED"
	StatusFailed              Status = "FAILED"
	StatusWaitR1CleanupThumbs Status = "WAIT_R1_CLEANUP_THUMBS"
	StatusCleanupRunning      Status = "CLEANUP_RUNNING"
	StatusCleaned             Status = "CLEANED"

	// StatusR1FinalReplyPosted is a legacy value kept for compatibility with
	// historical rows. It has no successors and no handler produces it.
	StatusR1FinalReplyPosted Status = "R1_FINAL_REPLY_POSTED"
)

// transitions maps each status to its set of allowed successors.
var transitions = map[Status]map[Status]bool{
	StatusNew:             set(StatusR1AckProcessing),
	StatusR1AckProcessing: set(StatusExtracting),
	StatusExtracting:      set(StatusLLMStruct, StatusFailed),
	StatusLLMStruct:       set(StatusLLMSuggest, StatusFailed),
	StatusLLMSuggest:      set(StatusR2PostWidget, StatusFailed),
	StatusR2PostWidget:    set(StatusWaitDoctor),
	StatusWaitDoctor:      set(StatusDoctorAccepted, StatusDoctorDenied),
	StatusDoctorAccepted:  set(StatusR3PostRequest),
	StatusDoctorDenied:    set(StatusWaitR1CleanupThumbs),
	StatusR3PostRequest:   set(StatusWaitAppt),
	StatusWaitAppt:        set(StatusApptConfirmed, StatusApptDenied),
	StatusApptConfirmed:   set(StatusWaitR1CleanupThumbs),
	StatusApptDenied:      set(StatusWaitR1CleanupThumbs),
	StatusFailed:          set(StatusWaitR1CleanupThumbs),

	StatusWaitR1CleanupThumbs: set(StatusCleanupRunning),
	StatusCleanupRunning:      set(StatusCleaned),
	StatusCleaned:             {},

	StatusR1FinalReplyPosted: {},
}

func set(statuses ...Status) map[Status]bool {
	m := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// TransitionError reports an attempt to move a case along an edge that is
// not in the transition table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid case transition: %s -> %s", e.From, e.To)
}

// Valid reports whether s is a known status value.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no successors.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// AssertTransition returns a *TransitionError unless from -> to is an edge
// of the transition table.
func AssertTransition(from, to Status) error {
	if transitions[from][to] {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// Predecessors returns every status from which `to` is reachable in one
// step. Used by store verbs to express their guard as "current status must
// be one of these".
func Predecessors(to Status) []Status {
	var preds []Status
	for from, succ := range transitions {
		if succ[to] {
			preds = append(preds, from)
		}
	}
	return preds
}

// All returns every known status value, pipeline statuses first.
func All() []Status {
	return []Status{
		StatusNew, StatusR1AckProcessing, StatusExtracting, StatusLLMStruct,
		StatusLLMSuggest, StatusR2PostWidget, StatusWaitDoctor,
		StatusDoctorAccepted, StatusDoctorDenied, StatusR3PostRequest,
		StatusWaitAppt, StatusApptConfirmed, StatusApptDenied, StatusFailed,
		StatusWaitR1CleanupThumbs, StatusCleanupRunning, StatusCleaned,
		StatusR1FinalReplyPosted,
	}
}
