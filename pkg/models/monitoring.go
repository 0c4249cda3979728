package models

import (
	"encoding/json"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
)

// CaseFilter narrows the monitoring case list. Zero values mean "no filter";
// From/To are UTC half-open instants computed by the monitoring service from
// inclusive day parameters.
type CaseFilter struct {
	Status *lifecycle.Status
	From   *time.Time
	To     *time.Time
	Page   int
	Size   int
}

// CaseListItem is one row of the monitoring case list, ordered by most
// recent activity first.
type CaseListItem struct {
	CaseID             string
	Status             lifecycle.Status
	AgencyRecordNumber *string
	DoctorDecision     *DoctorDecision
	AppointmentStatus  *AppointmentStatus
	CreatedAt          time.Time
	LatestActivityAt   time.Time
}

// CaseList is a page of monitoring results plus the unpaged total.
type CaseList struct {
	Items []CaseListItem
	Total int
	Page  int
	Size  int
}

// TimelineEntry is one item of a case's unified activity timeline. Entries
// from the journal, tracked messages, transcripts, and checkpoints are merged
// and sorted by time ascending.
type TimelineEntry struct {
	Source     string // event | message | transcript | checkpoint
	Label      string
	RoomID     *string
	EventID    *string
	Payload    json.RawMessage
	HappenedAt time.Time
}

// CaseDetail is the full monitoring view of one case.
type CaseDetail struct {
	Case        Case
	Timeline    []TimelineEntry
	Checkpoints []ReactionCheckpoint
}

// DailySummary is the windowed activity roll-up for the dashboard.
type DailySummary struct {
	From             time.Time
	To               time.Time
	PatientsReceived int
	ReportsProcessed int
	CasesEvaluated   int
	Accepted         int
	Refused          int
}
