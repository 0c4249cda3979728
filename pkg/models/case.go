// Package models defines the typed records exchanged between stores,
// services, and handlers. Storage keeps structured payloads as opaque JSON;
// these types are the boundary contracts.
package models

import (
	"encoding/json"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
)

// DoctorDecision is the triage decision recorded from room 2.
type DoctorDecision string

// SupportFlag is the requested anesthesia support level.
type SupportFlag string

// AppointmentStatus is the scheduler outcome recorded from room 3.
type AppointmentStatus string

const (
	DoctorAccept DoctorDecision = "accept"
	DoctorDeny   DoctorDecision = "deny"

	SupportNone           SupportFlag = "none"
	SupportAnesthesist    SupportFlag = "anesthesist"
	SupportAnesthesistICU SupportFlag = "anesthesist_icu"

	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentDenied    AppointmentStatus = "denied"
)

// Case is the mutable triage case row. Created by intake, mutated only by
// pipeline step handlers under transition guards, never deleted.
type Case struct {
	ID     string
	Status lifecycle.Status

	Room1OriginRoomID  string
	Room1OriginEventID string
	Room1SenderUserID  string

	PDFSourceURI       string
	ExtractedText      *string
	AgencyRecordNumber *string

	StructuredData  json.RawMessage
	SuggestedAction json.RawMessage

	DoctorDecision  *DoctorDecision
	DoctorSupport   *SupportFlag
	DoctorReason    *string
	DoctorDecidedAt *time.Time

	AppointmentStatus       *AppointmentStatus
	AppointmentAt           *time.Time
	AppointmentLocation     *string
	AppointmentInstructions *string
	AppointmentReason       *string
	AppointmentDecidedAt    *time.Time

	Room1FinalReplyEventID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCaseParams carries the fields intake supplies when creating a case.
type NewCaseParams struct {
	CaseID             string
	Room1OriginRoomID  string
	Room1OriginEventID string
	Room1SenderUserID  string
	PDFSourceURI       string
}

// SchedulerOutcome is the parsed room-3 reply applied to a case.
type SchedulerOutcome struct {
	Status       AppointmentStatus
	At           *time.Time
	Location     *string
	Instructions *string
	Reason       *string
}
