package models

import (
	"encoding/json"
	"time"
)

// ActorType identifies who caused a journal entry.
type ActorType string

// Actor types.
const (
	ActorSystem ActorType = "system"
	ActorBot    ActorType = "bot"
	ActorHuman  ActorType = "human"
)

// Case event type tags appended by intake and step handlers.
const (
	EventRoom1PDFAccepted       = "ROOM1_PDF_ACCEPTED"
	EventRoom1ProcessingAck     = "ROOM1_PROCESSING_ACK_POSTED"
	EventPDFExtracted           = "PDF_TEXT_EXTRACTED"
	EventLLM1Completed          = "LLM1_STRUCTURED_COMPLETED"
	EventLLM2Completed          = "LLM2_SUGGESTION_COMPLETED"
	EventRoom2WidgetPosted      = "ROOM2_WIDGET_POSTED"
	EventDoctorDecisionRecorded = "DOCTOR_DECISION_RECORDED"
	EventDoctorReplyRejected    = "DOCTOR_REPLY_REJECTED"
	EventRoom3RequestPosted     = "ROOM3_REQUEST_POSTED"
	EventSchedulerOutcome       = "SCHEDULER_OUTCOME_RECORDED"
	EventSchedulerReplyRejected = "SCHEDULER_REPLY_REJECTED"
	EventRoom1FinalPosted       = "ROOM1_FINAL_POSTED"
	EventCaseFailed             = "CASE_FAILED"
	EventReactionMatched        = "REACTION_CHECKPOINT_MATCHED"
	EventMatrixEventRedacted    = "MATRIX_EVENT_REDACTED"
	EventMatrixRedactionFailed  = "MATRIX_EVENT_REDACTION_FAILED"
	EventCleanupCompleted       = "CLEANUP_COMPLETED"
)

// CaseEvent is one append-only journal entry for a case.
type CaseEvent struct {
	ID              int64
	CaseID          string
	ActorType       ActorType
	ActorUserID     *string
	RoomID          *string
	ExternalEventID *string
	EventType       string
	Payload         json.RawMessage
	CapturedAt      time.Time
}

// MessageKind classifies a tracked chat message for cleanup and lookups.
type MessageKind string

// Message kinds.
const (
	MsgRoom1Origin   MessageKind = "room1_origin"
	MsgBotProcessing MessageKind = "bot_processing"
	MsgRoom1Final    MessageKind = "room1_final"
	MsgRoom2Root     MessageKind = "room2_root"
	MsgRoom3Request  MessageKind = "room3_request"
	MsgRoom3Template MessageKind = "room3_template"
)

// CaseMessage is a tracked chat message belonging to a case. Append-only,
// unique on (room_id, external_event_id).
type CaseMessage struct {
	ID              int64
	CaseID          string
	RoomID          string
	ExternalEventID string
	SenderUserID    *string
	Kind            MessageKind
	CapturedAt      time.Time
}

// TranscriptKind classifies a captured transcript.
type TranscriptKind string

// Transcript kinds.
const (
	TranscriptPDFText TranscriptKind = "pdf_text"
	TranscriptLLM1    TranscriptKind = "llm1"
	TranscriptLLM2    TranscriptKind = "llm2"
)

// Transcript is a captured report or LLM exchange for a case. Report
// transcripts (pdf_text) drive the summary aggregator's reports_processed.
type Transcript struct {
	ID            int64
	CaseID        string
	Kind          TranscriptKind
	PromptName    *string
	PromptVersion *int
	Request       *string
	Response      string
	CapturedAt    time.Time
}
