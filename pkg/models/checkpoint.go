package models

import "time"

// CheckpointStage names the handoff a reaction checkpoint guards.
type CheckpointStage string

// Checkpoint stages.
const (
	StageRoom2Ack   CheckpointStage = "ROOM2_ACK"
	StageRoom3Ack   CheckpointStage = "ROOM3_ACK"
	StageRoom1Final CheckpointStage = "ROOM1_FINAL"
)

// CheckpointOutcome is the state of a reaction checkpoint.
type CheckpointOutcome string

// Checkpoint outcomes. PENDING -> POSITIVE_RECEIVED happens at most once.
const (
	CheckpointPending          CheckpointOutcome = "PENDING"
	CheckpointPositiveReceived CheckpointOutcome = "POSITIVE_RECEIVED"
)

// ReactionCheckpoint records that a positive reaction is expected on a
// posted event. Unique on (room_id, target_external_event_id).
type ReactionCheckpoint struct {
	ID                    int64
	CaseID                string
	Stage                 CheckpointStage
	RoomID                string
	TargetExternalEventID string
	ExpectedAt            time.Time
	Outcome               CheckpointOutcome

	ReactionEventID *string
	ReactionKey     *string
	ReactionUserID  *string
	ReactionAt      *time.Time
}

// ReactionMeta carries the inbound reaction fields stamped onto a matched
// checkpoint.
type ReactionMeta struct {
	EventID string
	Key     string
	UserID  string
	At      time.Time
}
