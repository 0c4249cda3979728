package chat

import "time"

// PDFIntakeEvent is a human-originated room-1 message carrying a PDF
// attachment. The listener emits one per qualifying event.
type PDFIntakeEvent struct {
	RoomID       string
	EventID      string
	SenderUserID string
	PDFSourceURI string
	Filename     string
	Mimetype     string
}

// ReplyEvent is a plain-text message replying to an earlier event.
type ReplyEvent struct {
	RoomID        string
	EventID       string
	SenderUserID  string
	Body          string
	ParentEventID string
	ReceivedAt    time.Time
}

// ReactionEvent is an emoji annotation targeting an earlier event.
type ReactionEvent struct {
	RoomID        string
	EventID       string
	SenderUserID  string
	Key           string
	TargetEventID string
	ReceivedAt    time.Time
}

// IntakeResult reports what intake did with a PDF event. Processed=false
// with a reason means the event was absorbed without side effects.
type IntakeResult struct {
	Processed bool
	Reason    string
	CaseID    string
}
