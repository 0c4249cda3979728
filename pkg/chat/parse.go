package chat

import (
	"encoding/json"
	"strings"
	"time"
)

type messageContent struct {
	MsgType  string `json:"msgtype"`
	Body     string `json:"body"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Info     struct {
		Mimetype string `json:"mimetype"`
	} `json:"info"`
	RelatesTo struct {
		RelType   string `json:"rel_type"`
		EventID   string `json:"event_id"`
		Key       string `json:"key"`
		InReplyTo struct {
			EventID string `json:"event_id"`
		} `json:"m.in_reply_to"`
	} `json:"m.relates_to"`
}

// parseEvent classifies a raw sync event into one of the typed inbound
// events. Returns nil when the event is not one the workflow handles.
func parseEvent(ev rawRoomEvent) any {
	var content messageContent
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return nil
	}
	at := time.UnixMilli(ev.TS).UTC()

	switch ev.Type {
	case "m.reaction":
		if content.RelatesTo.RelType != "m.annotation" || content.RelatesTo.EventID == "" {
			return nil
		}
		return ReactionEvent{
			RoomID:        ev.RoomID,
			EventID:       ev.EventID,
			SenderUserID:  ev.Sender,
			Key:           content.RelatesTo.Key,
			TargetEventID: content.RelatesTo.EventID,
			ReceivedAt:    at,
		}

	case "m.room.message":
		if isPDFAttachment(content) {
			return PDFIntakeEvent{
				RoomID:       ev.RoomID,
				EventID:      ev.EventID,
				SenderUserID: ev.Sender,
				PDFSourceURI: content.URL,
				Filename:     attachmentName(content),
				Mimetype:     content.Info.Mimetype,
			}
		}
		if content.MsgType == "m.text" && content.Body != "" {
			return ReplyEvent{
				RoomID:        ev.RoomID,
				EventID:       ev.EventID,
				SenderUserID:  ev.Sender,
				Body:          content.Body,
				ParentEventID: content.RelatesTo.InReplyTo.EventID,
				ReceivedAt:    at,
			}
		}
	}
	return nil
}

// isPDFAttachment reports whether a message carries a PDF file: an mxc URL
// with a PDF mimetype or a .pdf name.
func isPDFAttachment(content messageContent) bool {
	if content.MsgType != "m.file" || content.URL == "" {
		return false
	}
	if strings.EqualFold(content.Info.Mimetype, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(attachmentName(content)), ".pdf")
}

func attachmentName(content messageContent) string {
	if content.Filename != "" {
		return content.Filename
	}
	return content.Body
}
