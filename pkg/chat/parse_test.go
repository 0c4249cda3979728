package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawEvent(t *testing.T, roomID, evType, eventID, sender string, content map[string]any) rawRoomEvent {
	t.Helper()
	raw, err := json.Marshal(content)
	require.NoError(t, err)
	return rawRoomEvent{
		RoomID:  roomID,
		Type:    evType,
		EventID: eventID,
		Sender:  sender,
		TS:      1766400000000,
		Content: raw,
	}
}

func TestParseEventPDFAttachment(t *testing.T) {
	ev := rawEvent(t, "!r1:hs", "m.room.message", "$e1", "@agent:hs", map[string]any{
		"msgtype": "m.file",
		"body":    "laudo.pdf",
		"url":     "mxc://hs/abc",
		"info":    map[string]any{"mimetype": "application/pdf"},
	})

	parsed := parseEvent(ev)
	intake, ok := parsed.(PDFIntakeEvent)
	require.True(t, ok)
	assert.Equal(t, "mxc://hs/abc", intake.PDFSourceURI)
	assert.Equal(t, "laudo.pdf", intake.Filename)
	assert.Equal(t, "@agent:hs", intake.SenderUserID)
}

func TestParseEventPDFByExtensionOnly(t *testing.T) {
	ev := rawEvent(t, "!r1:hs", "m.room.message", "$e2", "@agent:hs", map[string]any{
		"msgtype": "m.file",
		"body":    "exam.PDF",
		"url":     "mxc://hs/def",
	})

	_, ok := parseEvent(ev).(PDFIntakeEvent)
	assert.True(t, ok)
}

func TestParseEventNonPDFFileIgnored(t *testing.T) {
	ev := rawEvent(t, "!r1:hs", "m.room.message", "$e3", "@agent:hs", map[string]any{
		"msgtype": "m.file",
		"body":    "photo.png",
		"url":     "mxc://hs/img",
		"info":    map[string]any{"mimetype": "image/png"},
	})

	assert.Nil(t, parseEvent(ev))
}

func TestParseEventTextReply(t *testing.T) {
	ev := rawEvent(t, "!r2:hs", "m.room.message", "$e4", "@doc:hs", map[string]any{
		"msgtype": "m.text",
		"body":    "decision: accept",
		"m.relates_to": map[string]any{
			"m.in_reply_to": map[string]any{"event_id": "$root"},
		},
	})

	reply, ok := parseEvent(ev).(ReplyEvent)
	require.True(t, ok)
	assert.Equal(t, "$root", reply.ParentEventID)
	assert.Equal(t, "decision: accept", reply.Body)
}

func TestParseEventReaction(t *testing.T) {
	ev := rawEvent(t, "!r2:hs", "m.reaction", "$e5", "@doc:hs", map[string]any{
		"m.relates_to": map[string]any{
			"rel_type": "m.annotation",
			"event_id": "$target",
			"key":      "👍",
		},
	})

	reaction, ok := parseEvent(ev).(ReactionEvent)
	require.True(t, ok)
	assert.Equal(t, "$target", reaction.TargetEventID)
	assert.Equal(t, "👍", reaction.Key)
	assert.False(t, reaction.ReceivedAt.IsZero())
}

func TestParseEventUnknownTypeIgnored(t *testing.T) {
	ev := rawEvent(t, "!r1:hs", "m.room.member", "$e6", "@x:hs", map[string]any{
		"membership": "join",
	})
	assert.Nil(t, parseEvent(ev))
}

func TestSplitMXC(t *testing.T) {
	server, mediaID, err := splitMXC("mxc://chat.local/abc123")
	require.NoError(t, err)
	assert.Equal(t, "chat.local", server)
	assert.Equal(t, "abc123", mediaID)

	_, _, err = splitMXC("https://chat.local/abc123")
	assert.Error(t, err)

	_, _, err = splitMXC("mxc://no-media-id")
	assert.Error(t, err)
}
