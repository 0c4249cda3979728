package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store/storetest"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

type fakeGateway struct {
	posts   []string
	replies []string
	failing bool
	nextID  int
}

func (g *fakeGateway) PostText(ctx context.Context, roomID, body string) (string, error) {
	if g.failing {
		return "", errors.New("gateway down")
	}
	g.posts = append(g.posts, body)
	g.nextID++
	return "$post-" + string(rune('a'+g.nextID)), nil
}

func (g *fakeGateway) ReplyText(ctx context.Context, roomID, parentEventID, body string) (string, error) {
	if g.failing {
		return "", errors.New("gateway down")
	}
	g.replies = append(g.replies, body)
	g.nextID++
	return "$reply-" + string(rune('a'+g.nextID)), nil
}

func (g *fakeGateway) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	return nil
}

func (g *fakeGateway) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func pdfEvent(eventID string) chat.PDFIntakeEvent {
	return chat.PDFIntakeEvent{
		RoomID:       "!room1:hs",
		EventID:      eventID,
		SenderUserID: "@agent:hs",
		PDFSourceURI: "mxc://hs/pdf1",
		Filename:     "laudo.pdf",
		Mimetype:     "application/pdf",
	}
}

func TestIngestPDFEventHappyPath(t *testing.T) {
	db := storetest.New()
	gw := &fakeGateway{}
	svc := NewService(db, db, db, gw)

	result, err := svc.IngestPDFEvent(context.Background(), pdfEvent("$origin-1"))
	require.NoError(t, err)
	require.True(t, result.Processed)

	c, err := db.Get(context.Background(), result.CaseID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusR1AckProcessing, c.Status)

	require.Equal(t, []string{template.ProcessingAck}, gw.replies)

	jobs := db.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobProcessPDFCase, jobs[0].Type)

	assert.Equal(t, []string{
		models.EventRoom1PDFAccepted,
		models.EventRoom1ProcessingAck,
	}, db.Events(result.CaseID))

	msgs, err := db.ListMessageRefsForCase(context.Background(), result.CaseID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MsgRoom1Origin, msgs[0].Kind)
	assert.Equal(t, models.MsgBotProcessing, msgs[1].Kind)
}

func TestIngestPDFEventDuplicateOrigin(t *testing.T) {
	db := storetest.New()
	gw := &fakeGateway{}
	svc := NewService(db, db, db, gw)

	first, err := svc.IngestPDFEvent(context.Background(), pdfEvent("$origin-race"))
	require.NoError(t, err)
	require.True(t, first.Processed)

	second, err := svc.IngestPDFEvent(context.Background(), pdfEvent("$origin-race"))
	require.NoError(t, err)
	assert.False(t, second.Processed)
	assert.Equal(t, ReasonDuplicateOriginEvent, second.Reason)

	// Exactly one case, one job, one processing reply.
	assert.Len(t, db.Jobs(), 1)
	assert.Len(t, gw.replies, 1)
}

func TestIngestPDFEventDuplicateOriginAcrossRooms(t *testing.T) {
	db := storetest.New()
	gw := &fakeGateway{}
	svc := NewService(db, db, db, gw)

	first, err := svc.IngestPDFEvent(context.Background(), pdfEvent("$origin-shared"))
	require.NoError(t, err)
	require.True(t, first.Processed)

	// The unique index covers the origin event id alone, not (room, event).
	other := pdfEvent("$origin-shared")
	other.RoomID = "!mirror:hs"
	second, err := svc.IngestPDFEvent(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, second.Processed)
	assert.Equal(t, ReasonDuplicateOriginEvent, second.Reason)
}

func TestIngestPDFEventAckFailureStillEnqueues(t *testing.T) {
	db := storetest.New()
	gw := &fakeGateway{failing: true}
	svc := NewService(db, db, db, gw)

	result, err := svc.IngestPDFEvent(context.Background(), pdfEvent("$origin-2"))
	require.NoError(t, err)
	require.True(t, result.Processed)

	// No ack was posted, but the pipeline still starts.
	assert.Len(t, db.Jobs(), 1)
	assert.Equal(t, []string{models.EventRoom1PDFAccepted}, db.Events(result.CaseID))
}
