package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store/storetest"
)

func reaction(target, key string) chat.ReactionEvent {
	return chat.ReactionEvent{
		RoomID:        "!room1:hs",
		EventID:       "$reaction-1",
		SenderUserID:  "@agent:hs",
		Key:           key,
		TargetEventID: target,
		ReceivedAt:    time.Now().UTC(),
	}
}

func TestHandleReactionRoom1FinalStartsCleanup(t *testing.T) {
	db := storetest.New()
	svc := NewService(db, db, db)
	ctx := context.Background()

	require.NoError(t, svc.Expect(ctx, "case-1", models.StageRoom1Final, "!room1:hs", "$final"))

	require.NoError(t, svc.HandleReaction(ctx, reaction("$final", "👍")))

	jobs := db.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobCleanupCase, jobs[0].Type)
	assert.Equal(t, []string{models.EventReactionMatched}, db.Events("case-1"))

	// Redelivery matches nothing and enqueues nothing.
	require.NoError(t, svc.HandleReaction(ctx, reaction("$final", "👍")))
	assert.Len(t, db.Jobs(), 1)
	assert.Len(t, db.Events("case-1"), 1)
}

func TestHandleReactionRoom2AckIsAuditOnly(t *testing.T) {
	db := storetest.New()
	svc := NewService(db, db, db)
	ctx := context.Background()

	require.NoError(t, svc.Expect(ctx, "case-2", models.StageRoom2Ack, "!room2:hs", "$widget"))
	require.NoError(t, svc.HandleReaction(ctx, chat.ReactionEvent{
		RoomID: "!room2:hs", EventID: "$r", SenderUserID: "@doc:hs",
		Key: "👍🏽", TargetEventID: "$widget", ReceivedAt: time.Now().UTC(),
	}))

	assert.Empty(t, db.Jobs())
	assert.Equal(t, []string{models.EventReactionMatched}, db.Events("case-2"))

	cp, err := db.GetByTarget(ctx, "!room2:hs", "$widget")
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointPositiveReceived, cp.Outcome)
}

func TestHandleReactionIgnoresNegativeAndUntracked(t *testing.T) {
	db := storetest.New()
	svc := NewService(db, db, db)
	ctx := context.Background()

	require.NoError(t, svc.Expect(ctx, "case-3", models.StageRoom1Final, "!room1:hs", "$final"))

	// Wrong key: stays pending.
	require.NoError(t, svc.HandleReaction(ctx, reaction("$final", "👎")))
	cp, err := db.GetByTarget(ctx, "!room1:hs", "$final")
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointPending, cp.Outcome)

	// Untracked target: dropped silently.
	require.NoError(t, svc.HandleReaction(ctx, reaction("$unknown", "👍")))
	assert.Empty(t, db.Jobs())
}
