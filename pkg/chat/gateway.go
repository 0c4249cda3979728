// Package chat holds the chat gateway port, the Matrix client behind it, and
// the listener that turns raw sync events into typed intake, reply, and
// reaction events for the routing layer.
package chat

import "context"

// Gateway is the outbound chat port consumed by intake and the pipeline
// step handlers. Implementations post plain-text messages and return the
// external event id assigned by the homeserver.
type Gateway interface {
	// PostText posts a standalone message to a room.
	PostText(ctx context.Context, roomID, body string) (string, error)

	// ReplyText posts a message replying to parentEventID.
	ReplyText(ctx context.Context, roomID, parentEventID, body string) (string, error)

	// RedactEvent removes a previously posted event.
	RedactEvent(ctx context.Context, roomID, eventID, reason string) error

	// DownloadMedia fetches the bytes behind an mxc:// URI. Empty content
	// is reported as an error.
	DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error)
}
