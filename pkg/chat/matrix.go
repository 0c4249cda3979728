package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatrixClient is a thin wrapper over the Matrix client-server HTTP API.
// Only the small surface the workflow needs is implemented: text posts,
// replies, redactions, media download, and long-poll sync.
type MatrixClient struct {
	homeserverURL string
	accessToken   string
	botUserID     string
	http          *http.Client
	logger        *slog.Logger
}

// MatrixConfig configures the Matrix client.
type MatrixConfig struct {
	HomeserverURL  string
	AccessToken    string
	BotUserID      string
	RequestTimeout time.Duration
}

// NewMatrixClient creates a Matrix API client.
func NewMatrixClient(cfg MatrixConfig) *MatrixClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MatrixClient{
		homeserverURL: strings.TrimRight(cfg.HomeserverURL, "/"),
		accessToken:   cfg.AccessToken,
		botUserID:     cfg.BotUserID,
		http:          &http.Client{Timeout: timeout},
		logger:        slog.Default().With("component", "matrix-client"),
	}
}

// BotUserID returns the bot's own Matrix user id. The listener uses it to
// skip self-originated events.
func (c *MatrixClient) BotUserID() string { return c.botUserID }

type matrixError struct {
	Errcode string `json:"errcode"`
	Error_  string `json:"error"`
}

func (c *MatrixClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding matrix request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.homeserverURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building matrix request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("matrix %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading matrix response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var merr matrixError
		_ = json.Unmarshal(raw, &merr)
		return fmt.Errorf("matrix %s %s: status %d %s %s",
			method, path, resp.StatusCode, merr.Errcode, merr.Error_)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding matrix response: %w", err)
		}
	}
	return nil
}

type sendResponse struct {
	EventID string `json:"event_id"`
}

// PostText posts a plain-text message to a room.
func (c *MatrixClient) PostText(ctx context.Context, roomID, body string) (string, error) {
	return c.send(ctx, roomID, map[string]any{
		"msgtype": "m.text",
		"body":    body,
	})
}

// ReplyText posts a plain-text message replying to parentEventID.
func (c *MatrixClient) ReplyText(ctx context.Context, roomID, parentEventID, body string) (string, error) {
	return c.send(ctx, roomID, map[string]any{
		"msgtype": "m.text",
		"body":    body,
		"m.relates_to": map[string]any{
			"m.in_reply_to": map[string]any{"event_id": parentEventID},
		},
	})
}

func (c *MatrixClient) send(ctx context.Context, roomID string, content map[string]any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID), uuid.NewString())
	var resp sendResponse
	if err := c.do(ctx, http.MethodPut, path, content, &resp); err != nil {
		return "", err
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("matrix send returned no event id")
	}
	return resp.EventID, nil
}

// RedactEvent removes a previously posted event from a room.
func (c *MatrixClient) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID), url.PathEscape(eventID), uuid.NewString())
	content := map[string]any{}
	if reason != "" {
		content["reason"] = reason
	}
	return c.do(ctx, http.MethodPut, path, content, nil)
}

// DownloadMedia fetches the bytes behind an mxc://server/mediaID URI.
func (c *MatrixClient) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	server, mediaID, err := splitMXC(mxcURI)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/_matrix/media/v3/download/%s/%s",
		url.PathEscape(server), url.PathEscape(mediaID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.homeserverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media %s: %w", mxcURI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading media %s: status %d", mxcURI, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading media %s: %w", mxcURI, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media %s is empty", mxcURI)
	}
	return data, nil
}

func splitMXC(mxcURI string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(mxcURI, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("not an mxc uri: %q", mxcURI)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" {
		return "", "", fmt.Errorf("malformed mxc uri: %q", mxcURI)
	}
	return server, mediaID, nil
}

// SyncBatch is one page of typed events from /sync.
type SyncBatch struct {
	NextBatch string
	Messages  []rawRoomEvent
}

type rawRoomEvent struct {
	RoomID  string
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	Sender  string          `json:"sender"`
	TS      int64           `json:"origin_server_ts"`
	Content json.RawMessage `json:"content"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]struct {
			Timeline struct {
				Events []rawRoomEvent `json:"events"`
			} `json:"timeline"`
		} `json:"join"`
	} `json:"rooms"`
}

// SyncOnce runs one long-poll sync. since may be empty on the first call;
// timeout is the server-side long-poll window.
func (c *MatrixClient) SyncOnce(ctx context.Context, since string, timeout time.Duration) (*SyncBatch, error) {
	q := url.Values{}
	q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if since != "" {
		q.Set("since", since)
	}

	var resp syncResponse
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/sync?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	batch := &SyncBatch{NextBatch: resp.NextBatch}
	for roomID, room := range resp.Rooms.Join {
		for _, ev := range room.Timeline.Events {
			ev.RoomID = roomID
			batch.Messages = append(batch.Messages, ev)
		}
	}
	return batch, nil
}
