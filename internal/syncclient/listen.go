package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Event is a message pushed by the server over the listen channel.
type Event struct {
	Type string `json:"type"`
}

// EventSyncNeeded asks the device to run a sync pass soon.
const EventSyncNeeded = "sync-needed"

// Listen connects to the server push channel and calls onEvent for every
// message until the connection drops or ctx is cancelled. onConnect runs once
// the connection is established.
func (c *Client) Listen(ctx context.Context, onConnect func(), onEvent func(Event)) error {
	u := c.BaseURL + "/sync/listen"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AuthToken)
	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("dial listen: %w", ErrUnauthorized)
		}
		return fmt.Errorf("dial listen: %w", err)
	}
	defer conn.CloseNow()

	if onConnect != nil {
		onConnect()
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			return fmt.Errorf("read listen: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		onEvent(ev)
	}
}
