package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 64
	connectWait  = 10 * time.Second
)

// Events opens the per-user event stream. It returns once the hub delivers
// to the stream, so a search started afterwards cannot miss its match. The
// channel closes when the connection drops or ctx is done. Commands may be
// sent with Send.
func (c *Client) Events(ctx context.Context) (<-chan models.Event, *EventConn, error) {
	conn, err := c.dial(ctx, "/ws")
	if err != nil {
		return nil, nil, err
	}
	out := make(chan models.Event, streamBuffer)

	conn.SetReadDeadline(time.Now().Add(connectWait))
	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("event stream not ready: %w", err)
		}
		if ev.Type == models.EventConnected {
			break
		}
		select {
		case out <- ev:
		default:
		}
	}
	conn.SetReadDeadline(time.Time{})

	go pump(ctx, conn, out)
	return out, &EventConn{conn: conn}, nil
}

// EventConn is the write side of the event stream.
type EventConn struct {
	conn *websocket.Conn
}

// Send writes one command to the hub.
func (e *EventConn) Send(cmd chathub.Command) error {
	return e.conn.WriteJSON(cmd)
}

func (e *EventConn) Close() error {
	return e.conn.Close()
}

// Observe subscribes to the session stream. The returned func closes it.
func (c *Client) Observe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error) {
	conn, err := c.dial(ctx, "/sessions/"+url.PathEscape(sessionID)+"/observe")
	if err != nil {
		return nil, nil, err
	}
	out := make(chan models.SessionEvent, streamBuffer)
	ctx, cancel := context.WithCancel(ctx)
	go pump(ctx, conn, out)
	return out, cancel, nil
}

func (c *Client) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	u := c.BaseURL + path
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	conn, resp, err := c.Dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode, Message: err.Error()}
			var e struct {
				Code  string `json:"code"`
				Error string `json:"error"`
			}
			if json.NewDecoder(resp.Body).Decode(&e) == nil {
				apiErr.Code, apiErr.Message = e.Code, e.Error
			}
			return nil, apiErr
		}
		return nil, err
	}
	return conn, nil
}

// pump decodes frames into out until the connection fails or ctx is done.
func pump[T any](ctx context.Context, conn *websocket.Conn, out chan<- T) {
	defer close(out)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var v T
		if err := conn.ReadJSON(&v); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debugf("stream read: %v", err)
			}
			return
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return
		}
	}
}
