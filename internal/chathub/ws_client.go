package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Command is what a websocket client may send on its event stream.
type Command struct {
	Type   string      `json:"type"` // find | cancel | end | message | typing | heartbeat
	Mode   models.Mode `json:"mode,omitempty"`
	Text   string      `json:"text,omitempty"`
	Typing bool        `json:"typing,omitempty"`
}

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Event

	closeOnce sync.Once
}

func NewWebSocketClient(userID string, conn *websocket.Conn, hub *ManagerService) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Event, sendBuffer),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("error reading from %s: %v", c.UserID, err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logger.Debugf("bad command from %s: %v", c.UserID, err)
			continue // Пропускаємо невірне повідомлення
		}
		if err := c.handle(cmd); err != nil {
			c.Hub.Notify(models.Event{Type: models.EventError, RecipientID: c.UserID, Content: err.Error()})
		}
	}
}

func (c *WebSocketClient) handle(cmd Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch cmd.Type {
	case "find":
		return c.Hub.FindStranger(ctx, c.UserID, cmd.Mode)
	case "cancel":
		c.Hub.CancelSearch(c.UserID)
	case "end":
		_, err := c.Hub.EndSession(c.UserID)
		return err
	case "message", "typing":
		sess, ok := c.Hub.CurrentSession(c.UserID)
		if !ok {
			return ErrNoSession
		}
		if cmd.Type == "typing" {
			return c.Hub.SetTyping(sess.ID, c.UserID, cmd.Typing)
		}
		_, err := c.Hub.SendMessage(sess.ID, c.UserID, cmd.Text)
		return err
	case "heartbeat":
		if c.Hub.Presence != nil {
			return c.Hub.Presence.Heartbeat(ctx, c.UserID)
		}
	default:
		logger.Debugf("unknown command %q from %s", cmd.Type, c.UserID)
	}
	return nil
}

// writePump читає події з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				logger.Debugf("write to %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
