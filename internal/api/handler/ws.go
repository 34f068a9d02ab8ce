package handler

import (
	"context"
	"net/http"
	"time"

	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket і реєструє клієнта в хабі.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied
		logger.Debugf("upgrade for %s: %v", userID, err)
		return
	}

	client := chathub.NewWebSocketClient(userID, conn, h.Hub)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	// the client may search as soon as it reads this
	h.Hub.Notify(models.Event{Type: models.EventConnected, RecipientID: userID})
	client.Run()
}

// ObserveSession streams the session's events over a websocket. Access is
// checked before the upgrade so refusals are plain HTTP errors.
func (h *Handler) ObserveSession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx, cancel := context.WithCancel(context.Background())

	events, unsubscribe, err := h.Hub.Observe(ctx, c.Param("id"), userID)
	if err != nil {
		cancel()
		h.fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		cancel()
		logger.Debugf("upgrade for %s: %v", userID, err)
		return
	}

	go func() {
		defer cancel()
		defer unsubscribe()
		streamSession(ctx, cancel, conn, events)
	}()
}

// streamSession writes events until the stream closes or the peer goes
// away. Client frames are only read to notice the close.
func streamSession(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, events <-chan models.SessionEvent) {
	defer conn.Close()

	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
