package handler

import (
	"net/http"

	"randomchat/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Heartbeat(c *gin.Context) {
	if err := h.Hub.Presence.Heartbeat(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) OnlineCount(c *gin.Context) {
	n, err := h.Hub.Presence.OnlineCount(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": n})
}

// GetPresence returns the presence record of any user. Unknown users read
// as offline.
func (h *Handler) GetPresence(c *gin.Context) {
	rec, err := h.Hub.Presence.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
