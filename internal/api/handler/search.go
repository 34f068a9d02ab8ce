package handler

import (
	"net/http"

	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type searchRequest struct {
	Mode models.Mode `json:"mode" binding:"required"`
}

// StartSearch queues the caller. The outcome arrives on /ws.
func (h *Handler) StartSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err := h.Hub.FindStranger(c.Request.Context(), middleware.GetUserID(c), req.Mode); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "searching", "mode": req.Mode})
}

// CancelSearch withdraws a pending search. Nothing to withdraw is not an
// error.
func (h *Handler) CancelSearch(c *gin.Context) {
	canceled := h.Hub.CancelSearch(middleware.GetUserID(c))
	c.JSON(http.StatusOK, gin.H{"canceled": canceled})
}
