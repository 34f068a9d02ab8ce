package handler

import (
	"net/http"
	"strconv"

	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sdpRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

func (h *Handler) CurrentSession(c *gin.Context) {
	sess, ok := h.Hub.CurrentSession(middleware.GetUserID(c))
	if !ok {
		h.fail(c, chathub.ErrNoSession)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) EndSession(c *gin.Context) {
	if err := h.Hub.EndSessionByID(c.Param("id"), middleware.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PublishOffer(c *gin.Context) {
	var req sdpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err := h.Hub.PublishOffer(c.Param("id"), middleware.GetUserID(c), req.SDP); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PublishAnswer(c *gin.Context) {
	var req sdpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err := h.Hub.PublishAnswer(c.Param("id"), middleware.GetUserID(c), req.SDP); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AppendCandidate relays one ICE candidate. Seq and From are assigned by
// the relay; the stored candidate is returned.
func (h *Handler) AppendCandidate(c *gin.Context) {
	var req models.Candidate
	if err := c.ShouldBindJSON(&req); err != nil || req.Candidate == "" {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	stored, err := h.Hub.AppendCandidate(c.Param("id"), middleware.GetUserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// Signaling is the polling alternative to /observe: offer, answer and the
// partner's candidates with Seq greater than ?after=.
func (h *Handler) Signaling(c *gin.Context) {
	after := 0
	if v := c.Query("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.abort(c, http.StatusBadRequest, "error.bad_request")
			return
		}
		after = n
	}
	sig, err := h.Hub.Signaling(c.Param("id"), middleware.GetUserID(c), after)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (h *Handler) Messages(c *gin.Context) {
	msgs, err := h.Hub.Messages(c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	msg, err := h.Hub.SendMessage(c.Param("id"), middleware.GetUserID(c), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) SetTyping(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err := h.Hub.SetTyping(c.Param("id"), middleware.GetUserID(c), req.Typing); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History returns the archived chat of a finished or live session.
func (h *Handler) History(c *gin.Context) {
	history, err := h.Hub.History(c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
