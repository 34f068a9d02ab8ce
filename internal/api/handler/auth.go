package handler

import (
	"net/http"

	"randomchat/backend/internal/auth"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnonIDResponse is returned by GET /anonid.
type AnonIDResponse struct {
	Token  string `json:"token"`
	AnonID string `json:"anon_id"`
}

// GetAnonID створює AnonID та повертає JWT
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.NewString()

	token, err := auth.GenerateToken(h.JWT, anonID, "")
	if err != nil {
		logger.Errorf("sign token: %v", err)
		h.abort(c, http.StatusInternalServerError, "error.internal")
		return
	}

	if h.Storage != nil {
		if err := h.Storage.SaveUser(&models.User{ID: anonID}); err != nil {
			logger.Warnf("anonymous user %s not recorded: %v", anonID, err)
		}
	}

	c.JSON(http.StatusOK, AnonIDResponse{Token: token, AnonID: anonID})
}
