package handler

import (
	"errors"
	"net/http"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/session"
	"randomchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{session.ErrNotFound, http.StatusNotFound, "error.session_not_found"},
	{storage.ErrRecordNotFound, http.StatusNotFound, "error.session_not_found"},
	{session.ErrNotParticipant, http.StatusForbidden, "error.not_participant"},
	{session.ErrParticipantBusy, http.StatusConflict, "error.participant_busy"},
	{session.ErrSelfPairing, http.StatusBadRequest, "error.bad_request"},
	{session.ErrWrongMode, http.StatusConflict, "error.wrong_mode"},
	{session.ErrNotInitiator, http.StatusForbidden, "error.not_initiator"},
	{session.ErrNotResponder, http.StatusForbidden, "error.not_responder"},
	{session.ErrOfferExists, http.StatusConflict, "error.offer_exists"},
	{session.ErrAnswerExists, http.StatusConflict, "error.answer_exists"},
	{session.ErrNoOffer, http.StatusConflict, "error.no_offer"},
	{session.ErrEmptyMessage, http.StatusBadRequest, "error.empty_message"},
	{session.ErrMessageTooLong, http.StatusBadRequest, "error.message_too_long"},
	{chathub.ErrInvalidMode, http.StatusBadRequest, "error.invalid_mode"},
	{chathub.ErrNoSession, http.StatusNotFound, "error.no_session"},
	{chathub.ErrNoMatch, http.StatusNotFound, "error.no_match"},
	{chathub.ErrSearchCanceled, http.StatusConflict, "error.search_canceled"},
	{chathub.ErrMatcherStopped, http.StatusServiceUnavailable, "error.unavailable"},
}

// Classify maps err to an HTTP status and a localization key.
func Classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "error.internal"
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	h.abort(c, status, code)
}

func (h *Handler) abort(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Error: h.Loc.GetString(lang(c), code)})
}

// lang picks ?lang= over Accept-Language.
func lang(c *gin.Context) string {
	if l := c.Query("lang"); l != "" {
		return localization.Normalize(l)
	}
	return localization.Normalize(c.GetHeader("Accept-Language"))
}
