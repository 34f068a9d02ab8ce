package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/presence"
	"randomchat/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtCfg = &config.JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "test"}

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	hub    *chathub.ManagerService
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := presence.NewRegistry(presence.NewMemoryStore(), time.Minute)
	hub := chathub.NewManagerService(session.NewStore(50*time.Millisecond), reg, nil, time.Minute, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	h := NewHandler(hub, nil, jwtCfg, nil)
	return &testAPI{hub: hub, router: NewRouter(h, nil)}
}

func (a *testAPI) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// login returns a token and the anonymous id behind it.
func (a *testAPI) login(t *testing.T) (string, string) {
	t.Helper()
	w := a.do(t, http.MethodGet, "/anonid", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AnonIDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.AnonID
}

// pair matches two fresh users in mode and returns (initiator, responder)
// tokens with the session.
func (a *testAPI) pair(t *testing.T, mode models.Mode) (string, string, models.Session) {
	t.Helper()
	tokA, _ := a.login(t)
	tokB, _ := a.login(t)

	require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/search", tokA, gin.H{"mode": mode}).Code)
	require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/search", tokB, gin.H{"mode": mode}).Code)

	var sess models.Session
	require.Eventually(t, func() bool {
		w := a.do(t, http.MethodGet, "/sessions/current", tokA, nil)
		if w.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(w.Body.Bytes(), &sess) == nil
	}, time.Second, 5*time.Millisecond)

	// the later arrival is the initiator
	return tokB, tokA, sess
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAPI_RequiresToken(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, "/search", "", gin.H{"mode": "video"}).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/sessions/current", "nope", nil).Code)
}

func TestAPI_SearchValidation(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t)

	w := a.do(t, http.MethodPost, "/search", tok, gin.H{"mode": "audio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error.invalid_mode", decodeError(t, w).Code)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/search", tok, nil).Code)
}

func TestAPI_CancelSearch(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t)

	require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/search", tok, gin.H{"mode": "text"}).Code)
	require.Eventually(t, func() bool { return len(a.hub.Matcher.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	w := a.do(t, http.MethodDelete, "/search", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"canceled": true}`, w.Body.String())

	w = a.do(t, http.MethodDelete, "/search", tok, nil)
	assert.JSONEq(t, `{"canceled": false}`, w.Body.String())
}

func TestAPI_VideoSignaling(t *testing.T) {
	a := newTestAPI(t)
	initiator, responder, sess := a.pair(t, models.ModeVideo)
	base := "/sessions/" + sess.ID

	w := a.do(t, http.MethodPost, base+"/answer", responder, gin.H{"sdp": "early"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "error.no_offer", decodeError(t, w).Code)

	w = a.do(t, http.MethodPost, base+"/offer", responder, gin.H{"sdp": "v=0"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "error.not_initiator", decodeError(t, w).Code)

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, base+"/offer", initiator, gin.H{"sdp": "offer-sdp"}).Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, base+"/offer", initiator, gin.H{"sdp": "again"}).Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, base+"/answer", responder, gin.H{"sdp": "answer-sdp"}).Code)

	w = a.do(t, http.MethodPost, base+"/candidates", initiator, gin.H{"candidate": "candidate:1", "sdpMid": "0"})
	require.Equal(t, http.StatusCreated, w.Code)
	var stored models.Candidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, 1, stored.Seq)
	require.NotNil(t, stored.SDPMid)
	assert.Equal(t, "0", *stored.SDPMid)

	a.do(t, http.MethodPost, base+"/candidates", initiator, gin.H{"candidate": "candidate:2"})

	var sig session.Signal
	w = a.do(t, http.MethodGet, base+"/signaling?after=1", responder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sig))
	require.NotNil(t, sig.Offer)
	assert.Equal(t, "offer-sdp", sig.Offer.SDP)
	require.NotNil(t, sig.Answer)
	require.Len(t, sig.Candidates, 1)
	assert.Equal(t, "candidate:2", sig.Candidates[0].Candidate)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, base+"/signaling?after=x", responder, nil).Code)

	// chat is refused in a video session
	w = a.do(t, http.MethodPost, base+"/messages", initiator, gin.H{"text": "hi"})
	assert.Equal(t, "error.wrong_mode", decodeError(t, w).Code)
}

func TestAPI_TextChat(t *testing.T) {
	a := newTestAPI(t)
	initiator, responder, sess := a.pair(t, models.ModeText)
	base := "/sessions/" + sess.ID

	w := a.do(t, http.MethodPost, base+"/messages", initiator, gin.H{"text": "  hello  "})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "hello", msg.Text)

	w = a.do(t, http.MethodPost, base+"/messages", responder, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error.empty_message", decodeError(t, w).Code)

	w = a.do(t, http.MethodPost, base+"/messages", responder, gin.H{"text": strings.Repeat("x", config.MaxMessageLength+1)})
	assert.Equal(t, "error.message_too_long", decodeError(t, w).Code)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, base+"/typing", responder, gin.H{"typing": true}).Code)

	w = a.do(t, http.MethodGet, base+"/messages", responder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, msg.ID, list.Messages[0].ID)

	// outsiders see nothing
	stranger, _ := a.login(t)
	w = a.do(t, http.MethodGet, base+"/messages", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_EndSession(t *testing.T) {
	a := newTestAPI(t)
	initiator, responder, sess := a.pair(t, models.ModeText)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/sessions/"+sess.ID, responder, nil).Code)

	w := a.do(t, http.MethodGet, "/sessions/current", initiator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error.no_session", decodeError(t, w).Code)

	w = a.do(t, http.MethodDelete, "/sessions/"+sess.ID, initiator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_LocalizedErrors(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/current", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	resp := decodeError(t, w)
	assert.Equal(t, "error.no_session", resp.Code)
	assert.Equal(t, "Ви не в розмові.", resp.Error)

	w = a.do(t, http.MethodGet, "/sessions/current?lang=de", tok, nil)
	assert.Equal(t, "You are not in a conversation.", decodeError(t, w).Error)
}

func TestAPI_Presence(t *testing.T) {
	a := newTestAPI(t)
	tok, id := a.login(t)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/presence/heartbeat", tok, nil).Code)

	w := a.do(t, http.MethodGet, "/presence/"+id, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.PresenceRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Online)

	w = a.do(t, http.MethodGet, "/presence/online", tok, nil)
	assert.JSONEq(t, `{"online": 1}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/presence/nobody", tok, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.False(t, rec.Online)
}

func TestAPI_History_NoArchive(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t)

	w := a.do(t, http.MethodGet, "/sessions/x_y/history", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func dial(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAPI_EventStream(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	tokA, idA := a.login(t)
	tokB, _ := a.login(t)
	conn := dial(t, srv, "/ws", tokA)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first models.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, models.EventConnected, first.Type)
	_, ok := a.hub.Client(idA)
	require.True(t, ok, "registered before connected is sent")

	require.NoError(t, conn.WriteJSON(chathub.Command{Type: "find", Mode: models.ModeText}))
	require.Eventually(t, func() bool { return len(a.hub.Matcher.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, "/search", tokB, gin.H{"mode": "text"}).Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == models.EventMatchFound {
			assert.NotEmpty(t, ev.SessionID)
			assert.False(t, ev.Initiator)
			return
		}
	}
}

func TestAPI_ObserveSession(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	initiator, responder, sess := a.pair(t, models.ModeVideo)
	base := "/sessions/" + sess.ID
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, base+"/offer", initiator, gin.H{"sdp": "offer-sdp"}).Code)

	conn := dial(t, srv, base+"/observe", responder)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev models.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.SessionOffer, ev.Type, "state is replayed first")

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, base, initiator, nil).Code)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.SessionEnded, ev.Type)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "stream closes after ended")
}

func TestAPI_ObserveRefusedBeforeUpgrade(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t)

	w := a.do(t, http.MethodGet, "/sessions/a_b/observe", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_RateLimited(t *testing.T) {
	a := newTestAPI(t)
	h := NewHandler(a.hub, nil, jwtCfg, nil)
	r := NewRouter(h, middleware.NewInMemoryRateLimiter(1, time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/anonid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anonid", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAPI_TypingDoesNotThrottleMessages(t *testing.T) {
	a := newTestAPI(t)
	initiator, _, sess := a.pair(t, models.ModeText)
	a.router = NewRouter(NewHandler(a.hub, nil, jwtCfg, nil), middleware.NewInMemoryRateLimiter(3, time.Minute))
	base := "/sessions/" + sess.ID

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, base+"/typing", initiator, gin.H{"typing": true}).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodPut, base+"/typing", initiator, gin.H{"typing": true}).Code)

	w := a.do(t, http.MethodPost, base+"/messages", initiator, gin.H{"text": "still allowed"})
	assert.Equal(t, http.StatusCreated, w.Code)
}
