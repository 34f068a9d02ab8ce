// Package client talks to the randomchat API over HTTP and websockets. It is
// what headless participants (cmd/probe) use, and it satisfies
// peer.Signaler.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"

	"github.com/gorilla/websocket"
)

const requestTimeout = 10 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

var remoteErrors = map[string]error{
	"error.session_not_found": session.ErrNotFound,
	"error.not_participant":   session.ErrNotParticipant,
	"error.participant_busy":  session.ErrParticipantBusy,
	"error.wrong_mode":        session.ErrWrongMode,
	"error.not_initiator":     session.ErrNotInitiator,
	"error.not_responder":     session.ErrNotResponder,
	"error.offer_exists":      session.ErrOfferExists,
	"error.answer_exists":     session.ErrAnswerExists,
	"error.no_offer":          session.ErrNoOffer,
	"error.empty_message":     session.ErrEmptyMessage,
	"error.message_too_long":  session.ErrMessageTooLong,
	"error.invalid_mode":      chathub.ErrInvalidMode,
	"error.no_session":        chathub.ErrNoSession,
	"error.no_match":          chathub.ErrNoMatch,
	"error.search_canceled":   chathub.ErrSearchCanceled,
	"error.unavailable":       chathub.ErrMatcherStopped,
}

// Is lets callers test remote failures against the server's sentinels.
func (e *APIError) Is(target error) bool {
	err, ok := remoteErrors[e.Code]
	return ok && err == target
}

// Client is one authenticated participant.
type Client struct {
	BaseURL string
	Token   string
	UserID  string

	HTTP   *http.Client
	Dialer *websocket.Dialer
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: requestTimeout},
		Dialer:  websocket.DefaultDialer,
	}
}

// Login obtains an anonymous identity.
func (c *Client) Login(ctx context.Context) error {
	var resp struct {
		Token  string `json:"token"`
		AnonID string `json:"anon_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/anonid", nil, &resp); err != nil {
		return err
	}
	c.Token, c.UserID = resp.Token, resp.AnonID
	return nil
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/presence/heartbeat", nil, nil)
}

// FindStranger starts a search; the outcome arrives on Events.
func (c *Client) FindStranger(ctx context.Context, mode models.Mode) error {
	return c.do(ctx, http.MethodPost, "/search", map[string]models.Mode{"mode": mode}, nil)
}

func (c *Client) CancelSearch(ctx context.Context) (bool, error) {
	var resp struct {
		Canceled bool `json:"canceled"`
	}
	err := c.do(ctx, http.MethodDelete, "/search", nil, &resp)
	return resp.Canceled, err
}

func (c *Client) CurrentSession(ctx context.Context) (models.Session, error) {
	var sess models.Session
	err := c.do(ctx, http.MethodGet, "/sessions/current", nil, &sess)
	return sess, err
}

func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) PublishOffer(ctx context.Context, sessionID, sdp string) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "offer"), map[string]string{"sdp": sdp}, nil)
}

func (c *Client) PublishAnswer(ctx context.Context, sessionID, sdp string) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "answer"), map[string]string{"sdp": sdp}, nil)
}

func (c *Client) AppendCandidate(ctx context.Context, sessionID string, cand models.Candidate) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "candidates"), cand, nil)
}

// Signaling polls the handshake state; see Observe for the push variant.
func (c *Client) Signaling(ctx context.Context, sessionID string, after int) (session.Signal, error) {
	var sig session.Signal
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s?after=%d", c.sessionPath(sessionID, "signaling"), after), nil, &sig)
	return sig, err
}

func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "messages"), map[string]string{"text": text}, &msg)
	return msg, err
}

func (c *Client) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, c.sessionPath(sessionID, "messages"), nil, &resp)
	return resp.Messages, err
}

func (c *Client) SetTyping(ctx context.Context, sessionID string, typing bool) error {
	return c.do(ctx, http.MethodPut, c.sessionPath(sessionID, "typing"), map[string]bool{"typing": typing}, nil)
}

// Leave withdraws the search and ends sessionID if it is still current.
// Already gone is not an error.
func (c *Client) Leave(ctx context.Context, sessionID string) error {
	if _, err := c.CancelSearch(ctx); err != nil {
		return err
	}
	err := c.EndSession(ctx, sessionID)
	if isGone(err) {
		return nil
	}
	return err
}

func isGone(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

func (c *Client) sessionPath(sessionID, op string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/" + op
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Code, apiErr.Message = e.Code, e.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
