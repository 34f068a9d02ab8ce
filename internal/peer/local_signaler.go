package peer

import (
	"context"
	"errors"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"
)

// LocalSignaler talks to an in-process hub on behalf of UserID.
type LocalSignaler struct {
	Hub    *chathub.ManagerService
	UserID string
}

func (s *LocalSignaler) PublishOffer(_ context.Context, sessionID, sdp string) error {
	return s.Hub.PublishOffer(sessionID, s.UserID, sdp)
}

func (s *LocalSignaler) PublishAnswer(_ context.Context, sessionID, sdp string) error {
	return s.Hub.PublishAnswer(sessionID, s.UserID, sdp)
}

func (s *LocalSignaler) AppendCandidate(_ context.Context, sessionID string, c models.Candidate) error {
	_, err := s.Hub.AppendCandidate(sessionID, s.UserID, c)
	return err
}

func (s *LocalSignaler) Observe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error) {
	return s.Hub.Observe(ctx, sessionID, s.UserID)
}

// Leave withdraws any pending search and ends the session if it is still
// the user's current one. Already gone is not an error.
func (s *LocalSignaler) Leave(_ context.Context, sessionID string) error {
	s.Hub.CancelSearch(s.UserID)
	err := s.Hub.EndSessionByID(sessionID, s.UserID)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, chathub.ErrNoSession) {
		return nil
	}
	return err
}
