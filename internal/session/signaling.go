package session

import "randomchat/backend/internal/models"

// PublishOffer stores the initiator's offer. It can be written once.
func (s *Store) PublishOffer(id, from string, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, from, models.ModeVideo)
	if err != nil {
		return err
	}
	if from != st.session.Initiator() {
		return ErrNotInitiator
	}
	if st.offer != nil {
		return ErrOfferExists
	}

	st.offer = &models.SessionDescription{Type: "offer", SDP: sdp}
	ev := s.event(st, models.SessionOffer)
	ev.Description = st.offer
	st.broadcast(ev)
	return nil
}

// PublishAnswer stores the responder's answer. It needs an offer first and
// can be written once.
func (s *Store) PublishAnswer(id, from string, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, from, models.ModeVideo)
	if err != nil {
		return err
	}
	if from == st.session.Initiator() {
		return ErrNotResponder
	}
	if st.offer == nil {
		return ErrNoOffer
	}
	if st.answer != nil {
		return ErrAnswerExists
	}

	st.answer = &models.SessionDescription{Type: "answer", SDP: sdp}
	ev := s.event(st, models.SessionAnswer)
	ev.Description = st.answer
	st.broadcast(ev)
	return nil
}

// AppendCandidate adds an ICE candidate from one participant. Seq and From
// are assigned by the relay.
func (s *Store) AppendCandidate(id, from string, c models.Candidate) (models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, from, models.ModeVideo)
	if err != nil {
		return models.Candidate{}, err
	}

	st.seq++
	c.Seq = st.seq
	c.From = from
	st.candidates = append(st.candidates, c)

	ev := s.event(st, models.SessionCandidate)
	cc := c
	ev.Candidate = &cc
	st.broadcast(ev)
	return c, nil
}

// Signal is a point-in-time view of the handshake payload.
type Signal struct {
	Offer      *models.SessionDescription `json:"offer,omitempty"`
	Answer     *models.SessionDescription `json:"answer,omitempty"`
	Candidates []models.Candidate         `json:"candidates"`
}

// Signaling returns the offer, the answer and the partner's candidates with
// a sequence number greater than after. Polling clients pass the last seq
// they applied.
func (s *Store) Signaling(id, userID string, after int) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(id, userID, models.ModeVideo)
	if err != nil {
		return Signal{}, err
	}
	sig := Signal{Candidates: []models.Candidate{}}
	if st.offer != nil {
		o := *st.offer
		sig.Offer = &o
	}
	if st.answer != nil {
		a := *st.answer
		sig.Answer = &a
	}
	for _, c := range st.candidates {
		if c.From != userID && c.Seq > after {
			sig.Candidates = append(sig.Candidates, c)
		}
	}
	return sig, nil
}
