package session

import "errors"

var (
	ErrNotFound        = errors.New("session not found")
	ErrNotParticipant  = errors.New("user is not a participant of this session")
	ErrParticipantBusy = errors.New("participant already bound to a session")
	ErrSelfPairing     = errors.New("a session needs two distinct participants")
	ErrWrongMode       = errors.New("operation not supported in this session mode")

	// signaling
	ErrNotInitiator = errors.New("only the initiator may publish the offer")
	ErrNotResponder = errors.New("only the responder may publish the answer")
	ErrOfferExists  = errors.New("offer already published")
	ErrAnswerExists = errors.New("answer already published")
	ErrNoOffer      = errors.New("no offer to answer yet")

	// chat
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
)
