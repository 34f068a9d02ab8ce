package chathub

import "errors"

var (
	// ErrNoMatch: nobody eligible showed up within the search window.
	ErrNoMatch = errors.New("no match found, try again")
	// ErrSearchCanceled is delivered to a search that was withdrawn or
	// replaced by a newer search of the same user.
	ErrSearchCanceled = errors.New("search canceled")
	ErrInvalidMode    = errors.New("unknown chat mode")
	ErrNoSession      = errors.New("user has no active session")
	ErrMatcherStopped = errors.New("matcher is not running")
)
