package models

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"` // "offer" | "answer"
	SDP  string `json:"sdp"`
}

// Candidate is an ICE candidate in RTCIceCandidateInit form, plus the relay
// bookkeeping fields Seq and From.
type Candidate struct {
	Seq              int     `json:"seq"`
	From             string  `json:"from"`
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}
