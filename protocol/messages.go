package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Option codes understood by the server.
const (
	OptionFetchChallenge = 1
	OptionDecrypt        = 2
	OptionReveal         = 3
)

// Fixed server lines.
const (
	CiphertextPrompt   = "(hex) ct:"
	PlaintextPrompt    = "(hex) pt:"
	MsgInvalidOption   = "Invalid option"
	MsgInvalidHex      = "Invalid hex input"
	MsgBudgetExhausted = "Out of balance"
	MsgMismatch        = "Not quite right"
	MsgRateLimited     = "Too many connections"
)

// Menu is the block sent on connect and after each completed operation.
var Menu = []string{
	"Choose an API option",
	"1. Fetch challenge",
	"2. Decrypt",
	"3. Reveal Random String",
}

// IsTerminal reports whether the server closes the session after line.
func IsTerminal(line string) bool {
	return line == MsgBudgetExhausted || line == MsgRateLimited
}

// EncodeHex encodes b as lowercase hex.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes a hex line, ignoring surrounding whitespace.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return b, nil
}

// SessionOutcome describes how a server session ended.
type SessionOutcome string

const (
	OutcomeRevealed        SessionOutcome = "revealed"
	OutcomeMismatch        SessionOutcome = "mismatch"
	OutcomeBudgetExhausted SessionOutcome = "budget_exhausted"
	OutcomeDisconnected    SessionOutcome = "disconnected"
	OutcomeTimeout         SessionOutcome = "timeout"
	OutcomeRateLimited     SessionOutcome = "rate_limited"
)

// SessionRecord summarizes one server session.
type SessionRecord struct {
	ID         string         `json:"id"`
	RemoteAddr string         `json:"remote_addr"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Decrypts   int            `json:"decrypts"`
	Outcome    SessionOutcome `json:"outcome"`

	// CandidateFingerprint is the SHA3 fingerprint of the plaintext submitted
	// for reveal, empty if none was submitted.
	CandidateFingerprint string `json:"candidate_fingerprint,omitempty"`
}

// Duration returns the session length.
func (r *SessionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
