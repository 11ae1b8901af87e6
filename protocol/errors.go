package protocol

import "errors"

var (
	// ErrBudgetExhausted is returned once the decryption budget is used up.
	// It is fatal for the session.
	ErrBudgetExhausted = errors.New("out of balance")

	// ErrMismatch is returned by reveal when the plaintext is wrong.
	ErrMismatch = errors.New("not quite right")

	// ErrInvalidInput reports malformed hex.
	ErrInvalidInput = errors.New("invalid hex input")

	// ErrInvalidOption reports an unknown option code.
	ErrInvalidOption = errors.New("invalid option")

	// ErrRateLimited is returned when the server refuses the connection.
	ErrRateLimited = errors.New("too many connections")

	// ErrUnexpectedResponse reports a reply that does not fit the protocol.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrSessionClosed is returned when using a session after reveal.
	ErrSessionClosed = errors.New("session closed")

	// ErrLineTooLong is returned when a peer sends more than MaxLineLength bytes
	// without a newline.
	ErrLineTooLong = errors.New("line too long")
)

// ErrorForLine maps a fixed server error line to its sentinel error, or nil.
func ErrorForLine(line string) error {
	switch line {
	case MsgBudgetExhausted:
		return ErrBudgetExhausted
	case MsgMismatch:
		return ErrMismatch
	case MsgInvalidHex:
		return ErrInvalidInput
	case MsgInvalidOption:
		return ErrInvalidOption
	case MsgRateLimited:
		return ErrRateLimited
	}
	return nil
}
