package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
)

// sessionHandler runs the menu loop for one connection.
type sessionHandler struct {
	oracle protocol.Oracle
	lc     *protocol.LineConn
	record *protocol.SessionRecord
	log    *slog.Logger
}

// run serves requests until the session ends. A non-empty outcome means the
// protocol ended the session; otherwise err describes the transport failure.
func (h *sessionHandler) run(ctx context.Context) (protocol.SessionOutcome, error) {
	for {
		if err := h.lc.WriteMenu(); err != nil {
			return "", err
		}

		line, err := h.lc.ReadLine()
		if err != nil {
			return "", err
		}

		var outcome protocol.SessionOutcome
		option, convErr := strconv.Atoi(strings.TrimSpace(line))
		switch {
		case convErr != nil:
			err = h.lc.WriteLine(protocol.MsgInvalidOption)
		case option == protocol.OptionFetchChallenge:
			err = h.fetchChallenge(ctx)
		case option == protocol.OptionDecrypt:
			outcome, err = h.decrypt(ctx)
		case option == protocol.OptionReveal:
			outcome, err = h.reveal(ctx)
		default:
			err = h.lc.WriteLine(protocol.MsgInvalidOption)
		}

		if err != nil {
			return outcome, err
		}
		if outcome != "" {
			return outcome, nil
		}
	}
}

func (h *sessionHandler) fetchChallenge(ctx context.Context) error {
	ct, err := h.oracle.FetchChallenge(ctx)
	if err != nil {
		return err
	}
	return h.lc.WriteLine(protocol.EncodeHex(ct))
}

// readHex prompts for and reads one hex line. ok is false when the line was
// malformed and the error reply has already been sent.
func (h *sessionHandler) readHex(prompt string) (b []byte, ok bool, err error) {
	if err := h.lc.WriteLine(prompt); err != nil {
		return nil, false, err
	}
	line, err := h.lc.ReadLine()
	if err != nil {
		return nil, false, err
	}
	b, err = protocol.DecodeHex(line)
	if err != nil {
		return nil, false, h.lc.WriteLine(protocol.MsgInvalidHex)
	}
	return b, true, nil
}

func (h *sessionHandler) decrypt(ctx context.Context) (protocol.SessionOutcome, error) {
	ct, ok, err := h.readHex(protocol.CiphertextPrompt)
	if !ok {
		return "", err
	}

	pt, err := h.oracle.Decrypt(ctx, ct)
	if errors.Is(err, protocol.ErrBudgetExhausted) {
		h.log.Info("decryption budget exhausted", "session", h.record.ID)
		return protocol.OutcomeBudgetExhausted, h.lc.WriteLine(protocol.MsgBudgetExhausted)
	}
	if err != nil {
		return "", err
	}

	h.record.Decrypts++
	return "", h.lc.WriteLine(protocol.EncodeHex(pt))
}

// reveal is one-shot: the session ends after any well-formed submission.
func (h *sessionHandler) reveal(ctx context.Context) (protocol.SessionOutcome, error) {
	pt, ok, err := h.readHex(protocol.PlaintextPrompt)
	if !ok {
		return "", err
	}
	h.record.CandidateFingerprint = crypto.Fingerprint(pt)

	payload, err := h.oracle.Reveal(ctx, pt)
	if errors.Is(err, protocol.ErrMismatch) {
		return protocol.OutcomeMismatch, h.lc.WriteLine(protocol.MsgMismatch)
	}
	if err != nil {
		return "", err
	}
	return protocol.OutcomeRevealed, h.lc.WriteLine(strings.TrimRight(string(payload), "\r\n"))
}
