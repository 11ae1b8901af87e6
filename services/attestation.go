package services

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/tdx"
)

// ErrNoAttestation is returned when the service runs without a provider.
var ErrNoAttestation = errors.New("attestation not configured")

// Attestation binds the running service configuration, and in shared
// isolation the served challenge, to a TEE quote.
type Attestation struct {
	Type      string             `json:"type"`
	Isolation protocol.Isolation `json:"isolation"`
	Budget    int                `json:"budget"`
	// Challenge is the hex ciphertext served to every connection. Empty in
	// per-connection isolation.
	Challenge  string `json:"challenge,omitempty"`
	ReportData string `json:"report_data"`
	Quote      []byte `json:"quote"`
}

// ReportDataForChallenge commits to the isolation mode, the budget and the
// challenge ciphertext.
func ReportDataForChallenge(isolation protocol.Isolation, budget int, challenge []byte) [tdx.ReportDataSize]byte {
	h := sha3.New512()
	h.Write([]byte("tdesoracle/challenge/v1"))
	h.Write([]byte(isolation))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(budget))
	h.Write(b[:])
	h.Write(challenge)

	var rd [tdx.ReportDataSize]byte
	copy(rd[:], h.Sum(nil))
	return rd
}

// attest quotes the challenge commitment. With expected set, the quote is
// verified and must carry those measurements.
func attest(ctx context.Context, p tdx.Provider, expected tdx.Measurements, cfg *protocol.OracleConfig, challenge []byte) (*Attestation, error) {
	rd := ReportDataForChallenge(cfg.Isolation, cfg.Budget, challenge)
	quote, err := p.Attest(ctx, rd)
	if err != nil {
		return nil, fmt.Errorf("attest challenge: %w", err)
	}
	if expected != nil {
		m, err := p.Verify(quote, rd)
		if err != nil {
			return nil, fmt.Errorf("verify own quote: %w", err)
		}
		if err := m.Match(expected); err != nil {
			return nil, err
		}
	}
	return &Attestation{
		Type:       p.AttestationType(),
		Isolation:  cfg.Isolation,
		Budget:     cfg.Budget,
		Challenge:  hex.EncodeToString(challenge),
		ReportData: hex.EncodeToString(rd[:]),
		Quote:      quote,
	}, nil
}

// VerifyAttestation recomputes the report data from a and checks the quote
// with p. A non-empty served challenge must match a.Challenge, and the quoted
// measurements must match expected when it is non-nil.
func VerifyAttestation(p tdx.Provider, a *Attestation, served []byte, expected tdx.Measurements) (tdx.Measurements, error) {
	if a == nil {
		return nil, ErrNoAttestation
	}
	challenge, err := hex.DecodeString(a.Challenge)
	if err != nil {
		return nil, fmt.Errorf("decode attested challenge: %w", err)
	}
	if len(served) > 0 && hex.EncodeToString(served) != a.Challenge {
		return nil, errors.New("served challenge differs from attested challenge")
	}
	rd := ReportDataForChallenge(a.Isolation, a.Budget, challenge)
	if hex.EncodeToString(rd[:]) != a.ReportData {
		return nil, errors.New("report data does not match attested fields")
	}
	m, err := p.Verify(a.Quote, rd)
	if err != nil {
		return nil, err
	}
	if err := m.Match(expected); err != nil {
		return nil, err
	}
	return m, nil
}
