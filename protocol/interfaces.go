package protocol

import "context"

// Oracle exposes the three challenge operations.
type Oracle interface {
	// FetchChallenge returns the challenge encrypted under the true key.
	FetchChallenge(ctx context.Context) ([]byte, error)

	// Decrypt advances the key corruption and decrypts ciphertext under the
	// corrupted key. Ciphertext that is not block aligned yields an empty
	// plaintext. Returns ErrBudgetExhausted once the budget is spent.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)

	// Reveal returns the secret payload if plaintext equals the challenge,
	// ErrMismatch otherwise.
	Reveal(ctx context.Context, plaintext []byte) ([]byte, error)
}

// Session is an Oracle bound to a closable transport.
type Session interface {
	Oracle
	Close() error
}
