package server

import (
	"context"
	crand "crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
)

// Rand is the randomness the oracle draws bit flips from.
type Rand interface {
	IntN(n int) int
}

// NewSecureRand returns a ChaCha8 generator seeded from crypto/rand.
func NewSecureRand() (Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed rand: %w", err)
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}

// OracleParams configures a new Oracle.
type OracleParams struct {
	// Material is the key, IV and challenge. It is copied, not retained.
	Material *crypto.Material

	// Secret is the payload returned by a successful reveal.
	Secret []byte

	// Budget is the number of decrypt calls allowed.
	Budget int

	// Rand drives key corruption. Nil selects NewSecureRand.
	Rand Rand
}

// Oracle implements protocol.Oracle over a self-corrupting 3DES key.
type Oracle struct {
	iv         []byte
	ciphertext []byte
	key        *memguard.Enclave
	challenge  *memguard.Enclave
	secret     *memguard.Enclave

	mu        sync.Mutex
	mask      crypto.BitMask
	remaining int
	rng       Rand
}

var _ protocol.Oracle = (*Oracle)(nil)

// NewOracle creates an oracle. The key, challenge and secret are sealed in
// memguard enclaves and are only decrypted for the duration of a call.
func NewOracle(params *OracleParams) (*Oracle, error) {
	if params == nil || params.Material == nil {
		return nil, errors.New("material cannot be nil")
	}
	if params.Budget < 0 {
		return nil, errors.New("budget must not be negative")
	}

	m := params.Material
	ciphertext, err := m.Encrypted()
	if err != nil {
		return nil, fmt.Errorf("encrypt challenge: %w", err)
	}

	rng := params.Rand
	if rng == nil {
		rng, err = NewSecureRand()
		if err != nil {
			return nil, err
		}
	}

	o := &Oracle{
		iv:         append([]byte(nil), m.IV...),
		ciphertext: ciphertext,
		key:        seal(m.Key),
		challenge:  seal(m.Challenge),
		secret:     seal(params.Secret),
		mask:       crypto.SeedMask(),
		remaining:  params.Budget,
		rng:        rng,
	}
	return o, nil
}

// seal copies b into an enclave; memguard wipes the buffer it is given.
// Returns nil for empty input.
func seal(b []byte) *memguard.Enclave {
	if len(b) == 0 {
		return nil
	}
	return memguard.NewEnclave(append([]byte(nil), b...))
}

func open(e *memguard.Enclave) (*memguard.LockedBuffer, error) {
	if e == nil {
		return memguard.NewBuffer(0), nil
	}
	lb, err := e.Open()
	if err != nil {
		return nil, fmt.Errorf("open enclave: %w", err)
	}
	return lb, nil
}

// FetchChallenge returns the challenge encrypted under the true key. The
// result is identical for every call.
func (o *Oracle) FetchChallenge(ctx context.Context) ([]byte, error) {
	return append([]byte(nil), o.ciphertext...), nil
}

// Decrypt spends one unit of budget, advances the corruption mask and
// decrypts ciphertext under the corrupted key. Unaligned ciphertext still
// spends budget and advances the mask, but yields an empty plaintext.
func (o *Oracle) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.remaining <= 0 {
		return nil, protocol.ErrBudgetExhausted
	}
	o.remaining--
	o.advanceMask()

	if len(ciphertext)%crypto.BlockSize != 0 {
		return []byte{}, nil
	}

	lb, err := open(o.key)
	if err != nil {
		return nil, err
	}
	defer lb.Destroy()

	corrupted := o.mask.Apply(lb.Bytes())
	defer crypto.Wipe(corrupted)

	return crypto.DecryptCBC(corrupted, o.iv, ciphertext)
}

// advanceMask must be called with o.mu held.
func (o *Oracle) advanceMask() {
	if o.mask.Full() {
		o.mask = crypto.SeedMask()
	}
	unset := o.mask.Unset()
	flips := 1 + o.rng.IntN(len(unset))
	for i := 0; i < flips; i++ {
		// Positions are drawn with replacement.
		o.mask.Set(unset[o.rng.IntN(len(unset))])
	}
}

// Reveal returns the secret payload iff plaintext equals the challenge.
func (o *Oracle) Reveal(ctx context.Context, plaintext []byte) ([]byte, error) {
	challenge, err := open(o.challenge)
	if err != nil {
		return nil, err
	}
	defer challenge.Destroy()

	if subtle.ConstantTimeCompare(challenge.Bytes(), plaintext) != 1 {
		return nil, protocol.ErrMismatch
	}

	secret, err := open(o.secret)
	if err != nil {
		return nil, err
	}
	defer secret.Destroy()
	return append([]byte{}, secret.Bytes()...), nil
}

// Remaining returns the decrypt calls left.
func (o *Oracle) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remaining
}

// Mask returns a snapshot of the current corruption mask.
func (o *Oracle) Mask() crypto.BitMask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mask
}
