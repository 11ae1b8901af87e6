package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// Material is the secret state an oracle is created with.
type Material struct {
	Key       []byte // KeySize bytes
	IV        []byte // BlockSize bytes
	Challenge []byte // challenge plaintext, block aligned
}

func validateChallengeLength(n int) error {
	if n <= 0 || n%BlockSize != 0 {
		return fmt.Errorf("challenge length %d must be a positive multiple of %d", n, BlockSize)
	}
	return nil
}

// GenerateMaterial draws fresh key material from crypto/rand.
func GenerateMaterial(challengeLen int) (*Material, error) {
	if err := validateChallengeLength(challengeLen); err != nil {
		return nil, err
	}
	buf, err := RandomBytes(KeySize + BlockSize + challengeLen)
	if err != nil {
		return nil, err
	}
	return splitMaterial(buf), nil
}

// DeriveMaterial expands seed into key material with HKDF-SHA256. The same
// seed always produces the same key, IV and challenge.
func DeriveMaterial(seed []byte, challengeLen int) (*Material, error) {
	if len(seed) == 0 {
		return nil, errors.New("empty seed")
	}
	if err := validateChallengeLength(challengeLen); err != nil {
		return nil, err
	}

	r := hkdf.New(sha256.New, seed, nil, []byte("tdesoracle material v1"))
	buf := make([]byte, KeySize+BlockSize+challengeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("expand seed: %w", err)
	}
	return splitMaterial(buf), nil
}

func splitMaterial(buf []byte) *Material {
	return &Material{
		Key:       buf[:KeySize:KeySize],
		IV:        buf[KeySize : KeySize+BlockSize : KeySize+BlockSize],
		Challenge: buf[KeySize+BlockSize:],
	}
}

// Encrypted returns the challenge encrypted under the uncorrupted key.
func (m *Material) Encrypted() ([]byte, error) {
	return EncryptCBC(m.Key, m.IV, m.Challenge)
}

// Fingerprint returns a short SHA3-256 digest of b, safe to log or store in
// place of secret values.
func Fingerprint(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
