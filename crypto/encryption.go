package crypto

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// BlockSize is the DES block size in bytes.
	BlockSize = des.BlockSize

	// KeySize is the 3DES-EDE key length in bytes (three independent DES keys).
	KeySize = 24

	// KeyBits is the number of addressable key bits, parity bits included.
	KeyBits = KeySize * 8
)

// ErrBlockAlignment is returned when input is not a whole number of blocks.
var ErrBlockAlignment = errors.New("input is not a multiple of the block size")

// EncryptCBC encrypts plaintext with 3DES-CBC. The plaintext must already be
// block aligned; no padding is applied.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newTripleDES(key, iv)
	if err != nil {
		return nil, err
	}
	if len(plaintext)%BlockSize != 0 {
		return nil, ErrBlockAlignment
	}

	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptCBC decrypts ciphertext with 3DES-CBC. An empty ciphertext yields
// an empty plaintext.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newTripleDES(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, ErrBlockAlignment
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func newTripleDES(key, iv []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length %d, want %d", len(key), KeySize)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("invalid iv length %d, want %d", len(iv), BlockSize)
	}
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return block, nil
}

// Complement returns a copy of b with every bit inverted.
func Complement(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = ^b[i]
	}
	return out
}

// ComplementPrefix inverts the first n bytes of b in place.
func ComplementPrefix(b []byte, n int) {
	for i := 0; i < n && i < len(b); i++ {
		b[i] = ^b[i]
	}
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return buf, nil
}

// Wipe zeroes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
