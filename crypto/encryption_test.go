package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCBCRejectsBadInput(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, BlockSize)

	_, err := DecryptCBC(key, iv, []byte("short"))
	require.ErrorIs(t, err, ErrBlockAlignment)

	_, err = EncryptCBC(key, iv, make([]byte, 12))
	require.ErrorIs(t, err, ErrBlockAlignment)

	_, err = DecryptCBC(key[:16], iv, make([]byte, 8))
	require.Error(t, err)

	_, err = DecryptCBC(key, iv[:4], make([]byte, 8))
	require.Error(t, err)
}

func TestDecryptEmpty(t *testing.T) {
	pt, err := DecryptCBC(make([]byte, KeySize), make([]byte, BlockSize), nil)
	require.NoError(t, err)
	require.Empty(t, pt)
}

func TestParityBitsIgnored(t *testing.T) {
	m, err := DeriveMaterial([]byte("parity"), 16)
	require.NoError(t, err)

	ct, err := m.Encrypted()
	require.NoError(t, err)

	// Flipping only parity bits leaves the key schedule unchanged.
	pt, err := DecryptCBC(SeedMask().Apply(m.Key), m.IV, ct)
	require.NoError(t, err)
	require.Equal(t, m.Challenge, pt)
}

func TestWrongKeyGarbles(t *testing.T) {
	m, err := DeriveMaterial([]byte("garble"), 16)
	require.NoError(t, err)

	ct, err := m.Encrypted()
	require.NoError(t, err)

	var mask BitMask
	mask.Set(1)
	pt, err := DecryptCBC(mask.Apply(m.Key), m.IV, ct)
	require.NoError(t, err)
	require.False(t, bytes.Equal(m.Challenge[:BlockSize], pt[:BlockSize]))
}

func TestComplement(t *testing.T) {
	in := []byte{0x00, 0xff, 0x0f}
	require.Equal(t, []byte{0xff, 0x00, 0xf0}, Complement(in))
	require.Equal(t, []byte{0x00, 0xff, 0x0f}, in)

	b := []byte{0x00, 0x00, 0x00}
	ComplementPrefix(b, 2)
	require.Equal(t, []byte{0xff, 0xff, 0x00}, b)
	ComplementPrefix(b, 10)
	require.Equal(t, []byte{0x00, 0x00, 0xff}, b)
}
