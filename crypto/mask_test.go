package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedMask(t *testing.T) {
	m := SeedMask()
	require.Equal(t, KeySize, m.Count())
	for i, b := range m.Bytes() {
		require.Equal(t, byte(0x01), b, "byte %d", i)
	}
	require.False(t, m.Full())
	require.Len(t, m.Unset(), KeyBits-KeySize)
}

func TestMaskBitNumbering(t *testing.T) {
	var m BitMask
	m.Set(0)
	m.Set(9)
	m.Set(191)

	b := m.Bytes()
	require.Equal(t, byte(0x01), b[KeySize-1])
	require.Equal(t, byte(0x02), b[KeySize-2])
	require.Equal(t, byte(0x80), b[0])
	require.True(t, m.Has(9))
	require.False(t, m.Has(8))
	require.Equal(t, 3, m.Count())

	m.Set(-1)
	m.Set(KeyBits)
	require.Equal(t, 3, m.Count())
	require.False(t, m.Has(KeyBits))
}

func TestMaskFullAndContains(t *testing.T) {
	var m BitMask
	for i := 0; i < KeyBits; i++ {
		require.False(t, m.Full())
		m.Set(i)
	}
	require.True(t, m.Full())
	require.Empty(t, m.Unset())
	require.True(t, m.Contains(SeedMask()))
	require.False(t, SeedMask().Contains(m))

	key := make([]byte, KeySize)
	for _, b := range m.Apply(key) {
		require.Equal(t, byte(0xff), b)
	}
}

func TestMaskApplyDoesNotMutate(t *testing.T) {
	key := make([]byte, KeySize)
	key[3] = 0x10
	m := SeedMask()

	out := m.Apply(key)
	require.Equal(t, byte(0x11), out[3])
	require.Equal(t, byte(0x10), key[3])
	require.Equal(t, "010101010101010101010101010101010101010101010101", m.String())
}
