package crypto

import (
	"encoding/hex"
	"math/bits"
)

// BitMask is a set of key bit positions in [0, KeyBits). The zero value is
// the empty mask.
type BitMask struct {
	b [KeySize]byte
}

// SeedMask returns the mask holding every 8th bit, i.e. the parity bit of
// every key byte.
func SeedMask() BitMask {
	var m BitMask
	for i := 0; i < KeyBits; i += 8 {
		m.Set(i)
	}
	return m
}

func position(i int) (byteIdx int, bit byte) {
	return KeySize - 1 - i/8, byte(1) << (i % 8)
}

// Set adds bit i to the mask. Out of range positions are ignored.
func (m *BitMask) Set(i int) {
	if i < 0 || i >= KeyBits {
		return
	}
	idx, bit := position(i)
	m.b[idx] |= bit
}

// Has reports whether bit i is in the mask.
func (m BitMask) Has(i int) bool {
	if i < 0 || i >= KeyBits {
		return false
	}
	idx, bit := position(i)
	return m.b[idx]&bit != 0
}

// Count returns the number of bits in the mask.
func (m BitMask) Count() int {
	n := 0
	for _, v := range m.b {
		n += bits.OnesCount8(v)
	}
	return n
}

// Full reports whether every key bit is covered.
func (m BitMask) Full() bool {
	return m.Count() == KeyBits
}

// Unset returns the positions not in the mask in ascending order.
func (m BitMask) Unset() []int {
	out := make([]int, 0, KeyBits-m.Count())
	for i := 0; i < KeyBits; i++ {
		if !m.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Contains reports whether every bit of other is also in m.
func (m BitMask) Contains(other BitMask) bool {
	for i := range m.b {
		if other.b[i]&^m.b[i] != 0 {
			return false
		}
	}
	return true
}

// Apply returns key XOR mask. The key must be KeySize bytes.
func (m BitMask) Apply(key []byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		if i < KeySize {
			out[i] = key[i] ^ m.b[i]
		} else {
			out[i] = key[i]
		}
	}
	return out
}

// Bytes returns the big-endian byte form of the mask.
func (m BitMask) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, m.b[:])
	return out
}

func (m BitMask) String() string {
	return hex.EncodeToString(m.b[:])
}
