package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyTable(t *testing.T) {
	ft := NewFrequencyTable()
	mode, count := ft.Mode()
	assert.Nil(t, mode)
	assert.Zero(t, count)
	assert.Zero(t, ft.Frequency())

	assert.Equal(t, 1, ft.Observe([]byte("b")))
	assert.Equal(t, 1, ft.Observe([]byte("a")))
	assert.Equal(t, 2, ft.Observe([]byte("a")))
	assert.Equal(t, 2, ft.Observe([]byte("b")))
	assert.Equal(t, 1, ft.Observe([]byte("c")))

	// Ties go to the candidate seen first.
	mode, count = ft.Mode()
	assert.Equal(t, []byte("b"), mode)
	assert.Equal(t, 2, count)
	assert.Equal(t, 5, ft.Total())
	assert.Equal(t, 3, ft.Distinct())
	assert.InDelta(t, 0.4, ft.Frequency(), 1e-9)
}

func TestFrequencyTableCopiesKeys(t *testing.T) {
	ft := NewFrequencyTable()
	b := []byte{1, 2, 3}
	ft.Observe(b)
	b[0] = 9
	mode, _ := ft.Mode()
	assert.Equal(t, []byte{1, 2, 3}, mode)
}

func TestStabilityTable(t *testing.T) {
	st := NewStabilityTable()
	assert.Zero(t, st.Score())

	assert.Equal(t, -1, st.Observe([]byte{0x00, 0x00}))
	assert.Equal(t, 0, st.Observe([]byte{0x00, 0x00}))
	assert.Equal(t, 1.0, st.Score())

	// Flip 8 of 16 bits.
	assert.Equal(t, 8, st.Observe([]byte{0xff, 0x00}))
	assert.Equal(t, 2, st.Comparisons())
	assert.InDelta(t, 0.75, st.Score(), 1e-9)

	// A length change restarts the table.
	assert.Equal(t, -1, st.Observe([]byte{0x01}))
	assert.Zero(t, st.Comparisons())
	assert.Zero(t, st.Score())
}

func TestStreak(t *testing.T) {
	var s streak
	require.Equal(t, 1, s.observe([]byte("x")))
	require.Equal(t, 2, s.observe([]byte("x")))
	require.Equal(t, 1, s.observe([]byte("y")))
	require.Equal(t, 2, s.observe([]byte("y")))
	require.Equal(t, 3, s.observe([]byte("y")))
}

func TestHamming(t *testing.T) {
	assert.Equal(t, 0, hamming([]byte{0xaa}, []byte{0xaa}))
	assert.Equal(t, 8, hamming([]byte{0x00}, []byte{0xff}))
	assert.Equal(t, 2, hamming([]byte{0x01, 0x80}, []byte{0x00, 0x00}))
}
