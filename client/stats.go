package client

import (
	"bytes"
	"math/bits"
)

// FrequencyTable counts identical observations. Ties in Mode go to the
// candidate seen first.
type FrequencyTable struct {
	counts map[string]int
	order  []string
	total  int
}

func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{counts: make(map[string]int)}
}

// Observe records b and returns its count so far.
func (t *FrequencyTable) Observe(b []byte) int {
	k := string(b)
	if _, ok := t.counts[k]; !ok {
		t.order = append(t.order, k)
	}
	t.counts[k]++
	t.total++
	return t.counts[k]
}

// Mode returns the most frequent observation and its count, or nil and 0
// when empty.
func (t *FrequencyTable) Mode() ([]byte, int) {
	best, bestCount := "", 0
	for _, k := range t.order {
		if c := t.counts[k]; c > bestCount {
			best, bestCount = k, c
		}
	}
	if bestCount == 0 {
		return nil, 0
	}
	return []byte(best), bestCount
}

// Frequency returns the mode's share of all observations.
func (t *FrequencyTable) Frequency() float64 {
	if t.total == 0 {
		return 0
	}
	_, c := t.Mode()
	return float64(c) / float64(t.total)
}

func (t *FrequencyTable) Total() int {
	return t.total
}

func (t *FrequencyTable) Distinct() int {
	return len(t.order)
}

// StabilityTable counts, per bit position, how often a bit kept its value
// between consecutive observations.
type StabilityTable struct {
	prev        []byte
	unchanged   []int
	comparisons int
}

func NewStabilityTable() *StabilityTable {
	return &StabilityTable{}
}

// Observe compares b with the previous observation and returns the number
// of bits that flipped. An observation of a different length restarts the
// table and returns -1.
func (t *StabilityTable) Observe(b []byte) int {
	if t.prev == nil || len(t.prev) != len(b) {
		t.prev = bytes.Clone(b)
		t.unchanged = make([]int, len(b)*8)
		t.comparisons = 0
		return -1
	}
	flipped := hamming(t.prev, b)

	for i := range b {
		same := ^(t.prev[i] ^ b[i])
		for bit := 0; bit < 8; bit++ {
			if same&(0x80>>bit) != 0 {
				t.unchanged[i*8+bit]++
			}
		}
	}
	copy(t.prev, b)
	t.comparisons++
	return flipped
}

// Score returns the average per-bit stability in [0, 1].
func (t *StabilityTable) Score() float64 {
	if t.comparisons == 0 || len(t.unchanged) == 0 {
		return 0
	}
	sum := 0
	for _, n := range t.unchanged {
		sum += n
	}
	return float64(sum) / float64(t.comparisons*len(t.unchanged))
}

// Comparisons returns the number of consecutive pairs compared.
func (t *StabilityTable) Comparisons() int {
	return t.comparisons
}

// hamming returns the number of differing bits between equal-length a and b.
func hamming(a, b []byte) int {
	n := 0
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

// streak tracks runs of identical consecutive observations.
type streak struct {
	last []byte
	run  int
}

// observe records b and returns the current run length.
func (s *streak) observe(b []byte) int {
	if s.last != nil && bytes.Equal(s.last, b) {
		s.run++
		return s.run
	}
	s.last = bytes.Clone(b)
	s.run = 1
	return s.run
}
