// Package client recovers the challenge plaintext from a noisy decryption
// oracle.
//
// Conn speaks the line protocol over TCP. Recoverer drives any
// protocol.Session through the recovery state machine:
//
//	disconnected -> connected -> challenge_fetched -> querying
//	    -> {stable_found | budget_exhausted | error} -> submitting
//	    -> {success | mismatch} -> closed
//
// The primary scan aggregates observations in a FrequencyTable and a
// StabilityTable and stops early on a streak of identical outputs or when
// both confidence thresholds are met; otherwise it returns the most frequent
// candidate. If the scan fails, a fallback pass on a fresh session accepts
// the first candidate seen FallbackThreshold times. Transport failures are
// RetryableError values; reconnects are bounded by RetryPolicy and discard
// the observations of the lost session.
//
// With StrategyConfig.Complement set, the client queries the bitwise
// complement of the challenge ciphertext. Whenever the oracle's corruption
// mask covers the whole key, the oracle key is the complement of the real
// key, and the reply is the challenge plaintext with its first block
// complemented. That reply is the only one that recurs, so the mode is
// correct after undoing the first block.
package client
