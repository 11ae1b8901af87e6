// Package server implements the 3DES challenge server.
//
// The Oracle holds a secret key, IV and challenge plaintext. Every decrypt
// call first corrupts the key: a random non-empty set of still unflipped bit
// positions is added to a cumulative mask, and once the mask covers the whole
// key it restarts from the parity-bit seed. The ciphertext is then decrypted
// under key XOR mask. Calls are counted against a fixed budget.
//
// Mask mutation, budget accounting and decryption happen under one mutex, so
// a single Oracle can serve any number of connections.
//
// The Server accepts TCP connections and runs the line protocol from package
// protocol on each of them with its own goroutine. Sessions are capped in
// lifetime, rate limited per remote IP, and reported through a callback when
// they end.
package server
