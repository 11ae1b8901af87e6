// Package crypto provides the cryptographic primitives behind the 3DES
// decryption oracle.
//
// This package implements:
//
//   - Triple-DES (EDE, 24-byte keys) in CBC mode with a caller-supplied IV
//   - BitMask, the 192-bit corruption mask XORed into the oracle key
//   - Key material generation, either random or derived from a seed with HKDF
//   - Short SHA3 fingerprints for logging and persisting candidate values
//
// # Bit Numbering
//
// Mask bit i denotes the value 2^i of the key read as a big-endian integer.
// Bit 0 is therefore the least significant bit of the last key byte, and the
// seed mask (every 8th bit) covers exactly the DES parity bits, which the key
// schedule ignores.
//
// # Complementation
//
// DES, and hence 3DES-EDE, satisfies E_{~K}(~P) = ~E_K(P). Complement is
// provided so callers can exploit this when the mask covers the whole key.
package crypto
