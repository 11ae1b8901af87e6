// Package protocol defines the line-oriented wire protocol spoken between the
// 3DES challenge server and recovery clients, along with the configuration
// and interfaces shared by both sides.
//
// # Wire Format
//
// Every message is a single newline-terminated line of text. Binary payloads
// are lowercase hex without separators. After connecting, and after every
// completed operation, the server sends the four line menu:
//
//	Choose an API option
//	1. Fetch challenge
//	2. Decrypt
//	3. Reveal Random String
//
// The client answers with one option code:
//
//	1  server replies with the hex encrypted challenge
//	2  server sends "(hex) ct:", reads one hex ciphertext line and replies
//	   with the hex plaintext (empty when the ciphertext is not block aligned)
//	3  server sends "(hex) pt:", reads one hex plaintext line and replies with
//	   the secret payload or "Not quite right", then closes the session
//
// Malformed hex is answered with "Invalid hex input" and unknown options with
// "Invalid option"; both keep the session open. "Out of balance" reports an
// exhausted decryption budget and is followed by the server closing the
// connection.
//
// # Framing
//
// Readers must not count lines to skip the menu. ReadResponse collects reply
// lines until it sees the menu header, a terminal message, or the connection
// closes.
package protocol
