// Package cmd provides the tdesoracle binaries.
//
// # Commands
//
// server: Runs the decryption-oracle challenge over TCP, with optional admin
// and metrics HTTP servers.
//
//	go run ./cmd/server --config=server.yaml
//	go run ./cmd/server --listen=:4000 --secret-file=string.txt
//
// client: Recovers the challenge plaintext from a server and redeems it.
//
//	go run ./cmd/client localhost 4000
//
// demo-cli: Runs a server and several clients in one process.
//
//	go run ./cmd/demo-cli --clients=4
//
// # Configuration
//
// server and client read YAML configuration via the --config flag; flags
// override file values.
package cmd
