// Package common holds process-wide identifiers.
package common

// PackageName prefixes metric names and identifies the binaries in logs.
const PackageName = "tdesoracle"

// Version is set at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"
