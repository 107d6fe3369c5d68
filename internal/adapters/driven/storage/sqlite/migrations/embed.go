// Package migrations ships the SQLite schema with the binary.
package migrations

import "embed"

// FS holds the numbered up and down scripts.
//
//go:embed *.sql
var FS embed.FS
