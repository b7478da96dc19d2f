// Package migrations embeds the SQLite schema migrations into the binary.
package migrations

import "embed"

// FS holds every NNNN_name.{up,down}.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
