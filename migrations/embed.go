// Package migrations embeds the SQL migration files into the binary.
package migrations

import "embed"

// FS holds the migration files at its root.
//
//go:embed *.sql
var FS embed.FS
