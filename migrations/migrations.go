package migrations

import "embed"

// FS holds the bun SQL migrations: <version>_<name>.tx.up.sql and
// .tx.down.sql pairs, statements separated by --bun:split.
//
//go:embed *.sql
var FS embed.FS
