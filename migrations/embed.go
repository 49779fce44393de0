// Package migrations embeds the ledger's postgres schema migrations.
package migrations

import "embed"

// FS holds the golang-migrate *.up.sql / *.down.sql pairs
//
//go:embed *.sql
var FS embed.FS
