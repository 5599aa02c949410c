// Package migrations embeds the goose SQL migrations: the Postgres schema
// of the primary store and the SQLite schema of the local fallback tier.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

//go:embed local/*.sql
var Local embed.FS
