// Package migrations embeds the SQL migrations for the primary store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
