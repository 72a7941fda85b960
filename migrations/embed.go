// Package migrations embeds the SQL schema migrations applied by database.RunMigrations.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files in golang-migrate naming order.
//
//go:embed *.sql
var FS embed.FS
