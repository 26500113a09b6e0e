// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the migrations under postgres/, in golang-migrate file naming
//
//go:embed postgres/*.sql
var FS embed.FS
