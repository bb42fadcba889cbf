// Package migrations embeds the SQL migration files for ember.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
