// Package migrations holds the goose SQL migrations of the Postgres schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
