// Package migrations holds the goose SQL migrations for the users table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
