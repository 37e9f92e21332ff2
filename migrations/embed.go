// Package migrations embeds the SQL schema so cmd/migrate ships it in-binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
