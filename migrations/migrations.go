// Package migrations bundles the SQL migrations of the environment store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
