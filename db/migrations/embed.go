// Package dbmigrations exposes the embedded SQL migrations for the execution journal.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into ctpgate binaries.
//
//go:embed *.sql
var Files embed.FS
