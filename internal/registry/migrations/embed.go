// Package migrations embeds the registry schema so the binary carries it.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time. Every file
// must be idempotent because all of them run on each open.
//
//go:embed *.sql
var FS embed.FS
