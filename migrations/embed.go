// Package migrations carries the daemon's SQL schema, compiled into the
// binary so deployments need no schema files on disk.
//
// Files are numbered schema steps applied in order by
// database.ApplySchema. Steps are additive-only: never edit a shipped
// step, add a new one.
package migrations

import "embed"

// Files holds every schema step at the root of the package.
//
//go:embed *.sql
var Files embed.FS
