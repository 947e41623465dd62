// Package migrations holds the embedded migration scripts for the resource
// SQL store. Scripts are applied in order of their numeric filename prefix.
package migrations

import "embed"

//go:embed *.sql
var All embed.FS
