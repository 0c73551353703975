// Package schema embeds and applies the JSON schema of the op-reporter
// config file.
package schema

import "embed"

// FS contains the embedded schema files.
//
//go:embed *.schema.json
var FS embed.FS
