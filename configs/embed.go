// Package configs provides the embedded configuration template for
// kestrel. The template is embedded at build time so `kestrel config
// init` works in every distribution of the binary.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `kestrel config init`.
//
//go:embed kestrel.example.yaml
var ConfigTemplate string
