// Package configs provides the embedded configuration template for
// searchsync. The template is embedded at build time so `searchsync init`
// works in every distribution without shipping extra files.
package configs

import _ "embed"

// ConfigTemplate is written by `searchsync init` as searchsync.yaml.
//
//go:embed searchsync.example.yaml
var ConfigTemplate string
