// Package config loads, validates, and normalizes the TOML configuration that
// drives the pipeline. Load applies defaults first, then the file, then path
// expansion, so callers always receive a complete and validated Config.
package config
