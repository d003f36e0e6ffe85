// Package config loads, normalizes, and validates brewcore configuration.
//
// Settings come from a TOML file (see sample_config.toml) layered over
// repository defaults, then BREWCORE_* environment variables. Paths are
// expanded, including tilde shortcuts, before validation.
package config
