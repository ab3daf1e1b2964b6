// Package config loads and validates echolink TOML configuration.
//
// Ownership boundary:
// - file shape, defaults, and key-by-key overrides
// - validation wrapped in ErrInvalidConfig
// - conversion into server, discovery, and supervisor runtime configs
// - template rendering for cmd/configgen
package config
