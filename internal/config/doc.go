// Package config provides the tablesync configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (backend names, policies, peers, keys)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - storage.go: Conversion into a storage.Config
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
