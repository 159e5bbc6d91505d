// Package config defines the layerkv configuration.
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation and directory preparation
//   - sanitize.go: Masking of secrets for logging
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// LAYERKV_ environment variables and command-line flags.
package config
