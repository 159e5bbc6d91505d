// Package logger builds the process logger.
//
// Loggers are plain *slog.Logger values with a shared, dynamically
// adjustable level and automatic redaction of secret-looking attributes:
//
//   - logger.go: handler construction, level control and output selection
//   - context.go: logger propagation through context.Context
//   - redact.go: sensitive attribute masking
package logger
