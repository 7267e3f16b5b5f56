// Package logger provides structured logging for tablesync.
//
// This package wraps log/slog:
//
//   - logger.go: logger construction, levels and the global default
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON, text and console (tint) output formats
//   - Rotating log files through lumberjack
//   - Log level filtering, adjustable at runtime
//   - Automatic masking of passphrases and encoded key material
//   - ULID request IDs propagated through context
package logger
