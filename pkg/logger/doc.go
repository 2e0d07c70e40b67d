// Package logger builds the application's structured slog logger with a
// configurable level, text output for development and JSON for prod.
package logger
