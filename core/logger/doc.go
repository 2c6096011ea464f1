// Package logger is a standardized event log for shell sessions: commands
// that ran and job state changes, stored as newline delimited JSON.
package logger
