// Package log provides structured logging for meshroute using zerolog.
//
// A single global logger is initialized once via Init from daemon
// configuration; background components derive child loggers with a
// component field via Component. Background loops log recoverable
// failures (probe errors, persistence errors) and continue; nothing in
// this package or its callers terminates the process on network
// variability.
package log
