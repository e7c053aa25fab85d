// Package logs reads the mediaferry log file for the CLI.
//
// Last returns the trailing lines with bounded memory; Follow polls for
// appended lines until the context ends and restarts from the top when the
// file is truncated or replaced by log rotation.
package logs
