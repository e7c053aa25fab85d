// Package main hosts the mediaferry CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, opens the record store and
// hands work to the workflow manager (run), or reads the store directly for
// reporting (status, records, history). logs tails the log file, validate
// runs the preflight checks, and config scaffolds and checks the TOML file.
//
// Exit status is zero only when every invoked stage finished without
// per-file failures.
package main
