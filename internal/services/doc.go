// Package services defines shared utilities consumed by the pipeline stage
// executors and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp media record IDs, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures recorded on a
//     media record carry the stage and operation that produced them.
//
// Subpackages hold the thin clients for external collaborators (Syncthing,
// the origin photo tool, transcoders).
package services
