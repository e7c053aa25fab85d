// Package stageexec runs one stage executor over every record its gate
// selects, applying the retry policy per file and committing each outcome to
// the record store before moving on.
package stageexec
