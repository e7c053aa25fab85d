// Package gate defines the stage eligibility predicates. Each predicate is a
// conjunction of flag terms rendered both as a SQL WHERE clause for the record
// store and as a pure function over records.Record, so a record selected by the
// store is always one the runner would also accept.
package gate

import (
	"strings"

	"mediaferry/internal/records"
)

type condition int

const (
	isUnset condition = iota
	notDone
	isDone
)

type term struct {
	flag records.Flag
	cond condition
}

func (t term) sql() string {
	col := t.flag.Column()
	switch t.cond {
	case isUnset:
		return col + " IS NULL"
	case notDone:
		return col + " IS NOT 'done'"
	default:
		return col + " = 'done'"
	}
}

func (t term) match(rec records.Record) bool {
	state := rec.State(t.flag)
	switch t.cond {
	case isUnset:
		return state == records.FlagUnset
	case notDone:
		return state != records.FlagDone
	default:
		return state == records.FlagDone
	}
}

// Predicate selects the records eligible for one stage.
type Predicate struct {
	name     string
	status   records.Status
	terms    []term
	failures bool
}

// Name identifies the predicate in logs.
func (p Predicate) Name() string { return p.name }

// Where renders the predicate as a SQL clause for records.Store.SelectWhere.
func (p Predicate) Where() (string, []any) {
	parts := make([]string, 0, len(p.terms)+2)
	var args []any
	if p.status != "" {
		parts = append(parts, "status = ?")
		args = append(args, string(p.status))
	}
	for _, t := range p.terms {
		parts = append(parts, t.sql())
	}
	if p.failures {
		parts = append(parts, "error_count > 0")
	}
	return strings.Join(parts, " AND "), args
}

// Match evaluates the predicate against a record in memory.
func (p Predicate) Match(rec records.Record) bool {
	if p.status != "" && rec.Status != p.status {
		return false
	}
	for _, t := range p.terms {
		if !t.match(rec) {
			return false
		}
	}
	if p.failures && rec.ErrorCount <= 0 {
		return false
	}
	return true
}

// Replica selects downloaded records whose replica copy is not yet confirmed.
// Records already copied and awaiting the sync peer (pending) stay eligible.
func Replica() Predicate {
	return Predicate{
		name:   "replica",
		status: records.StatusDownloaded,
		terms:  []term{{records.FlagReplicaConfirmed, notDone}},
	}
}

// Archive selects downloaded records not yet archived. It does not depend on
// the replica flag.
func Archive() Predicate {
	return Predicate{
		name:   "archive",
		status: records.StatusDownloaded,
		terms:  []term{{records.FlagArchiveConfirmed, notDone}},
	}
}

// Compress selects fully replicated records that have not been compressed
// and are still in the download directory. Once a record is staged for
// deletion it is never compressed, so a file kept below the savings threshold
// is not handed to the compressor again after it moved.
func Compress() Predicate {
	return Predicate{
		name: "compress",
		terms: []term{
			{records.FlagReplicaConfirmed, isDone},
			{records.FlagArchiveConfirmed, isDone},
			{records.FlagCompressed, isUnset},
			{records.FlagReadyForDelete, isUnset},
		},
	}
}

// PrepareDelete selects fully replicated records not yet staged for deletion,
// independent of compression.
func PrepareDelete() Predicate {
	return Predicate{
		name: "prepare_delete",
		terms: []term{
			{records.FlagReplicaConfirmed, isDone},
			{records.FlagArchiveConfirmed, isDone},
			{records.FlagReadyForDelete, isUnset},
		},
	}
}

// DeleteOrigin selects records staged for deletion whose origin copy remains.
func DeleteOrigin() Predicate {
	return Predicate{
		name: "delete_origin",
		terms: []term{
			{records.FlagReadyForDelete, isDone},
			{records.FlagDeletedAtOrigin, isUnset},
		},
	}
}

// Failed selects records with recorded errors that have not finished the
// pipeline.
func Failed() Predicate {
	return Predicate{
		name:     "failed",
		terms:    []term{{records.FlagDeletedAtOrigin, notDone}},
		failures: true,
	}
}

var _ records.Condition = Predicate{}
