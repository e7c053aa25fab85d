package stage

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID names a pipeline stage.
type ID string

const (
	Download      ID = "download"
	Replica       ID = "replica"
	Archive       ID = "archive"
	Compress      ID = "compress"
	PrepareDelete ID = "prepare_delete"
	DeleteOrigin  ID = "delete_origin"
)

var order = []ID{Download, Replica, Archive, Compress, PrepareDelete, DeleteOrigin}

var descriptions = map[ID]string{
	Download:      "Download new media from the origin and record it",
	Replica:       "Copy into the replica folder and confirm the peer synced it",
	Archive:       "Copy into the NAS archive and verify the size",
	Compress:      "Re-encode media by age once both replicas are confirmed",
	PrepareDelete: "Move to the delete-pending folder and stage the origin album",
	DeleteOrigin:  "Delete the origin copy and the local file",
}

var titleCaser = cases.Title(language.English)

// Order returns every stage in execution order.
func Order() []ID {
	return slices.Clone(order)
}

// Label returns a human readable stage name such as "Prepare Delete".
func (id ID) Label() string {
	if id == Replica {
		return "Replica Sync"
	}
	return titleCaser.String(strings.ReplaceAll(string(id), "_", " "))
}

// Description summarises what the stage does.
func (id ID) Description() string {
	return descriptions[id]
}

// Position returns the 1-based index of the stage, or 0 when unknown.
func (id ID) Position() int {
	return slices.Index(order, id) + 1
}

// Valid reports whether id names a known stage.
func (id ID) Valid() bool {
	return id.Position() > 0
}

// Parse resolves a stage name. Hyphens are accepted in place of underscores.
func Parse(name string) (ID, error) {
	normalized := ID(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !normalized.Valid() {
		return "", fmt.Errorf("unknown stage %q (valid: %s)", name, strings.Join(names(), ", "))
	}
	return normalized, nil
}

// Normalize parses names, drops duplicates, and returns the stages in pipeline
// order regardless of the order they were requested in.
func Normalize(names []string) ([]ID, error) {
	seen := make(map[ID]bool, len(names))
	for _, name := range names {
		id, err := Parse(name)
		if err != nil {
			return nil, err
		}
		seen[id] = true
	}
	out := make([]ID, 0, len(seen))
	for _, id := range order {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func names() []string {
	out := make([]string, len(order))
	for i, id := range order {
		out[i] = string(id)
	}
	return out
}
