package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediaferry/internal/records"
)

func TestLabels(t *testing.T) {
	cases := map[ID]string{
		Download:      "Download",
		Replica:       "Replica Sync",
		Archive:       "Archive",
		Compress:      "Compress",
		PrepareDelete: "Prepare Delete",
		DeleteOrigin:  "Delete Origin",
	}
	for id, want := range cases {
		if got := id.Label(); got != want {
			t.Fatalf("%s: expected label %q, got %q", id, want, got)
		}
		if id.Description() == "" {
			t.Fatalf("%s: missing description", id)
		}
	}
}

func TestNormalizeSortsIntoPipelineOrder(t *testing.T) {
	got, err := Normalize([]string{"delete-origin", "archive", "REPLICA", "archive"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []ID{Replica, Archive, DeleteOrigin}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if _, err := Normalize([]string{"upload"}); err == nil {
		t.Fatal("expected unknown stage to be rejected")
	}
}

func TestPosition(t *testing.T) {
	if Download.Position() != 1 || DeleteOrigin.Position() != 6 {
		t.Fatalf("unexpected positions %d %d", Download.Position(), DeleteOrigin.Position())
	}
	if ID("nope").Valid() {
		t.Fatal("unknown id should be invalid")
	}
}

func TestRequireLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := RequireLocalFile(&records.Record{LocalPath: path})
	if err != nil || size != 3 {
		t.Fatalf("expected size 3, got %d %v", size, err)
	}

	_, err = RequireLocalFile(&records.Record{LocalPath: filepath.Join(dir, "gone.jpg")})
	if !errors.Is(err, ErrMissingLocalFile) {
		t.Fatalf("expected ErrMissingLocalFile, got %v", err)
	}
	_, err = RequireLocalFile(&records.Record{LocalPath: dir})
	if !errors.Is(err, ErrMissingLocalFile) {
		t.Fatalf("expected directory to count as missing, got %v", err)
	}
}
