package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediaferry/internal/records"
	"mediaferry/internal/testsupport"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSyncthing(t *testing.T) {
	if r := CheckSyncthing(context.Background(), stubPinger{}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckSyncthing(context.Background(), stubPinger{err: errors.New("connection refused")}); r.Passed {
		t.Fatal("expected failure for unreachable API")
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if r := CheckDatabase(context.Background(), cfg); !r.Passed {
		t.Fatalf("missing database should pass, got %s", r.Detail)
	}

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	store.Close()
	if r := CheckDatabase(context.Background(), cfg); !r.Passed {
		t.Fatalf("expected healthy database, got %s", r.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("icloudpd", "ffmpeg"))

	results := RunAll(context.Background(), cfg)
	if Failed(results) {
		for _, r := range results {
			t.Logf("%s passed=%v optional=%v: %s", r.Name, r.Passed, r.Optional, r.Detail)
		}
		t.Fatal("expected every required check to pass")
	}
	for _, r := range results {
		if r.Name == "Syncthing API" {
			t.Fatal("Syncthing check should be skipped without an API url")
		}
	}
}

func TestFailedIgnoresOptional(t *testing.T) {
	if Failed([]Result{{Name: "a", Passed: true}, {Name: "b", Optional: true}}) {
		t.Fatal("optional failures must not fail preflight")
	}
	if !Failed([]Result{{Name: "a"}}) {
		t.Fatal("expected required failure to fail preflight")
	}
}
