package deps

import (
	"os"
	"path/filepath"
	"testing"

	"twop/internal/config"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present")

	results := CheckBinaries([]Requirement{
		{Name: "present", Command: present},
		{Name: "missing", Command: "clearly-not-present-binary"},
		{Name: "blank", Command: "   "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected the stub to resolve, got %#v", results[0])
	}
	if results[0].Command != present {
		t.Fatalf("expected resolved path %s, got %s", present, results[0].Command)
	}

	if results[1].Available || !results[1].Configured {
		t.Fatalf("expected a configured but missing binary, got %#v", results[1])
	}
	if results[1].Detail == "" {
		t.Fatal("expected a detail message for the missing binary")
	}

	if results[2].Configured {
		t.Fatalf("expected a blank command to count as unconfigured, got %#v", results[2])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail %q", results[2].Detail)
	}
}

func TestCheckToolsCoversPipeline(t *testing.T) {
	binDir := t.TempDir()
	cfg := config.Default()
	cfg.Tools.Registration = writeStub(t, binDir, "sima-mc")
	cfg.Tools.Separation = "separation-binary-that-does-not-exist"

	results := CheckTools(&cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 tool checks, got %d", len(results))
	}

	want := []string{"registration", "separation", "inference", "nwb-export"}
	for i, name := range want {
		if results[i].Name != name {
			t.Fatalf("expected check %d to be %s, got %s", i, name, results[i].Name)
		}
	}
	if !results[0].Available {
		t.Fatalf("expected registration stub to resolve, got %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected separation to be missing, got %#v", results[1])
	}
}
