package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"twop/internal/container"
	"twop/internal/testsupport"
)

func TestSessionDefineRequiresOneSource(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	_, _, err := runCLI(t, cfgPath, "session", "define", "rec"+container.Ext,
		"--bounds", "0:2", "--from-file", "trials.toml")
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Fatalf("expected mutual exclusion error, got %v", err)
	}

	_, _, err = runCLI(t, cfgPath, "session", "define", "rec"+container.Ext)
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Fatalf("expected missing source error, got %v", err)
	}
}

func TestSessionDefineWritesTrials(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	path := filepath.Join(t.TempDir(), "rec"+container.Ext)
	testsupport.SeedAcquisition(t, path, 6, 2, 2)

	if _, _, err := runCLI(t, cfgPath, "session", "define", path, "--bounds", "0:3,3:6"); err != nil {
		t.Fatalf("session define: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, path)
	info, err := box.Stat(context.Background(), container.DatasetTrials)
	if err != nil {
		t.Fatalf("stat trials: %v", err)
	}
	if info.Shape[0] != 2 || info.Shape[1] != 2 {
		t.Fatalf("unexpected trials shape %v", info.Shape)
	}
}

func TestSessionStitchCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	dir := t.TempDir()
	first := filepath.Join(dir, "first"+container.Ext)
	second := filepath.Join(dir, "second"+container.Ext)
	for _, path := range []string{first, second} {
		testsupport.SeedAcquisition(t, path, 4, 2, 2)
		testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, 2, 4)
	}

	out := filepath.Join(dir, "session"+container.Ext)
	stdout, _, err := runCLI(t, cfgPath, "session", "stitch", "--out", out, first, second)
	if err != nil {
		t.Fatalf("session stitch: %v", err)
	}
	requireContains(t, stdout, "Stitched 2 recordings")

	box := testsupport.MustOpenReadOnly(t, out)
	info, err := box.Stat(context.Background(), container.DatasetDeltaF)
	if err != nil {
		t.Fatalf("stat stitched traces: %v", err)
	}
	if info.Shape[0] != 2 || info.Shape[1] != 8 {
		t.Fatalf("unexpected stitched shape %v", info.Shape)
	}
}
