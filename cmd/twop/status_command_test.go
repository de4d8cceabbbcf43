package main

import (
	"os"
	"path/filepath"
	"testing"

	"twop/internal/container"
	"twop/internal/testsupport"
)

func TestStatusRendersTable(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	dir := t.TempDir()
	path := filepath.Join(dir, "rec"+container.Ext)
	testsupport.SeedAcquisition(t, path, 3, 4, 5)
	testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, 2, 3)

	out, _, err := runCLI(t, cfgPath, "status", dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	requireContains(t, out, "RECORDING")
	requireContains(t, out, "rec"+container.Ext)
	requireContains(t, out, "3 x 4 x 5")
	requireContains(t, out, "acquisition deltaf")
	requireContains(t, out, "2")
	requireContains(t, out, "External tools")
	requireContains(t, out, "registration:")
}

func TestStatusShowsLockedContainers(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	path := filepath.Join(t.TempDir(), "rec"+container.Ext)
	testsupport.SeedAcquisition(t, path, 2, 2, 2)
	testsupport.MustOpenContainer(t, path)

	out, _, err := runCLI(t, cfgPath, "status", path)
	if err != nil {
		t.Fatalf("status with held lock: %v", err)
	}
	requireContains(t, out, "locked")
}

func TestStatusFailsOnUnreadableContainer(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	dir := t.TempDir()
	good := filepath.Join(dir, "good"+container.Ext)
	testsupport.SeedAcquisition(t, good, 2, 2, 2)
	bad := filepath.Join(dir, "bad"+container.Ext)
	if err := os.WriteFile(bad, []byte("not a container"), 0o644); err != nil {
		t.Fatalf("write bad container: %v", err)
	}

	out, _, err := runCLI(t, cfgPath, "status", dir)
	if err == nil {
		t.Fatal("expected an error for the unreadable container")
	}
	requireContains(t, out, "good"+container.Ext)
	requireContains(t, out, "unreadable")
}
