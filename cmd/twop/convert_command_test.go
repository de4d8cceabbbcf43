package main

import (
	"context"
	"path/filepath"
	"testing"

	"twop/internal/container"
	"twop/internal/testsupport"
)

func TestConvertRawCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	dir := t.TempDir()
	testsupport.WriteRecording(t, dir, "scan", 3, 4, 4)

	if _, _, err := runCLI(t, cfgPath, "convert", "raw", dir); err != nil {
		t.Fatalf("convert raw: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, filepath.Join(dir, "scan"+container.Ext))
	info, err := box.Stat(context.Background(), container.DatasetImaging)
	if err != nil {
		t.Fatalf("stat imaging: %v", err)
	}
	if info.Shape[0] != 3 || info.Shape[1] != 4 || info.Shape[2] != 4 {
		t.Fatalf("unexpected imaging shape %v", info.Shape)
	}
}

func TestConvertRawCommandOutputDir(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))

	dir := t.TempDir()
	rec := testsupport.WriteRecording(t, dir, "scan", 2, 2, 2)
	outDir := t.TempDir()

	if _, _, err := runCLI(t, cfgPath, "convert", "raw", rec.RawPath, "-o", outDir); err != nil {
		t.Fatalf("convert raw -o: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, filepath.Join(outDir, "scan"+container.Ext))
	if _, err := box.Stat(context.Background(), container.DatasetImaging); err != nil {
		t.Fatalf("stat imaging in output dir: %v", err)
	}
}
