package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"twop/internal/container"
	"twop/internal/export"
	"twop/internal/npyio"
	"twop/internal/services"
	"twop/internal/services/nwbexport"
	"twop/internal/testsupport"
)

type manifestDoc struct {
	Container string         `json:"container"`
	Recording map[string]any `json:"recording"`
	Groups    []struct {
		Name  string         `json:"name"`
		Attrs map[string]any `json:"attrs"`
	} `json:"groups"`
	Datasets []struct {
		Path  string         `json:"path"`
		Dtype string         `json:"dtype"`
		Shape []int          `json:"shape"`
		File  string         `json:"file"`
		Attrs map[string]any `json:"attrs"`
	} `json:"datasets"`
}

// fakeNWB inspects the manifest while the scratch payload still exists and
// writes a stub output file on success.
type fakeNWB struct {
	fail bool

	manifestPath string
	outputPath   string
	doc          manifestDoc
	imaging      []uint16
	imagingShape []int
}

func (f *fakeNWB) Export(_ context.Context, manifestPath, outputPath string, progress func(nwbexport.ProgressUpdate)) error {
	f.manifestPath = manifestPath
	f.outputPath = outputPath
	if f.fail {
		return errors.New("nwb-export exited with status 1")
	}
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &f.doc); err != nil {
		return err
	}
	for _, ds := range f.doc.Datasets {
		if _, err := os.Stat(ds.File); err != nil {
			return fmt.Errorf("payload for %s: %w", ds.Path, err)
		}
		if ds.Path == container.DatasetImaging {
			if f.imaging, f.imagingShape, err = npyio.ReadUint16(ds.File); err != nil {
				return err
			}
		}
	}
	if progress != nil {
		progress(nwbexport.ProgressUpdate{Percent: 100, Stage: "write"})
	}
	return os.WriteFile(outputPath, []byte("nwb"), 0o644)
}

func TestNWBExportBuildsManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.twop")
	values := testsupport.SeedAcquisition(t, path, 3, 4, 5)
	testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, 2, 3)
	testsupport.SetAttr(t, path, container.GroupDeltaF, container.AttrMethod, "percentile")

	fake := &fakeNWB{}
	err := export.NewNWBWithClient(cfg, nil, fake).Export(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if want := filepath.Join(dir, "rec.nwb"); fake.outputPath != want {
		t.Fatalf("expected output %s, got %s", want, fake.outputPath)
	}
	if _, err := os.Stat(fake.outputPath); err != nil {
		t.Fatalf("expected nwb file on disk: %v", err)
	}
	if fake.doc.Container != path {
		t.Fatalf("manifest names container %q, want %q", fake.doc.Container, path)
	}

	byPath := map[string][]int{}
	dtypes := map[string]string{}
	for _, ds := range fake.doc.Datasets {
		byPath[ds.Path] = ds.Shape
		dtypes[ds.Path] = ds.Dtype
	}
	if shape := byPath[container.DatasetImaging]; len(shape) != 3 || shape[0] != 3 || shape[1] != 4 || shape[2] != 5 {
		t.Fatalf("imaging shape in manifest: %v", shape)
	}
	if dtypes[container.DatasetImaging] != "uint16" {
		t.Fatalf("imaging dtype: %q", dtypes[container.DatasetImaging])
	}
	if shape := byPath[container.DatasetDeltaF]; len(shape) != 2 || shape[0] != 2 || shape[1] != 3 {
		t.Fatalf("deltaf shape in manifest: %v", shape)
	}
	if dtypes[container.DatasetDeltaF] != "float64" {
		t.Fatalf("deltaf dtype: %q", dtypes[container.DatasetDeltaF])
	}

	if len(fake.imagingShape) != 3 {
		t.Fatalf("imaging payload shape: %v", fake.imagingShape)
	}
	for i, v := range values {
		if fake.imaging[i] != v {
			t.Fatalf("imaging payload sample %d: expected %d, got %d", i, v, fake.imaging[i])
		}
	}

	if rate, ok := fake.doc.Recording[container.AttrFrameRate].(float64); !ok || rate != 30 {
		t.Fatalf("manifest frame rate: %v", fake.doc.Recording[container.AttrFrameRate])
	}
	if id, ok := fake.doc.Recording[container.AttrRecordingID].(string); !ok || id == "" {
		t.Fatalf("manifest recording id: %v", fake.doc.Recording[container.AttrRecordingID])
	}

	var sawDeltaFGroup bool
	for _, group := range fake.doc.Groups {
		if group.Name == container.GroupDeltaF {
			sawDeltaFGroup = true
			if method, _ := group.Attrs[container.AttrMethod].(string); method != "percentile" {
				t.Fatalf("deltaf group attrs in manifest: %v", group.Attrs)
			}
		}
	}
	if !sawDeltaFGroup {
		t.Fatal("manifest is missing deltaf group attributes")
	}
}

func TestNWBExportRequiresDatasets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "empty.twop")
	box, err := container.Create(path)
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	box.Close()

	err = export.NewNWBWithClient(cfg, nil, &fakeNWB{}).Export(context.Background(), path, "")
	if !errors.Is(err, services.ErrContainerState) {
		t.Fatalf("expected ErrContainerState, got %v", err)
	}
}

func TestNWBExportToolFailureLeavesNoOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.twop")
	testsupport.SeedAcquisition(t, path, 2, 4, 4)

	fake := &fakeNWB{fail: true}
	err := export.NewNWBWithClient(cfg, nil, fake).Export(context.Background(), path, "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rec.nwb")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no nwb file after tool failure, got %v", err)
	}
}

func TestNWBExportDoesNotMutate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "rec.twop")
	testsupport.SeedAcquisition(t, path, 2, 4, 4)

	before := datasetPaths(t, path)
	err := export.NewNWBWithClient(cfg, nil, &fakeNWB{}).Export(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	after := datasetPaths(t, path)
	if len(before) != len(after) {
		t.Fatalf("export changed dataset count: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("export changed datasets: %v -> %v", before, after)
		}
	}
}

func TestCSVExportWritesTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.twop")
	testsupport.SeedAcquisition(t, path, 4, 4, 4)
	traces := testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, 2, 4)

	err := export.NewCSV(cfg, nil, "deltaf").Export(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	lines := readTableLines(t, filepath.Join(dir, "rec_deltaf.tsv"))
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	header := lines[0]
	for _, col := range []string{"time", "roi_00", "roi_01"} {
		if !strings.Contains(header, col) {
			t.Fatalf("header %q is missing column %s", header, col)
		}
	}

	row := splitRow(t, lines[2], 3)
	// Frame rate 30 Hz and no timestamps dataset: row 1 sits at 1/30 s.
	if got := parseCell(t, row[0]); math.Abs(got-1.0/30.0) > 1e-12 {
		t.Fatalf("time at row 1: expected %g, got %g", 1.0/30.0, got)
	}
	if got := parseCell(t, row[1]); got != traces[0*4+1] {
		t.Fatalf("roi_00 at row 1: expected %g, got %g", traces[0*4+1], got)
	}
	if got := parseCell(t, row[2]); got != traces[1*4+1] {
		t.Fatalf("roi_01 at row 1: expected %g, got %g", traces[1*4+1], got)
	}
}

func TestCSVExportPrefersTimestamps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.twop")
	testsupport.SeedAcquisition(t, path, 4, 4, 4)
	testsupport.SeedTimestamps(t, path, []float64{0, 50, 100, 150})
	testsupport.SeedTraces(t, path, container.DatasetTraces, "extract", container.GroupSignals, 1, 4)

	err := export.NewCSV(cfg, nil, "signals").Export(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	lines := readTableLines(t, filepath.Join(dir, "rec_signals.tsv"))
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	// 50 ms spacing becomes 0.05 s steps.
	for i, want := range []float64{0, 0.05, 0.1, 0.15} {
		row := splitRow(t, lines[i+1], 2)
		if got := parseCell(t, row[0]); math.Abs(got-want) > 1e-12 {
			t.Fatalf("time at row %d: expected %g, got %g", i, want, got)
		}
	}
}

func TestCSVExportValidatesSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "rec.twop")
	testsupport.SeedAcquisition(t, path, 2, 4, 4)

	err := export.NewCSV(cfg, nil, "spikes").Export(context.Background(), path, "")
	if !errors.Is(err, services.ErrSettingsInvalid) {
		t.Fatalf("expected ErrSettingsInvalid for unknown source, got %v", err)
	}

	err = export.NewCSV(cfg, nil, "deltaf").Export(context.Background(), path, "")
	if !errors.Is(err, services.ErrContainerState) {
		t.Fatalf("expected ErrContainerState without deltaf traces, got %v", err)
	}
}

func TestCSVExportDoesNotMutate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "rec.twop")
	testsupport.SeedAcquisition(t, path, 2, 4, 4)
	testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, 1, 2)

	before := datasetPaths(t, path)
	if err := export.NewCSV(cfg, nil, "deltaf").Export(context.Background(), path, ""); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	after := datasetPaths(t, path)
	if len(before) != len(after) {
		t.Fatalf("export changed dataset count: %v -> %v", before, after)
	}
}

func datasetPaths(t *testing.T, path string) []string {
	t.Helper()
	box := testsupport.MustOpenReadOnly(t, path)
	infos, err := box.List(context.Background())
	if err != nil {
		t.Fatalf("list datasets: %v", err)
	}
	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}
	return paths
}

func readTableLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read table %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitRow(t *testing.T, line string, want int) []string {
	t.Helper()
	fields := strings.Split(line, "\t")
	if len(fields) != want {
		t.Fatalf("expected %d fields, got %d in %q", want, len(fields), line)
	}
	return fields
}

func parseCell(t *testing.T, cell string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		t.Fatalf("parse cell %q: %v", cell, err)
	}
	return v
}
