package sessions_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
	"twop/internal/sessions"
	"twop/internal/testsupport"
)

func TestDefineWritesTrials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "rec.twop")
	testsupport.SeedAcquisition(t, path, 10, 4, 4)

	definer := sessions.NewDefiner(cfg, logging.NewNop(), false)
	trials := []sessions.Trial{
		{Start: 0, End: 5, Label: "pre"},
		{Start: 5, End: 10, Label: "post"},
	}
	if err := definer.Define(context.Background(), path, trials, "--bounds 0:5,5:10"); err != nil {
		t.Fatalf("Define: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, path)
	ctx := context.Background()
	values, shape, err := box.ReadInt64(ctx, container.DatasetTrials)
	if err != nil {
		t.Fatalf("read trials: %v", err)
	}
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 2 {
		t.Fatalf("trials shape = %v, want (2,2)", shape)
	}
	want := []int64{0, 5, 5, 10}
	for i, v := range values {
		if v != want[i] {
			t.Errorf("trials[%d] = %d, want %d", i, v, want[i])
		}
	}
	source, ok, err := box.AttrString(ctx, container.DatasetTrials, container.AttrTrialSource)
	if err != nil || !ok {
		t.Fatalf("source attr missing: ok=%v err=%v", ok, err)
	}
	if source != "--bounds 0:5,5:10" {
		t.Errorf("source = %q", source)
	}
	labels, ok, err := box.Attr(ctx, container.DatasetTrials, container.AttrTrialLabels)
	if err != nil || !ok {
		t.Fatalf("labels attr missing: ok=%v err=%v", ok, err)
	}
	list, isList := labels.([]any)
	if !isList || len(list) != 2 || list[0] != "pre" || list[1] != "post" {
		t.Errorf("labels = %v", labels)
	}
}

func TestDefineRejectsOutOfRangeBounds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "rec.twop")
	testsupport.SeedAcquisition(t, path, 10, 4, 4)

	definer := sessions.NewDefiner(cfg, logging.NewNop(), false)
	err := definer.Define(context.Background(), path, []sessions.Trial{{Start: 0, End: 11}}, "flag")
	if !errors.Is(err, services.ErrSettingsInvalid) {
		t.Fatalf("expected ErrSettingsInvalid, got %v", err)
	}
}

func TestDefineRequiresForceToReplace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(testsupport.BaseDir(cfg), "rec.twop")
	testsupport.SeedAcquisition(t, path, 10, 4, 4)
	ctx := context.Background()

	definer := sessions.NewDefiner(cfg, logging.NewNop(), false)
	first := []sessions.Trial{{Start: 0, End: 10}}
	if err := definer.Define(ctx, path, first, "flag"); err != nil {
		t.Fatalf("first Define: %v", err)
	}
	if err := definer.Define(ctx, path, first, "flag"); !errors.Is(err, container.ErrExists) {
		t.Fatalf("expected ErrExists without force, got %v", err)
	}

	forced := sessions.NewDefiner(cfg, logging.NewNop(), true)
	replacement := []sessions.Trial{{Start: 0, End: 4}, {Start: 4, End: 10}}
	if err := forced.Define(ctx, path, replacement, "flag"); err != nil {
		t.Fatalf("forced Define: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, path)
	_, shape, err := box.ReadInt64(ctx, container.DatasetTrials)
	if err != nil {
		t.Fatalf("read trials: %v", err)
	}
	if shape[0] != 2 {
		t.Errorf("expected replacement trials, got shape %v", shape)
	}
}

func seedSession(t *testing.T, dir, name string, rois, samples int) (string, []float64) {
	t.Helper()
	path := filepath.Join(dir, name)
	testsupport.SeedAcquisition(t, path, samples, 4, 4)
	traces := testsupport.SeedTraces(t, path, container.DatasetDeltaF, "deltaf", container.GroupDeltaF, rois, samples)
	return path, traces
}

func TestStitchConcatenatesTraces(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, tracesA := seedSession(t, dir, "sess_a.twop", 3, 6)
	b, tracesB := seedSession(t, dir, "sess_b.twop", 3, 4)
	out := filepath.Join(dir, "stitched.twop")

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	if err := stitcher.Stitch(context.Background(), []string{a, b}, out); err != nil {
		t.Fatalf("Stitch: %v", err)
	}

	box := testsupport.MustOpenReadOnly(t, out)
	ctx := context.Background()
	stitched, shape, err := box.ReadFloat64(ctx, container.DatasetDeltaF)
	if err != nil {
		t.Fatalf("read stitched traces: %v", err)
	}
	if len(shape) != 2 || shape[0] != 3 || shape[1] != 10 {
		t.Fatalf("stitched shape = %v, want (3,10)", shape)
	}
	for roi := 0; roi < 3; roi++ {
		row := stitched[roi*10 : (roi+1)*10]
		for i := 0; i < 6; i++ {
			if row[i] != tracesA[roi*6+i] {
				t.Fatalf("roi %d sample %d: got %v, want %v from first input", roi, i, row[i], tracesA[roi*6+i])
			}
		}
		for i := 0; i < 4; i++ {
			if row[6+i] != tracesB[roi*4+i] {
				t.Fatalf("roi %d sample %d: got %v, want %v from second input", roi, 6+i, row[6+i], tracesB[roi*4+i])
			}
		}
	}

	extents, shape, err := box.ReadInt64(ctx, container.DatasetTrials)
	if err != nil {
		t.Fatalf("read extents: %v", err)
	}
	if shape[0] != 2 || shape[1] != 2 {
		t.Fatalf("extents shape = %v", shape)
	}
	want := []int64{0, 6, 6, 10}
	for i, v := range extents {
		if v != want[i] {
			t.Errorf("extent[%d] = %d, want %d", i, v, want[i])
		}
	}

	labels, ok, err := box.Attr(ctx, container.DatasetTrials, container.AttrTrialLabels)
	if err != nil || !ok {
		t.Fatalf("labels attr missing: ok=%v err=%v", ok, err)
	}
	list, isList := labels.([]any)
	if !isList || len(list) != 2 || list[0] != "sess_a" || list[1] != "sess_b" {
		t.Errorf("labels = %v", labels)
	}

	rate, ok, err := box.AttrFloat(ctx, container.RootGroup, container.AttrFrameRate)
	if err != nil || !ok || rate != 30 {
		t.Errorf("frame rate = %v ok=%v err=%v", rate, ok, err)
	}
	sourceAttr, ok, err := box.AttrString(ctx, container.RootGroup, container.AttrSource)
	if err != nil || !ok || sourceAttr != "stitched session" {
		t.Errorf("source attr = %q ok=%v err=%v", sourceAttr, ok, err)
	}
	origins, ok, err := box.Attr(ctx, container.RootGroup, container.AttrStitchSources)
	if err != nil || !ok {
		t.Fatalf("stitch sources attr missing: ok=%v err=%v", ok, err)
	}
	if list, isList := origins.([]any); !isList || len(list) != 2 {
		t.Errorf("stitch sources = %v", origins)
	}
}

func TestStitchRejectsROICountMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, _ := seedSession(t, dir, "sess_a.twop", 3, 6)
	b, _ := seedSession(t, dir, "sess_b.twop", 2, 6)
	out := filepath.Join(dir, "stitched.twop")

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	err := stitcher.Stitch(context.Background(), []string{a, b}, out)
	if !errors.Is(err, services.ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("mismatch must not create output, stat: %v", statErr)
	}
	if _, statErr := os.Stat(out + ".partial"); !os.IsNotExist(statErr) {
		t.Errorf("mismatch must not leave staging file, stat: %v", statErr)
	}
}

func TestStitchRejectsFrameRateMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, _ := seedSession(t, dir, "sess_a.twop", 3, 6)
	b, _ := seedSession(t, dir, "sess_b.twop", 3, 6)
	testsupport.SetRootAttr(t, b, container.AttrFrameRate, 15.0)
	out := filepath.Join(dir, "stitched.twop")

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	err := stitcher.Stitch(context.Background(), []string{a, b}, out)
	if !errors.Is(err, services.ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestStitchRejectsROINameMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, _ := seedSession(t, dir, "sess_a.twop", 2, 6)
	b, _ := seedSession(t, dir, "sess_b.twop", 2, 6)
	testsupport.SeedMasks(t, a, 2, 4, 4)
	testsupport.SeedMasks(t, b, 2, 4, 4)
	testsupport.SetAttr(t, a, container.DatasetROIMasks, container.AttrROINames, []string{"soma_1", "soma_2"})
	testsupport.SetAttr(t, b, container.DatasetROIMasks, container.AttrROINames, []string{"soma_1", "dendrite"})
	out := filepath.Join(dir, "stitched.twop")

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	err := stitcher.Stitch(context.Background(), []string{a, b}, out)
	if !errors.Is(err, services.ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestStitchRequiresTraceDataset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, _ := seedSession(t, dir, "sess_a.twop", 3, 6)
	b := filepath.Join(dir, "sess_b.twop")
	testsupport.SeedAcquisition(t, b, 6, 4, 4)
	out := filepath.Join(dir, "stitched.twop")

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	err := stitcher.Stitch(context.Background(), []string{a, b}, out)
	if !errors.Is(err, services.ErrContainerState) {
		t.Fatalf("expected ErrContainerState, got %v", err)
	}
}

func TestStitchValidatesSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	out := filepath.Join(dir, "stitched.twop")

	tooFew := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	if err := tooFew.Stitch(context.Background(), []string{"only.twop"}, out); !errors.Is(err, services.ErrSettingsInvalid) {
		t.Fatalf("expected ErrSettingsInvalid for one input, got %v", err)
	}

	badSource := sessions.NewStitcher(cfg, logging.NewNop(), "spikes", false)
	if err := badSource.Stitch(context.Background(), []string{"a.twop", "b.twop"}, out); !errors.Is(err, services.ErrSettingsInvalid) {
		t.Fatalf("expected ErrSettingsInvalid for bad source, got %v", err)
	}
}

func TestStitchRequiresForceToReplace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := testsupport.BaseDir(cfg)
	a, _ := seedSession(t, dir, "sess_a.twop", 2, 5)
	b, _ := seedSession(t, dir, "sess_b.twop", 2, 5)
	out := filepath.Join(dir, "stitched.twop")
	ctx := context.Background()

	stitcher := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, false)
	if err := stitcher.Stitch(ctx, []string{a, b}, out); err != nil {
		t.Fatalf("first Stitch: %v", err)
	}
	if err := stitcher.Stitch(ctx, []string{a, b}, out); !errors.Is(err, container.ErrExists) {
		t.Fatalf("expected ErrExists without force, got %v", err)
	}
	forced := sessions.NewStitcher(cfg, logging.NewNop(), container.SourceDeltaF, true)
	if err := forced.Stitch(ctx, []string{a, b}, out); err != nil {
		t.Fatalf("forced Stitch: %v", err)
	}
}
