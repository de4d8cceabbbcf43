package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"twop/internal/container"
)

// MustOpenContainer opens a container for writing and registers cleanup.
func MustOpenContainer(t testing.TB, path string) *container.Container {
	t.Helper()
	box, err := container.Open(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	t.Cleanup(func() { _ = box.Close() })
	return box
}

// MustOpenReadOnly opens a container for reading and registers cleanup.
func MustOpenReadOnly(t testing.TB, path string) *container.Container {
	t.Helper()
	box, err := container.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	t.Cleanup(func() { _ = box.Close() })
	return box
}

// SeedAcquisition creates a container at path holding a deterministic imaging
// stack with recording attributes, as the convert stage would leave it.
func SeedAcquisition(t testing.TB, path string, frames, height, width int) []uint16 {
	t.Helper()

	values := PixelPattern(frames * height * width)
	box, err := container.Create(path)
	if err != nil {
		t.Fatalf("create container %s: %v", path, err)
	}
	defer box.Close()

	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  "convert",
		Groups: []string{container.GroupAcquisition},
	}, func(w *container.StageWriter) error {
		if err := w.PutUint16(container.DatasetImaging, []int{frames, height, width}, values); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrRecordingID, uuid.NewString()); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrFrameRate, 30.0); err != nil {
			return err
		}
		return w.SetAttr(container.DatasetImaging, "pmt.gain", 680)
	})
	if err != nil {
		t.Fatalf("seed acquisition: %v", err)
	}
	return values
}

// SetAttr overwrites one attribute on an existing container, using a scratch
// group so no real stage output is disturbed.
func SetAttr(t testing.TB, containerPath, path, key string, value any) {
	t.Helper()

	box, err := container.Open(containerPath)
	if err != nil {
		t.Fatalf("open container %s: %v", containerPath, err)
	}
	defer box.Close()
	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  "testsupport",
		Groups: []string{"scratch"},
	}, func(w *container.StageWriter) error {
		return w.SetAttr(path, key, value)
	})
	if err != nil {
		t.Fatalf("set attr %s.%s: %v", path, key, err)
	}
}

// SetRootAttr overwrites one recording-level attribute.
func SetRootAttr(t testing.TB, path, key string, value any) {
	t.Helper()
	SetAttr(t, path, container.RootGroup, key, value)
}

// SeedMasks writes count ROI masks into an existing container. Each mask is a
// small filled block placed along the diagonal.
func SeedMasks(t testing.TB, path string, count, height, width int) {
	t.Helper()

	box, err := container.Open(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	defer box.Close()
	masks := make([]uint8, count*height*width)
	for roi := 0; roi < count; roi++ {
		base := roi * height * width
		y0 := (roi * 3) % max(height-2, 1)
		x0 := (roi * 5) % max(width-2, 1)
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				masks[base+(y0+dy)*width+(x0+dx)] = 1
			}
		}
	}
	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  "rois",
		Groups: []string{container.GroupROIs},
	}, func(w *container.StageWriter) error {
		return w.PutUint8(container.DatasetROIMasks, []int{count, height, width}, masks)
	})
	if err != nil {
		t.Fatalf("seed masks: %v", err)
	}
}

// SeedTimestamps writes per-frame timestamps in milliseconds into an existing
// container that does not have them yet.
func SeedTimestamps(t testing.TB, path string, stamps []float64) {
	t.Helper()

	box, err := container.Open(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	defer box.Close()
	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  "testsupport",
		Groups: []string{container.DatasetTimestamps},
	}, func(w *container.StageWriter) error {
		if err := w.PutFloat64(container.DatasetTimestamps, []int{len(stamps)}, stamps); err != nil {
			return err
		}
		return w.SetAttr(container.DatasetTimestamps, "units", "ms")
	})
	if err != nil {
		t.Fatalf("seed timestamps: %v", err)
	}
}

// SeedTrials writes trial bounds into an existing container.
func SeedTrials(t testing.TB, path string, bounds [][2]int64) {
	t.Helper()

	box, err := container.Open(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	defer box.Close()
	flat := make([]int64, 0, len(bounds)*2)
	for _, b := range bounds {
		flat = append(flat, b[0], b[1])
	}
	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  "session",
		Groups: []string{container.GroupSessions},
	}, func(w *container.StageWriter) error {
		return w.PutInt64(container.DatasetTrials, []int{len(bounds), 2}, flat)
	})
	if err != nil {
		t.Fatalf("seed trials: %v", err)
	}
}

// SeedTraces writes a deterministic float64 trace matrix dataset into an
// existing container under the named stage group.
func SeedTraces(t testing.TB, path, dataset, stageName, group string, rois, samples int) []float64 {
	t.Helper()

	box, err := container.Open(path)
	if err != nil {
		t.Fatalf("open container %s: %v", path, err)
	}
	defer box.Close()

	traces := make([]float64, rois*samples)
	for r := 0; r < rois; r++ {
		for i := 0; i < samples; i++ {
			traces[r*samples+i] = 100 + 10*float64(r) + 5*float64(i%13)
		}
	}
	err = box.WriteStage(context.Background(), container.StageWrite{
		Stage:  stageName,
		Groups: []string{group},
	}, func(w *container.StageWriter) error {
		return w.PutFloat64(dataset, []int{rois, samples}, traces)
	})
	if err != nil {
		t.Fatalf("seed traces: %v", err)
	}
	return traces
}
