package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
)

const rateTolerance = 1e-9

// Stitcher concatenates the traces of several recordings along the time axis
// into one session-level container. Inputs are validated against each other
// before the output file is created.
type Stitcher struct {
	cfg    *config.Config
	logger *slog.Logger
	source string
	force  bool
}

func NewStitcher(cfg *config.Config, logger *slog.Logger, source string, force bool) *Stitcher {
	return &Stitcher{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "stitch"),
		source: source,
		force:  force,
	}
}

type stitchInput struct {
	path    string
	id      string
	rois    int
	samples int
	rate    float64
	hasRate bool
	names   []string
	traces  []float64
}

// Stitch reads the chosen trace dataset from every input, checks that the
// recordings agree on ROI count and frame rate, and writes a new container
// holding the concatenated traces plus per-recording trial extents.
func (s *Stitcher) Stitch(ctx context.Context, inputs []string, outputPath string) error {
	dataset, group, err := s.sourceDataset()
	if err != nil {
		return err
	}
	if len(inputs) < 2 {
		return services.Wrap(services.ErrSettingsInvalid, "stitch", "collect inputs",
			fmt.Sprintf("stitching needs at least two recordings, got %d", len(inputs)), nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	loaded := make([]stitchInput, 0, len(inputs))
	for _, path := range inputs {
		input, err := s.readInput(ctx, path, dataset)
		if err != nil {
			return err
		}
		loaded = append(loaded, input)
	}

	ref := loaded[0]
	totalSamples := ref.samples
	for _, input := range loaded[1:] {
		if input.rois != ref.rois {
			return services.Wrap(services.ErrSessionMismatch, "stitch", "compare inputs",
				fmt.Sprintf("%s has %d ROIs, %s has %d", ref.path, ref.rois, input.path, input.rois), nil)
		}
		if input.hasRate != ref.hasRate || (ref.hasRate && math.Abs(input.rate-ref.rate) > rateTolerance) {
			return services.Wrap(services.ErrSessionMismatch, "stitch", "compare inputs",
				fmt.Sprintf("%s and %s disagree on frame rate", ref.path, input.path), nil)
		}
		if len(ref.names) > 0 && len(input.names) > 0 && !equalNames(ref.names, input.names) {
			return services.Wrap(services.ErrSessionMismatch, "stitch", "compare inputs",
				fmt.Sprintf("%s and %s disagree on ROI names", ref.path, input.path), nil)
		}
		totalSamples += input.samples
	}

	stitched := make([]float64, ref.rois*totalSamples)
	extents := make([]int64, 0, len(loaded)*2)
	labels := make([]string, 0, len(loaded))
	sources := make([]string, 0, len(loaded))
	offset := 0
	for _, input := range loaded {
		for roi := 0; roi < input.rois; roi++ {
			src := input.traces[roi*input.samples : (roi+1)*input.samples]
			copy(stitched[roi*totalSamples+offset:], src)
		}
		extents = append(extents, int64(offset), int64(offset+input.samples))
		labels = append(labels, stem(input.path))
		sources = append(sources, input.id)
		offset += input.samples
	}

	if _, err := os.Stat(outputPath); err == nil {
		if !s.force {
			return services.Wrap(services.ErrContainerState, "stitch", "create output",
				fmt.Sprintf("output %s already exists (use --force to replace)", outputPath), container.ErrExists)
		}
		if err := container.Remove(outputPath); err != nil {
			return services.Wrap(services.ErrContainerState, "stitch", "create output", "cannot remove existing output", err)
		}
	}

	staging := outputPath + ".partial"
	container.Remove(staging)
	box, err := container.Create(staging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "stitch", "create output", "cannot create staging container", err)
	}

	write := container.StageWrite{
		Stage:  "stitch",
		Groups: []string{group, container.GroupSessions},
	}
	writeErr := box.WriteStage(ctx, write, func(w *container.StageWriter) error {
		if err := w.PutFloat64(dataset, []int{ref.rois, totalSamples}, stitched); err != nil {
			return err
		}
		if err := w.PutInt64(container.DatasetTrials, []int{len(loaded), 2}, extents); err != nil {
			return err
		}
		if err := w.SetAttr(container.DatasetTrials, container.AttrTrialSource, "stitch"); err != nil {
			return err
		}
		if err := w.SetAttr(container.DatasetTrials, container.AttrTrialLabels, labels); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrRecordingID, uuid.NewString()); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrSource, "stitched session"); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrCreatedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrStitchSources, sources); err != nil {
			return err
		}
		if ref.hasRate {
			if err := w.SetAttr(container.RootGroup, container.AttrFrameRate, ref.rate); err != nil {
				return err
			}
		}
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = uuid.NewString()
		}
		if err := w.SetAttr(container.GroupSessions, container.AttrRunID, runID); err != nil {
			return err
		}
		return w.SetAttr(container.GroupSessions, container.AttrWrittenAt, time.Now().UTC().Format(time.RFC3339))
	})
	closeErr := box.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		container.Remove(staging)
		return services.Wrap(services.ErrContainerState, "stitch", "write output", "container write failed", writeErr)
	}
	if err := os.Rename(staging, outputPath); err != nil {
		container.Remove(staging)
		return services.Wrap(services.ErrContainerState, "stitch", "publish output", "cannot move container into place", err)
	}
	os.Remove(staging + ".lock")

	logger.Info("session stitched",
		logging.Int("recordings", len(loaded)),
		logging.Int("rois", ref.rois),
		logging.Int("samples", totalSamples),
		logging.String("output", outputPath),
	)
	return nil
}

func (s *Stitcher) sourceDataset() (dataset, group string, err error) {
	dataset, err = container.TraceSource(s.source)
	if err != nil {
		return "", "", services.Wrap(services.ErrSettingsInvalid, "stitch", "select source", "", err)
	}
	return dataset, container.GroupOf(dataset), nil
}

func (s *Stitcher) readInput(ctx context.Context, path, dataset string) (stitchInput, error) {
	box, err := container.OpenReadOnly(path)
	if err != nil {
		return stitchInput{}, services.Wrap(services.ErrContainerState, "stitch", "open input", path, err)
	}
	defer box.Close()

	traces, shape, err := box.ReadFloat64(ctx, dataset)
	if err != nil {
		return stitchInput{}, services.Wrap(services.ErrContainerState, "stitch", "read input",
			fmt.Sprintf("%s has no %s dataset; run that stage first", path, dataset), err)
	}
	if len(shape) != 2 {
		return stitchInput{}, services.Wrap(services.ErrShapeMismatch, "stitch", "read input",
			fmt.Sprintf("%s: %s has shape %v, want (rois, samples)", path, dataset, shape), nil)
	}
	rate, hasRate, err := box.AttrFloat(ctx, container.RootGroup, container.AttrFrameRate)
	if err != nil {
		return stitchInput{}, services.Wrap(services.ErrContainerState, "stitch", "read input", path, err)
	}
	id, ok, err := box.AttrString(ctx, container.RootGroup, container.AttrRecordingID)
	if err != nil {
		return stitchInput{}, services.Wrap(services.ErrContainerState, "stitch", "read input", path, err)
	}
	if !ok || id == "" {
		id = stem(path)
	}
	names, err := roiNames(ctx, box)
	if err != nil {
		return stitchInput{}, services.Wrap(services.ErrContainerState, "stitch", "read input", path, err)
	}
	return stitchInput{
		path:    path,
		id:      id,
		rois:    shape[0],
		samples: shape[1],
		rate:    rate,
		hasRate: hasRate,
		names:   names,
		traces:  traces,
	}, nil
}

// roiNames returns the optional mask name list, nil when absent.
func roiNames(ctx context.Context, box *container.Container) ([]string, error) {
	value, ok, err := box.Attr(ctx, container.DatasetROIMasks, container.AttrROINames)
	if err != nil || !ok {
		return nil, err
	}
	list, isList := value.([]any)
	if !isList {
		return nil, nil
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		name, isString := item.(string)
		if !isString {
			return nil, nil
		}
		names = append(names, name)
	}
	return names, nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
