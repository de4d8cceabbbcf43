// Package extract pulls per-ROI fluorescence traces out of an imaging stack
// by delegating source separation to an external tool. The tool returns five
// rows per ROI; the first is the cell signal, the remaining four are the
// surrounding neuropil estimates kept for quality control.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/npyio"
	"twop/internal/services"
	"twop/internal/services/separation"
	"twop/internal/stage"
)

const rowsPerROI = 5

// Extractor implements the signal extraction stage.
type Extractor struct {
	cfg    *config.Config
	logger *slog.Logger
	client separation.Client
	force  bool
}

func New(cfg *config.Config, logger *slog.Logger, force bool) *Extractor {
	client := separation.NewCLI(separation.WithBinary(cfg.Tools.Separation))
	return NewWithClient(cfg, logger, force, client)
}

func NewWithClient(cfg *config.Config, logger *slog.Logger, force bool, client separation.Client) *Extractor {
	return &Extractor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "extract"),
		client: client,
		force:  force,
	}
}

type trialSpan struct {
	start int
	end   int
}

// Extract runs source separation for one container and stores the resulting
// traces. Extraction prefers the motion-corrected stack and falls back to the
// raw acquisition with a warning. When trial bounds are defined, each trial is
// separated on its own and the traces are concatenated in time order.
func (e *Extractor) Extract(ctx context.Context, containerPath string) error {
	logger := logging.WithContext(ctx, e.logger)

	box, err := container.Open(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "extract", "open container", "cannot open container", err)
	}
	defer box.Close()

	present, err := box.HasDataset(ctx, container.DatasetTraces)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "extract", "inspect container", "cannot check prior outputs", err)
	}
	if present && !e.force {
		return fmt.Errorf("%w: traces already extracted", stage.ErrSkip)
	}

	frames, shape, err := e.readFrames(ctx, box, logger)
	if err != nil {
		return err
	}
	samples, height, width := shape[0], shape[1], shape[2]

	masks, maskShape, err := box.ReadUint8(ctx, container.DatasetROIMasks)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "extract", "read masks",
			"container holds no ROI masks; import masks before extracting", err)
	}
	if len(maskShape) != 3 || maskShape[0] < 1 {
		return services.Wrap(services.ErrShapeMismatch, "extract", "read masks",
			fmt.Sprintf("masks have shape %v, want at least one (Y,X) mask", maskShape), nil)
	}
	if maskShape[1] != height || maskShape[2] != width {
		return services.Wrap(services.ErrShapeMismatch, "extract", "read masks",
			fmt.Sprintf("mask planes are %dx%d, frames are %dx%d", maskShape[1], maskShape[2], height, width), nil)
	}
	rois := maskShape[0]

	trials, err := e.trialSpans(ctx, box, samples)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(e.cfg.Paths.WorkDir, "extract-*")
	if err != nil {
		return services.Wrap(services.ErrContainerState, "extract", "prepare work dir", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	masksNpy := filepath.Join(workDir, "masks.npy")
	if err := npyio.WriteUint8(masksNpy, maskShape, masks); err != nil {
		return services.Wrap(services.ErrContainerState, "extract", "stage masks", "cannot write interchange file", err)
	}

	logger.Info("signal extraction starting",
		logging.Int("rois", rois),
		logging.Int("trials", len(trials)),
	)
	bar := newTrialBar(len(trials))

	traces := make([]float64, rois*samples)
	neuropil := make([]float64, rois*4*samples)
	plane := height * width
	for index, span := range trials {
		if err := ctx.Err(); err != nil {
			return err
		}
		trialLen := span.end - span.start
		trialNpy := filepath.Join(workDir, fmt.Sprintf("trial_%03d.npy", index))
		trialFrames := frames[span.start*plane : span.end*plane]
		if err := npyio.WriteUint16(trialNpy, []int{trialLen, height, width}, trialFrames); err != nil {
			return services.Wrap(services.ErrContainerState, "extract", "stage frames", "cannot write interchange file", err)
		}

		outPath, err := e.client.Separate(ctx, trialNpy, masksNpy, workDir, func(update separation.ProgressUpdate) {
			logger.Debug("separation progress",
				logging.Float64("percent", update.Percent),
				logging.Int("roi", update.ROI),
			)
		})
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "extract", "run separation",
				fmt.Sprintf("trial %d failed", index), err)
		}

		separated, sepShape, err := npyio.ReadFloat64(outPath)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "extract", "read separation output", outPath, err)
		}
		if len(sepShape) != 3 || sepShape[0] != rois || sepShape[1] != rowsPerROI || sepShape[2] != trialLen {
			return services.Wrap(services.ErrShapeMismatch, "extract", "read separation output",
				fmt.Sprintf("tool returned shape %v, want (%d,%d,%d)", sepShape, rois, rowsPerROI, trialLen), nil)
		}

		for roi := 0; roi < rois; roi++ {
			block := separated[roi*rowsPerROI*trialLen : (roi+1)*rowsPerROI*trialLen]
			copy(traces[roi*samples+span.start:], block[:trialLen])
			for band := 0; band < 4; band++ {
				row := block[(band+1)*trialLen : (band+2)*trialLen]
				copy(neuropil[(roi*4+band)*samples+span.start:], row)
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	write := container.StageWrite{
		Stage:  "extract",
		Groups: []string{container.GroupSignals, container.DatasetNeuropil},
		Force:  e.force,
	}
	writeErr := box.WriteStage(ctx, write, func(w *container.StageWriter) error {
		if err := w.PutFloat64(container.DatasetTraces, []int{rois, samples}, traces); err != nil {
			return err
		}
		if err := w.PutFloat64(container.DatasetNeuropil, []int{rois, 4, samples}, neuropil); err != nil {
			return err
		}
		if err := w.SetAttr(container.DatasetTraces, container.AttrTool, e.cfg.Tools.Separation); err != nil {
			return err
		}
		if err := w.SetAttr(container.DatasetTraces, container.AttrTrialCount, len(trials)); err != nil {
			return err
		}
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = uuid.NewString()
		}
		if err := w.SetAttr(container.GroupSignals, container.AttrRunID, runID); err != nil {
			return err
		}
		return w.SetAttr(container.GroupSignals, container.AttrWrittenAt, time.Now().UTC().Format(time.RFC3339))
	})
	if writeErr != nil {
		return services.Wrap(services.ErrContainerState, "extract", "write outputs", "container write failed", writeErr)
	}

	logger.Info("signal extraction complete",
		logging.Int("rois", rois),
		logging.Int("trials", len(trials)),
		logging.Int("samples", samples),
	)
	return nil
}

// readFrames returns the motion-corrected stack when available, otherwise the
// raw acquisition.
func (e *Extractor) readFrames(ctx context.Context, box *container.Container, logger *slog.Logger) ([]uint16, []int, error) {
	dataset := container.DatasetMotionImaging
	hasMotion, err := box.HasDataset(ctx, dataset)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrContainerState, "extract", "inspect container", "cannot check motion outputs", err)
	}
	if !hasMotion {
		logger.Warn("no motion-corrected stack, extracting from raw acquisition")
		dataset = container.DatasetImaging
	}
	frames, shape, err := box.ReadUint16(ctx, dataset)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrContainerState, "extract", "read frames", "cannot read imaging stack", err)
	}
	if len(shape) != 3 {
		return nil, nil, services.Wrap(services.ErrShapeMismatch, "extract", "read frames",
			fmt.Sprintf("separation expects a single-channel (T,Y,X) stack, got shape %v", shape), nil)
	}
	return frames, shape, nil
}

// trialSpans returns the defined trial bounds, or the whole recording as a
// single span when no session structure exists.
func (e *Extractor) trialSpans(ctx context.Context, box *container.Container, samples int) ([]trialSpan, error) {
	hasTrials, err := box.HasDataset(ctx, container.DatasetTrials)
	if err != nil {
		return nil, services.Wrap(services.ErrContainerState, "extract", "inspect container", "cannot check trial bounds", err)
	}
	if !hasTrials {
		return []trialSpan{{start: 0, end: samples}}, nil
	}
	bounds, shape, err := box.ReadInt64(ctx, container.DatasetTrials)
	if err != nil {
		return nil, services.Wrap(services.ErrContainerState, "extract", "read trials", "cannot read trial bounds", err)
	}
	if len(shape) != 2 || shape[1] != 2 || shape[0] < 1 {
		return nil, services.Wrap(services.ErrContainerState, "extract", "read trials",
			fmt.Sprintf("trials have shape %v, want (N,2)", shape), nil)
	}
	spans := make([]trialSpan, 0, shape[0])
	for i := 0; i < shape[0]; i++ {
		start, end := int(bounds[i*2]), int(bounds[i*2+1])
		if start < 0 || end > samples || start >= end {
			return nil, services.Wrap(services.ErrContainerState, "extract", "read trials",
				fmt.Sprintf("trial %d bounds %d:%d fall outside the %d-frame recording", i, start, end, samples), nil)
		}
		spans = append(spans, trialSpan{start: start, end: end})
	}
	return spans, nil
}

// newTrialBar builds a progress bar that stays silent when stderr is not a
// terminal.
func newTrialBar(trials int) *progressbar.ProgressBar {
	writer := io.Writer(io.Discard)
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		writer = os.Stderr
	}
	return progressbar.NewOptions(trials,
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
