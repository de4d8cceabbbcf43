// Package spikes infers discrete firing events from normalized traces by
// delegating deconvolution to an external tool.
package spikes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/npyio"
	"twop/internal/services"
	"twop/internal/services/inference"
	"twop/internal/stage"
)

// Inferrer implements the spike inference stage.
type Inferrer struct {
	cfg    *config.Config
	logger *slog.Logger
	client inference.Client
	force  bool
}

func New(cfg *config.Config, logger *slog.Logger, force bool) *Inferrer {
	client := inference.NewCLI(inference.WithBinary(cfg.Tools.Inference))
	return NewWithClient(cfg, logger, force, client)
}

func NewWithClient(cfg *config.Config, logger *slog.Logger, force bool, client inference.Client) *Inferrer {
	return &Inferrer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "spikes"),
		client: client,
		force:  force,
	}
}

// Infer deconvolves one container's ΔF/F₀ traces into event trains. The
// inference tool needs the sampling rate, so a recording without a frame rate
// attribute is rejected.
func (s *Inferrer) Infer(ctx context.Context, containerPath string) error {
	logger := logging.WithContext(ctx, s.logger)

	box, err := container.Open(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "open container", "cannot open container", err)
	}
	defer box.Close()

	present, err := box.HasDataset(ctx, container.DatasetSpikes)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "inspect container", "cannot check prior outputs", err)
	}
	if present && !s.force {
		return fmt.Errorf("%w: spike events already present", stage.ErrSkip)
	}

	traces, shape, err := box.ReadFloat64(ctx, container.DatasetDeltaF)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "read traces",
			"container holds no deltaf traces; run the deltaf stage first", err)
	}
	if len(shape) != 2 {
		return services.Wrap(services.ErrContainerState, "spikes", "read traces",
			fmt.Sprintf("deltaf traces have shape %v, want (rois, samples)", shape), nil)
	}

	rate, ok, err := box.AttrFloat(ctx, container.RootGroup, container.AttrFrameRate)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "read frame rate", "cannot read recording attributes", err)
	}
	if !ok || rate <= 0 {
		return services.Wrap(services.ErrMetadataMissing, "spikes", "read frame rate",
			"recording has no frame rate; inference needs the sampling rate", nil)
	}

	workDir, err := os.MkdirTemp(s.cfg.Paths.WorkDir, "spikes-*")
	if err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "prepare work dir", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	tracesNpy := filepath.Join(workDir, "traces.npy")
	if err := npyio.WriteFloat64(tracesNpy, shape, traces); err != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "stage traces", "cannot write interchange file", err)
	}

	logger.Info("spike inference starting",
		logging.Int("rois", shape[0]),
		logging.Float64("rate_hz", rate),
	)
	eventsPath, err := s.client.Infer(ctx, tracesNpy, workDir, rate, func(update inference.ProgressUpdate) {
		logger.Debug("inference progress",
			logging.Float64("percent", update.Percent),
			logging.Int("roi", update.ROI),
		)
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "spikes", "run inference", "deconvolution failed", err)
	}

	events, eventShape, err := npyio.ReadFloat64(eventsPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "spikes", "read inference output", eventsPath, err)
	}
	if len(eventShape) != 2 || eventShape[0] != shape[0] || eventShape[1] != shape[1] {
		return services.Wrap(services.ErrShapeMismatch, "spikes", "read inference output",
			fmt.Sprintf("tool returned shape %v, input was %v", eventShape, shape), nil)
	}

	write := container.StageWrite{
		Stage:  "spikes",
		Groups: []string{container.GroupSpikes},
		Force:  s.force,
	}
	writeErr := box.WriteStage(ctx, write, func(w *container.StageWriter) error {
		if err := w.PutFloat64(container.DatasetSpikes, shape, events); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupSpikes, container.AttrTool, s.cfg.Tools.Inference); err != nil {
			return err
		}
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = uuid.NewString()
		}
		if err := w.SetAttr(container.GroupSpikes, container.AttrRunID, runID); err != nil {
			return err
		}
		return w.SetAttr(container.GroupSpikes, container.AttrWrittenAt, time.Now().UTC().Format(time.RFC3339))
	})
	if writeErr != nil {
		return services.Wrap(services.ErrContainerState, "spikes", "write outputs", "container write failed", writeErr)
	}

	logger.Info("spike inference complete",
		logging.Int("rois", shape[0]),
		logging.Int("samples", shape[1]),
	)
	return nil
}
