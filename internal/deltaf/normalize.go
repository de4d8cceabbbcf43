package deltaf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
	"twop/internal/stage"
)

// Normalizer implements the ΔF/F₀ stage against a container.
type Normalizer struct {
	cfg      *config.Config
	logger   *slog.Logger
	settings Settings
	force    bool
}

func NewNormalizer(cfg *config.Config, logger *slog.Logger, settings Settings, force bool) *Normalizer {
	return &Normalizer{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "deltaf"),
		settings: settings,
		force:    force,
	}
}

// SettingsFromConfig builds baseline settings from the config file defaults,
// leaving zero values at the package defaults.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	if cfg.DeltaF.Method != "" {
		settings.Method = cfg.DeltaF.Method
	}
	if cfg.DeltaF.Percentile != 0 {
		settings.Percentile = cfg.DeltaF.Percentile
	}
	if cfg.DeltaF.Window != 0 {
		settings.Window = cfg.DeltaF.Window
	}
	if cfg.DeltaF.WindowMode != "" {
		settings.WindowMode = cfg.DeltaF.WindowMode
	}
	return settings
}

// Normalize reads the extracted traces, computes ΔF/F₀ for every ROI, and
// stores the result. Identical settings on identical input produce identical
// output, so rerunning with --force is safe.
func (n *Normalizer) Normalize(ctx context.Context, containerPath string) error {
	if err := n.settings.Validate(); err != nil {
		return services.Wrap(services.ErrSettingsInvalid, "deltaf", "validate settings", "baseline settings rejected", err)
	}
	logger := logging.WithContext(ctx, n.logger)

	box, err := container.Open(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "deltaf", "open container", "cannot open container", err)
	}
	defer box.Close()

	present, err := box.HasDataset(ctx, container.DatasetDeltaF)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "deltaf", "inspect container", "cannot check prior outputs", err)
	}
	if present && !n.force {
		return fmt.Errorf("%w: deltaf traces already present", stage.ErrSkip)
	}

	traces, shape, err := box.ReadFloat64(ctx, container.DatasetTraces)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "deltaf", "read traces",
			"container holds no extracted traces; run extraction first", err)
	}
	if len(shape) != 2 {
		return services.Wrap(services.ErrContainerState, "deltaf", "read traces",
			fmt.Sprintf("traces have shape %v, want (rois, samples)", shape), nil)
	}
	rois, samples := shape[0], shape[1]

	started := time.Now()
	normalized, err := ComputeMatrix(traces, rois, samples, n.settings)
	if err != nil {
		return n.classify(err)
	}
	elapsed := time.Since(started)

	write := container.StageWrite{
		Stage:  "deltaf",
		Groups: []string{container.GroupDeltaF},
		Force:  n.force,
	}
	writeErr := box.WriteStage(ctx, write, func(w *container.StageWriter) error {
		if err := w.PutFloat64(container.DatasetDeltaF, []int{rois, samples}, normalized); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupDeltaF, container.AttrMethod, n.settings.Method); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupDeltaF, container.AttrPercentile, n.settings.Percentile); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupDeltaF, container.AttrWindow, n.settings.Window); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupDeltaF, container.AttrWindowMode, n.settings.WindowMode); err != nil {
			return err
		}
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = uuid.NewString()
		}
		if err := w.SetAttr(container.GroupDeltaF, container.AttrRunID, runID); err != nil {
			return err
		}
		return w.SetAttr(container.GroupDeltaF, container.AttrWrittenAt, time.Now().UTC().Format(time.RFC3339))
	})
	if writeErr != nil {
		return services.Wrap(services.ErrContainerState, "deltaf", "write outputs", "container write failed", writeErr)
	}

	logger.Info("baseline normalization complete",
		logging.String("method", n.settings.Method),
		logging.Int("rois", rois),
		logging.Int("samples", samples),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// classify maps computation failures onto the pipeline error taxonomy. A
// degenerate baseline keeps its own marker; anything else ComputeMatrix
// rejects stems from the chosen settings, window size included.
func (n *Normalizer) classify(err error) error {
	var degenerate *DegenerateError
	if errors.As(err, &degenerate) {
		return services.Wrap(services.ErrBaselineDegenerate, "deltaf", "normalize traces", "", err)
	}
	return services.Wrap(services.ErrSettingsInvalid, "deltaf", "normalize traces", "", err)
}
