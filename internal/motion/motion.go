package motion

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
	"twop/internal/services/registration"
	"twop/internal/stage"
)

// Corrector implements the motion correction stage.
type Corrector struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   registration.Client
	settings Settings
	force    bool
}

// New constructs a Corrector that shells out to the configured registration
// binary.
func New(cfg *config.Config, logger *slog.Logger, settings Settings, force bool) *Corrector {
	client := registration.NewCLI(registration.WithBinary(cfg.Tools.Registration))
	return NewWithClient(cfg, logger, settings, force, client)
}

// NewWithClient constructs a Corrector with an injected registration client.
func NewWithClient(cfg *config.Config, logger *slog.Logger, settings Settings, force bool, client registration.Client) *Corrector {
	return &Corrector{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "motion"),
		client:   client,
		settings: settings,
		force:    force,
	}
}

// Correct registers one container's imaging stack.
func (c *Corrector) Correct(ctx context.Context, containerPath string) error {
	if err := c.settings.Validate(); err != nil {
		return services.Wrap(services.ErrSettingsInvalid, "motion", "validate settings", "registration settings rejected", err)
	}
	logger := logging.WithContext(ctx, c.logger)

	box, err := container.Open(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "motion", "open container", "cannot open container", err)
	}
	defer box.Close()

	corrected, err := box.HasDataset(ctx, container.DatasetMotionImaging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "motion", "inspect container", "cannot check prior outputs", err)
	}
	if corrected && !c.force {
		return fmt.Errorf("%w: motion correction already present", stage.ErrSkip)
	}

	frames, shape, err := box.ReadUint16(ctx, container.DatasetImaging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "motion", "read acquisition", "cannot read imaging stack", err)
	}
	if len(shape) != 3 {
		return services.Wrap(services.ErrShapeMismatch, "motion", "read acquisition",
			fmt.Sprintf("registration expects a single-channel (T,Y,X) stack, got shape %v", shape), nil)
	}

	workDir, err := os.MkdirTemp(c.cfg.Paths.WorkDir, "motion-*")
	if err != nil {
		return services.Wrap(services.ErrContainerState, "motion", "prepare work dir", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	framesNpy := filepath.Join(workDir, "frames.npy")
	if err := npyio.WriteUint16(framesNpy, shape, frames); err != nil {
		return services.Wrap(services.ErrContainerState, "motion", "stage frames", "cannot write interchange file", err)
	}

	logger.Info("registration starting",
		logging.String("strategy", string(c.settings.Strategy)),
		logging.Int("frames", shape[0]),
	)
	started := time.Now()
	result, err := c.client.Register(ctx, framesNpy, workDir, string(c.settings.Strategy), c.settings.Displacement,
		func(update registration.ProgressUpdate) {
			logger.Debug("registration progress",
				logging.Float64("percent", update.Percent),
				logging.String("tool_stage", update.Stage),
			)
		})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "motion", "register", "registration tool failed", err)
	}
	elapsed := time.Since(started)

	correctedValues, correctedShape, err := npyio.ReadUint16(result.CorrectedPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "motion", "collect corrected stack", "tool output unreadable", err)
	}
	if !shapesEqual(correctedShape, shape) {
		return services.Wrap(services.ErrShapeMismatch, "motion", "collect corrected stack",
			fmt.Sprintf("corrected stack is %v, input was %v", correctedShape, shape), nil)
	}

	displacements, dispShape, err := npyio.ReadInt64(result.DisplacementsPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "motion", "collect displacements", "tool output unreadable", err)
	}
	if len(dispShape) != 2 || dispShape[0] != shape[0] || dispShape[1] != 2 {
		return services.Wrap(services.ErrShapeMismatch, "motion", "collect displacements",
			fmt.Sprintf("displacement table is %v, want (%d,2)", dispShape, shape[0]), nil)
	}

	projection := meanProjection(correctedValues, shape)

	writeErr := box.WriteStage(ctx, container.StageWrite{
		Stage:  "motion",
		Groups: []string{container.GroupMotion, container.DatasetMeanProjection},
		Force:  c.force,
	}, func(w *container.StageWriter) error {
		if err := w.PutUint16(container.DatasetMotionImaging, shape, correctedValues); err != nil {
			return err
		}
		if err := w.PutInt64(container.DatasetDisplacements, dispShape, displacements); err != nil {
			return err
		}
		if err := w.PutFloat64(container.DatasetMeanProjection, []int{shape[1], shape[2]}, projection); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupMotion, container.AttrStrategy, string(c.settings.Strategy)); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupMotion, container.AttrMaxDisplacement, c.settings.Displacement[:]); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupMotion, container.AttrProcessingTime, formatElapsed(elapsed)); err != nil {
			return err
		}
		if err := w.SetAttr(container.GroupMotion, container.AttrTool, c.cfg.Tools.Registration); err != nil {
			return err
		}
		runID, ok := services.RunIDFromContext(ctx)
		if !ok {
			runID = uuid.NewString()
		}
		if err := w.SetAttr(container.GroupMotion, container.AttrRunID, runID); err != nil {
			return err
		}
		return w.SetAttr(container.GroupMotion, container.AttrWrittenAt, time.Now().UTC().Format(time.RFC3339))
	})
	if writeErr != nil {
		return services.Wrap(services.ErrContainerState, "motion", "write outputs", "container write failed", writeErr)
	}

	logger.Info("motion correction complete",
		logging.String("strategy", string(c.settings.Strategy)),
		logging.String("elapsed", formatElapsed(elapsed)),
	)
	return nil
}

func shapesEqual(a, b []int) bool {
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

// meanProjection averages a (T,Y,X) stack over time.
func meanProjection(values []uint16, shape []int) []float64 {
	frames, height, width := shape[0], shape[1], shape[2]
	pixels := height * width
	out := make([]float64, pixels)
	for t := 0; t < frames; t++ {
		base := t * pixels
		for i := 0; i < pixels; i++ {
			out[i] += float64(values[base+i])
		}
	}
	for i := range out {
		out[i] /= float64(frames)
	}
	return out
}

// formatElapsed renders a duration the way the registration logs do, e.g.
// "0h 1m 2.34s".
func formatElapsed(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := d.Seconds() - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, seconds)
}
