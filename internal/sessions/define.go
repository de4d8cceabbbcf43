package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
)

// Definer writes trial bounds into a recording container.
type Definer struct {
	cfg    *config.Config
	logger *slog.Logger
	force  bool
}

func NewDefiner(cfg *config.Config, logger *slog.Logger, force bool) *Definer {
	return &Definer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "session"),
		force:  force,
	}
}

// Define validates trials against the recording length and writes the
// sessions/trials dataset. The source string records where the bounds came
// from, typically a flag value or a trials file path.
func (d *Definer) Define(ctx context.Context, containerPath string, trials []Trial, source string) error {
	logger := logging.WithContext(ctx, d.logger)

	box, err := container.Open(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "session", "open container", "cannot open container", err)
	}
	defer box.Close()

	info, err := box.Stat(ctx, container.DatasetImaging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "session", "stat imaging", "recording has no acquisition data", err)
	}
	frames := int64(info.Shape[0])
	if err := ValidateTrials(trials, frames); err != nil {
		return services.Wrap(services.ErrSettingsInvalid, "session", "validate trials", "", err)
	}

	bounds := make([]int64, 0, len(trials)*2)
	labels := make([]string, 0, len(trials))
	labelled := false
	for _, trial := range trials {
		bounds = append(bounds, trial.Start, trial.End)
		labels = append(labels, trial.Label)
		if trial.Label != "" {
			labelled = true
		}
	}

	write := container.StageWrite{
		Stage:  "session",
		Groups: []string{container.GroupSessions},
		Force:  d.force,
	}
	err = box.WriteStage(ctx, write, func(w *container.StageWriter) error {
		if err := w.PutInt64(container.DatasetTrials, []int{len(trials), 2}, bounds); err != nil {
			return err
		}
		if err := w.SetAttr(container.DatasetTrials, container.AttrTrialSource, source); err != nil {
			return err
		}
		if labelled {
			if err := w.SetAttr(container.DatasetTrials, container.AttrTrialLabels, labels); err != nil {
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
	if err != nil {
		return services.Wrap(services.ErrContainerState, "session", "write trials", "container write failed", err)
	}

	logger.Info("trial bounds defined",
		logging.Int("trials", len(trials)),
		logging.Int64("frames", frames),
	)
	return nil
}
