package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"twop/internal/logging"
	"twop/internal/services"
)

// ErrSkip marks a recording a stage declined to process. Runners count
// skipped recordings separately from failures and carry on.
var ErrSkip = errors.New("skipped")

// Result records the outcome for one recording in a batch.
type Result struct {
	Path    string
	Err     error
	Skipped bool
	Elapsed time.Duration
}

// Outcome aggregates a batch run.
type Outcome struct {
	Stage   string
	Results []Result
}

// Completed counts recordings that finished without error.
func (o Outcome) Completed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err == nil && !r.Skipped {
			n++
		}
	}
	return n
}

// Skipped counts recordings the stage declined.
func (o Outcome) Skipped() int {
	n := 0
	for _, r := range o.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// Failed counts recordings that returned errors.
func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Err reports an aggregate error when any recording failed.
func (o Outcome) Err() error {
	failed := o.Failed()
	if failed == 0 {
		return nil
	}
	for _, r := range o.Results {
		if r.Err != nil {
			if failed == 1 {
				return fmt.Errorf("%s: %w", r.Path, r.Err)
			}
			return fmt.Errorf("%d of %d recordings failed, first %s: %w", failed, len(o.Results), r.Path, r.Err)
		}
	}
	return nil
}

// Run executes fn for each path in order. A failure in one recording is
// recorded and the batch continues, so a broken input cannot corrupt or block
// the rest. Cancellation stops the batch before the next recording starts.
func Run(ctx context.Context, logger *slog.Logger, stageName string, paths []string, fn func(context.Context, string) error) Outcome {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx = services.WithStage(ctx, stageName)
	stageLogger := logging.WithContext(ctx, logger)
	stageLogger.Info("stage started", logging.Int("recordings", len(paths)))

	outcome := Outcome{Stage: stageName, Results: make([]Result, 0, len(paths))}
	for _, path := range paths {
		if ctx.Err() != nil {
			outcome.Results = append(outcome.Results, Result{Path: path, Err: ctx.Err()})
			break
		}
		recCtx := services.WithRecording(ctx, path)
		recLogger := logging.WithContext(recCtx, logger)

		started := time.Now()
		err := fn(recCtx, path)
		elapsed := time.Since(started)

		switch {
		case errors.Is(err, ErrSkip):
			recLogger.Info("recording skipped", logging.String("reason", err.Error()))
			outcome.Results = append(outcome.Results, Result{Path: path, Skipped: true, Elapsed: elapsed})
		case err != nil:
			recLogger.Error("recording failed", logging.Error(err))
			outcome.Results = append(outcome.Results, Result{Path: path, Err: err, Elapsed: elapsed})
		default:
			recLogger.Info("recording completed", logging.Duration("elapsed", elapsed))
			outcome.Results = append(outcome.Results, Result{Path: path, Elapsed: elapsed})
		}
	}

	stageLogger.Info("stage completed",
		logging.Int("completed", outcome.Completed()),
		logging.Int("skipped", outcome.Skipped()),
		logging.Int("failed", outcome.Failed()),
	)
	return outcome
}
