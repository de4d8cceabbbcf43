package registration

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures sima-mc progress events.
type ProgressUpdate struct {
	Percent float64
	Stage   string
	Message string
}

// Result reports the artifact paths produced by one registration run.
type Result struct {
	CorrectedPath     string
	DisplacementsPath string
}

// Client defines motion registration behaviour.
type Client interface {
	Register(ctx context.Context, framesPath, outputDir, strategy string, maxDisplacement [2]int, progress func(ProgressUpdate)) (Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the sima-mc command-line registrar.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "sima-mc"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Register launches sima-mc over a frame stack stored as .npy and returns the
// paths of the corrected stack and the per-frame displacement table.
func (c *CLI) Register(ctx context.Context, framesPath, outputDir, strategy string, maxDisplacement [2]int, progress func(ProgressUpdate)) (Result, error) {
	if framesPath == "" {
		return Result{}, errors.New("frames path required")
	}
	cleanOutputDir := strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return Result{}, errors.New("output directory required")
	}
	if strategy == "" {
		return Result{}, errors.New("strategy required")
	}
	if maxDisplacement[0] <= 0 || maxDisplacement[1] <= 0 {
		return Result{}, fmt.Errorf("max displacement must be positive, got %dx%d", maxDisplacement[0], maxDisplacement[1])
	}

	base := filepath.Base(framesPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	result := Result{
		CorrectedPath:     filepath.Join(cleanOutputDir, stem+"_corrected.npy"),
		DisplacementsPath: filepath.Join(cleanOutputDir, stem+"_displacements.npy"),
	}

	args := []string{
		"register",
		"--input", framesPath,
		"--corrected", result.CorrectedPath,
		"--displacements", result.DisplacementsPath,
		"--strategy", strategy,
		"--max-displacement", fmt.Sprintf("%d,%d", maxDisplacement[0], maxDisplacement[1]),
		"--progress-json",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start sima-mc: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var payload struct {
			Percent float64 `json:"percent"`
			Stage   string  `json:"stage"`
			Message string  `json:"message"`
		}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{Percent: payload.Percent, Stage: payload.Stage, Message: payload.Message})
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read sima-mc output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("sima-mc register failed: %w", err)
	}

	return result, nil
}

var _ Client = (*CLI)(nil)
