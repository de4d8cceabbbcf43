package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures oasis-infer progress events.
type ProgressUpdate struct {
	Percent float64
	ROI     int
	Message string
}

// Client defines spike inference behaviour.
type Client interface {
	Infer(ctx context.Context, tracesPath, outputDir string, frameRate float64, progress func(ProgressUpdate)) (string, error)
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

// CLI wraps the oasis-infer command-line deconvolver.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "oasis-infer"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Infer launches oasis-infer over a trace matrix stored as .npy and returns
// the path of the inferred event matrix. The sampling rate lets the
// deconvolver scale its decay kernel to the recording.
func (c *CLI) Infer(ctx context.Context, tracesPath, outputDir string, frameRate float64, progress func(ProgressUpdate)) (string, error) {
	if tracesPath == "" {
		return "", errors.New("traces path required")
	}
	cleanOutputDir := strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return "", errors.New("output directory required")
	}
	if frameRate <= 0 {
		return "", fmt.Errorf("frame rate must be positive, got %g", frameRate)
	}

	base := filepath.Base(tracesPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	outputPath := filepath.Join(cleanOutputDir, stem+"_events.npy")

	args := []string{
		"infer",
		"--input", tracesPath,
		"--output", outputPath,
		"--rate", strconv.FormatFloat(frameRate, 'g', -1, 64),
		"--progress-json",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start oasis-infer: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var payload struct {
			Percent float64 `json:"percent"`
			ROI     int     `json:"roi"`
			Message string  `json:"message"`
		}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{Percent: payload.Percent, ROI: payload.ROI, Message: payload.Message})
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read oasis-infer output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("oasis-infer failed: %w", err)
	}

	return outputPath, nil
}

var _ Client = (*CLI)(nil)
