package separation

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

// ProgressUpdate captures fissa-sep progress events.
type ProgressUpdate struct {
	Percent float64
	ROI     int
	Message string
}

// Client defines signal separation behaviour.
type Client interface {
	Separate(ctx context.Context, framesPath, masksPath, outputDir string, progress func(ProgressUpdate)) (string, error)
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

// CLI wraps the fissa-sep command-line separator.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "fissa-sep"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Separate launches fissa-sep over a frame stack and ROI mask set, both stored
// as .npy, and returns the path of the separated trace matrix. The output
// holds five rows per ROI: the decontaminated cell signal first, then the four
// surrounding neuropil components.
func (c *CLI) Separate(ctx context.Context, framesPath, masksPath, outputDir string, progress func(ProgressUpdate)) (string, error) {
	if framesPath == "" {
		return "", errors.New("frames path required")
	}
	if masksPath == "" {
		return "", errors.New("masks path required")
	}
	cleanOutputDir := strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return "", errors.New("output directory required")
	}

	base := filepath.Base(framesPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	outputPath := filepath.Join(cleanOutputDir, stem+"_separated.npy")

	args := []string{
		"separate",
		"--frames", framesPath,
		"--masks", masksPath,
		"--output", outputPath,
		"--progress-json",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start fissa-sep: %w", err)
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
		return "", fmt.Errorf("read fissa-sep output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("fissa-sep separate failed: %w", err)
	}

	return outputPath, nil
}

var _ Client = (*CLI)(nil)
