package nwbexport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures nwb-export progress events.
type ProgressUpdate struct {
	Percent float64
	Stage   string
	Message string
}

// Client defines NWB export behaviour.
type Client interface {
	Export(ctx context.Context, manifestPath, outputPath string, progress func(ProgressUpdate)) error
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

// CLI wraps the nwb-export command-line packager.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "nwb-export"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Export launches nwb-export against a manifest describing the staged .npy
// datasets and session metadata, producing the NWB file at outputPath.
func (c *CLI) Export(ctx context.Context, manifestPath, outputPath string, progress func(ProgressUpdate)) error {
	if manifestPath == "" {
		return errors.New("manifest path required")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	args := []string{
		"export",
		"--manifest", manifestPath,
		"--output", outputPath,
		"--progress-json",
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start nwb-export: %w", err)
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
		return fmt.Errorf("read nwb-export output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("nwb-export failed: %w", err)
	}

	return nil
}

var _ Client = (*CLI)(nil)
