package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"twop/internal/container"
	"twop/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <path>",
		Short: "Summarize container contents",
		Long: `Show one row per container: file size, frame stack shape, which stage
groups are present, the ROI count and the stage that wrote last. Containers
held by another process are listed as locked. Below the table, every
configured external tool is checked for availability.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			paths, err := resolveContainers(args[0], containerQuery{})
			if err != nil {
				return err
			}

			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			rows := make([][]string, 0, len(paths))
			var failures []error
			for _, path := range paths {
				row, err := statusRow(runCtx, path)
				switch {
				case err == nil:
					rows = append(rows, row)
				case errors.Is(err, container.ErrBusy):
					rows = append(rows, []string{filepath.Base(path), fileSize(path), "-", "locked", "-", "-"})
				default:
					failures = append(failures, fmt.Errorf("%s: %w", path, err))
					rows = append(rows, []string{filepath.Base(path), fileSize(path), "-", "unreadable", "-", "-"})
				}
			}

			out := cmd.OutOrStdout()
			colorize := ctx.colorize(os.Stdout)

			headers := []string{"RECORDING", "SIZE", "FRAMES", "GROUPS", "ROIS", "LAST STAGE"}
			aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("External tools", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range deps.CheckTools(cfg) {
				kind := statusOK
				message := status.Command
				switch {
				case !status.Configured:
					kind = statusError
					message = status.Detail
				case !status.Available:
					kind = statusWarn
					message = status.Detail
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}

			return errors.Join(failures...)
		},
	}
	return cmd
}

func statusRow(ctx context.Context, path string) ([]string, error) {
	box, err := container.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer box.Close()

	frames := "-"
	if info, err := box.Stat(ctx, container.DatasetImaging); err == nil {
		frames = shapeString(info.Shape)
	} else if !errors.Is(err, container.ErrNotFound) {
		return nil, err
	}

	groups, err := box.Groups(ctx)
	if err != nil {
		return nil, err
	}

	rois, err := roiCount(ctx, box)
	if err != nil {
		return nil, err
	}

	last, err := lastStage(ctx, box, groups)
	if err != nil {
		return nil, err
	}

	return []string{
		filepath.Base(path),
		fileSize(path),
		frames,
		strings.Join(groups, " "),
		rois,
		last,
	}, nil
}

// roiCount prefers the mask count and falls back to the trace matrices, so
// stitched session containers without masks still report their ROIs.
func roiCount(ctx context.Context, box *container.Container) (string, error) {
	for _, dataset := range []string{container.DatasetROIMasks, container.DatasetTraces, container.DatasetDeltaF} {
		info, err := box.Stat(ctx, dataset)
		if err == nil {
			return strconv.Itoa(info.Shape[0]), nil
		}
		if !errors.Is(err, container.ErrNotFound) {
			return "", err
		}
	}
	return "-", nil
}

// lastStage names the group whose written_at provenance is newest. Groups
// written before provenance stamping, acquisition included, are covered by
// the dataset creation-time fallback.
func lastStage(ctx context.Context, box *container.Container, groups []string) (string, error) {
	var (
		name   string
		latest time.Time
	)
	for _, group := range groups {
		stamp, ok, err := box.AttrString(ctx, group, container.AttrWrittenAt)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			continue
		}
		if at.After(latest) {
			latest = at
			name = group
		}
	}
	if name != "" {
		return name, nil
	}

	infos, err := box.List(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Group() == container.GroupQC {
			continue
		}
		if info.CreatedAt.After(latest) {
			latest = info.CreatedAt
			name = info.Group()
		}
	}
	if name == "" {
		return "-", nil
	}
	return name, nil
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = strconv.Itoa(dim)
	}
	return strings.Join(parts, " x ")
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return humanize.IBytes(uint64(info.Size()))
}
