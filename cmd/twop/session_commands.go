package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"twop/internal/sessions"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Trial structure and multi-recording sessions",
	}
	cmd.AddCommand(newSessionDefineCommand(ctx))
	cmd.AddCommand(newSessionStitchCommand(ctx))
	return cmd
}

func newSessionDefineCommand(ctx *commandContext) *cobra.Command {
	var (
		bounds   string
		fromFile string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "define <path>",
		Short: "Write trial bounds into containers",
		Long: `Define the trial structure of one or more recordings. Bounds come either
from --bounds (comma-separated start:end frame pairs) or from a TOML file
with [[trial]] entries carrying start, end and an optional label.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (bounds == "") == (fromFile == "") {
				return fmt.Errorf("exactly one of --bounds or --from-file is required")
			}

			var (
				trials []sessions.Trial
				source string
				err    error
			)
			if bounds != "" {
				trials, err = sessions.ParseBounds(bounds)
				source = bounds
			} else {
				trials, err = sessions.LoadTrials(fromFile)
				source = fromFile
			}
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			paths, err := resolveContainers(args[0], containerQuery{})
			if err != nil {
				return err
			}

			definer := sessions.NewDefiner(cfg, logger, force)
			return ctx.runStage(cmd, "session", paths, func(runCtx context.Context, path string) error {
				return definer.Define(runCtx, path, trials, source)
			})
		},
	}

	cmd.Flags().StringVar(&bounds, "bounds", "", "Trial bounds as start:end[,start:end...] in frames")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "TOML file with [[trial]] entries")
	cmd.Flags().BoolVar(&force, "force", false, "Replace trial bounds that already exist")

	return cmd
}

func newSessionStitchCommand(ctx *commandContext) *cobra.Command {
	var (
		out    string
		source string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "stitch --out <file> <container...>",
		Short: "Concatenate recordings into a session container",
		Long: `Stitch the extracted traces of several recordings into one session
container. Inputs must agree on ROI count, ROI names and frame rate; the
output records per-input trial bounds so the seams stay recoverable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			stitcher := sessions.NewStitcher(cfg, logger, source, force)
			if err := stitcher.Stitch(runCtx, args, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stitched %d recordings into %s\n", len(args), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output session container path")
	cmd.Flags().StringVar(&source, "source", "deltaf", "Trace source to stitch (deltaf or signals)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an output container that already exists")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
