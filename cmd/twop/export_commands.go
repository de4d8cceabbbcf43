package main

import (
	"context"

	"github.com/spf13/cobra"

	"twop/internal/export"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Interchange format export",
	}
	cmd.AddCommand(newExportNWBCommand(ctx))
	cmd.AddCommand(newExportCSVCommand(ctx))
	return cmd
}

func newExportNWBCommand(ctx *commandContext) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "nwb <path>",
		Short: "Export containers to NWB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			exporter := export.NewNWB(cfg, logger)
			return ctx.runStage(cmd, "export", paths, func(runCtx context.Context, path string) error {
				return exporter.Export(runCtx, path, outputDir)
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for NWB files (default: next to each container)")

	return cmd
}

func newExportCSVCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir string
		source    string
	)

	cmd := &cobra.Command{
		Use:   "csv <path>",
		Short: "Export traces to tab-separated tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			exporter := export.NewCSV(cfg, logger, source)
			return ctx.runStage(cmd, "export", paths, func(runCtx context.Context, path string) error {
				return exporter.Export(runCtx, path, outputDir)
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for trace tables (default: next to each container)")
	cmd.Flags().StringVar(&source, "source", "deltaf", "Trace source to export (deltaf or signals)")

	return cmd
}
