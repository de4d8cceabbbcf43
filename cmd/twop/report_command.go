package main

import (
	"context"

	"github.com/spf13/cobra"

	"twop/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "report <path>",
		Short: "Render HTML quality reports",
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

			reporter := report.New(cfg, logger)
			return ctx.runStage(cmd, "report", paths, func(runCtx context.Context, path string) error {
				return reporter.Report(runCtx, path, outputDir)
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for report files (default: next to each container)")

	return cmd
}
