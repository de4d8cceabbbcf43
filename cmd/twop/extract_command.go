package main

import (
	"github.com/spf13/cobra"

	"twop/internal/extract"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "ROI and signal extraction",
	}
	cmd.AddCommand(newExtractSignalCommand(ctx))
	return cmd
}

func newExtractSignalCommand(ctx *commandContext) *cobra.Command {
	var (
		recursive bool
		include   string
		exclude   string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "signal <path>",
		Short: "Separate cell signals from corrected frames",
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
			paths, err := resolveContainers(args[0], containerQuery{Recursive: recursive, Include: include, Exclude: exclude})
			if err != nil {
				return err
			}

			extractor := extract.New(cfg, logger, force)
			return ctx.runStage(cmd, "extract", paths, extractor.Extract)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().StringVarP(&include, "include", "i", "", "Only process containers matching this regex (separate alternatives with ;)")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "Skip containers matching this regex")
	cmd.Flags().BoolVar(&force, "force", false, "Replace extraction outputs that already exist")

	return cmd
}
