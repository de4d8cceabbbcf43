package main

import (
	"github.com/spf13/cobra"

	"twop/internal/deltaf"
)

func newDeltaFCommand(ctx *commandContext) *cobra.Command {
	var (
		method     string
		percentile float64
		window     int
		windowMode string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "deltaf <path>",
		Short: "Normalize traces to baseline fluorescence",
		Long: `Compute the relative fluorescence change of every extracted trace against
its baseline. Flags override the [deltaf] section of the config file for
this invocation only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			settings := deltaf.SettingsFromConfig(cfg)
			if cmd.Flags().Changed("method") {
				settings.Method = method
			}
			if cmd.Flags().Changed("percentile") {
				settings.Percentile = percentile
			}
			if cmd.Flags().Changed("rolling-window") {
				settings.Window = window
			}
			if cmd.Flags().Changed("window-mode") {
				settings.WindowMode = windowMode
			}

			paths, err := resolveContainers(args[0], containerQuery{})
			if err != nil {
				return err
			}

			normalizer := deltaf.NewNormalizer(cfg, logger, settings, force)
			return ctx.runStage(cmd, "deltaf", paths, normalizer.Normalize)
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "Baseline method (percentile, mean or median)")
	cmd.Flags().Float64Var(&percentile, "percentile", 0, "Baseline percentile (0, 100)")
	cmd.Flags().IntVar(&window, "rolling-window", 0, "Rolling baseline window in frames (0 uses the whole trace)")
	cmd.Flags().StringVar(&windowMode, "window-mode", "", "Rolling window placement (trailing or centered)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace normalized traces that already exist")

	return cmd
}
