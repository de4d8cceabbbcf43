package main

import (
	"github.com/spf13/cobra"

	"twop/internal/motion"
)

func newMotionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "motion",
		Short: "Motion correction",
	}
	cmd.AddCommand(newMotionCorrectCommand(ctx))
	return cmd
}

func newMotionCorrectCommand(ctx *commandContext) *cobra.Command {
	var (
		settingsPath string
		recursive    bool
		include      string
		exclude      string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "correct <path>",
		Short: "Register frames against motion artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := motion.LoadSettings(settingsPath)
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
			paths, err := resolveContainers(args[0], containerQuery{Recursive: recursive, Include: include, Exclude: exclude})
			if err != nil {
				return err
			}

			corrector := motion.New(cfg, logger, settings, force)
			return ctx.runStage(cmd, "motion", paths, corrector.Correct)
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings-path", "", "TOML file with registration settings")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().StringVarP(&include, "include", "i", "", "Only process containers matching this regex (separate alternatives with ;)")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "Skip containers matching this regex")
	cmd.Flags().BoolVar(&force, "force", false, "Replace motion outputs that already exist")
	_ = cmd.MarkFlagRequired("settings-path")

	return cmd
}
