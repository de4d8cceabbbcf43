package main

import (
	"github.com/spf13/cobra"

	"twop/internal/spikes"
)

func newSpikesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spikes",
		Short: "Spike inference",
	}
	cmd.AddCommand(newSpikesInferCommand(ctx))
	return cmd
}

func newSpikesInferCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "infer <path>",
		Short: "Infer spike trains from normalized traces",
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

			inferrer := spikes.New(cfg, logger, force)
			return ctx.runStage(cmd, "spikes", paths, inferrer.Infer)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace inferred spikes that already exist")

	return cmd
}
