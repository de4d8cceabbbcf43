package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"twop/internal/convert"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Import raw acquisitions",
	}
	cmd.AddCommand(newConvertRawCommand(ctx))
	return cmd
}

func newConvertRawCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir          string
		recursive          bool
		include            string
		exclude            string
		iniPath            string
		xmlPath            string
		generateTimestamps bool
		force              bool
	)

	cmd := &cobra.Command{
		Use:   "raw <path>",
		Short: "Convert raw recordings into containers",
		Long: `Convert microscope raw files into self-describing containers. The path may
be a single .raw file or a directory; directories are scanned for raw files,
each converted next to its source unless --output-dir says otherwise.`,
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

			converter := convert.New(cfg, logger, convert.Options{
				OutputDir:          outputDir,
				Force:              force,
				GenerateTimestamps: generateTimestamps,
				INIPath:            iniPath,
				XMLPath:            xmlPath,
			})
			paths, err := converter.Discover(args[0], include, exclude, recursive)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no raw recordings found at %s", args[0])
			}
			return ctx.runStage(cmd, "convert", paths, converter.Convert)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for converted containers (default: next to each raw file)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().StringVarP(&include, "include", "i", "", "Only convert files matching this regex (separate alternatives with ;)")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "Skip files matching this regex")
	cmd.Flags().StringVar(&iniPath, "ini-path", "", "Metadata INI file (default: sidecar next to the raw file)")
	cmd.Flags().StringVar(&xmlPath, "xml-path", "", "OME-XML file overriding the INI's embedded XML")
	cmd.Flags().BoolVar(&generateTimestamps, "generate-timestamps", false, "Derive per-frame timestamps from session notes")
	cmd.Flags().BoolVar(&force, "force", false, "Replace containers that already exist")

	return cmd
}
