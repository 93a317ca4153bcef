package main

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ghgforest/pipeline"
)

func newConfigCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the reference configuration, or the given file overlaid on it, as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pipeline.DefaultConfig()
			if path != "" {
				var err error
				if cfg, err = pipeline.LoadConfig(path); err != nil {
					return err
				}
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "YAML configuration to overlay")
	return cmd
}
