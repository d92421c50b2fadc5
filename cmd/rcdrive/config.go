package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration drive and scan would use: the defaults overlaid
with --config. The output is a valid config file to start from.`,
		Example: `  rcdrive config > rcdrive.yaml
  rcdrive config --config rcdrive.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			cmd.SilenceUsage = true
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}
