// cmd/mbtransport/validate_config.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-transport/internal/config"
)

type validateConfigFlags struct {
	configFile string
}

func newValidateConfigCmd() *cobra.Command {
	flags := &validateConfigFlags{}

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.configFile == "" && len(args) > 0 {
				flags.configFile = args[0]
			}
			cfg, err := loadConfig(flags.configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d endpoint override(s), %d unit(s)\n",
				len(cfg.Transport.Endpoints), len(cfg.Transport.Units))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.configFile, "config", "", "Path to the YAML configuration (required)")
	return cmd
}

// loadConfig runs the full load, validate and normalize sequence.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("required flag --config not set")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}
