package main

import (
	"fmt"
	"os"

	"github.com/danmuck/bscdce/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "bscdce.toml"

// pathFlag registers a config path flag. BSCDCE_CONFIG replaces the default.
func pathFlag(fs *pflag.FlagSet, target *string, name, shorthand, usage string) {
	def := defaultConfigPath
	if env := os.Getenv("BSCDCE_CONFIG"); env != "" {
		def = env
	}
	fs.StringVarP(target, name, shorthand, def, usage)
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check configuration files",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration template with every default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template to %s\n", output)
			return nil
		},
	}
	pathFlag(initCmd.Flags(), &output, "output", "o", "output path for the config template")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	var input string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s (backend=%s transport=%s mode=%s bit_rate=%d)\n",
				input, cfg.Pins.Backend, cfg.Host.Transport, cfg.Host.Mode, cfg.BitRate)
			return nil
		},
	}
	pathFlag(validateCmd.Flags(), &input, "input", "i", "config path to validate")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
