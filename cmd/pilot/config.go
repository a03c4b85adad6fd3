package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelpilot/internal/config"
)

var (
	flagShowDefault bool
	flagValidate    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration a session would use, after layering the
config file over the defaults and applying --preset.

Search order:
  --config <path>
  ~/.pilot/pilot.yaml
  ./configs/pilot.yaml
  built-in defaults

Examples:
  pilot config
  pilot config --default > ~/.pilot/pilot.yaml
  pilot config --config ./my.yaml --validate`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&flagShowDefault, "default", false, "Print the built-in default file")
	configCmd.Flags().BoolVar(&flagValidate, "validate", false, "Only validate, print nothing on success")
	configCmd.Flags().StringVar(&flagPreset, "preset", "", "Timing preset: rollout, teleop, fast")
}

func runConfig(_ *cobra.Command, _ []string) error {
	if flagShowDefault {
		_, err := os.Stdout.Write(config.DefaultYAML())
		return err
	}

	cfg, err := sessionConfig()
	if err != nil {
		return err
	}
	if flagValidate {
		fmt.Fprintln(os.Stderr, "Configuration is valid.")
		return nil
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
