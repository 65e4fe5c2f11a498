package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solstice-hq/aegis/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the gateway.

Defaults and environment overrides are applied before validation, so the
result reflects the configuration the run command would actually use.

Examples:
  # Validate the default config file
  aegis validate

  # Validate a specific file
  aegis validate --config /etc/aegis/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s is invalid\n\n", cfgFile)
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s\n", fe.Error())
			}
			return fmt.Errorf("%d validation error(s)", len(verr.Errors))
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  endpoints: %d\n", len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		fmt.Printf("    - %s -> %s%s\n", name, ep.BaseURL, ep.CompletionPath)
	}
	return nil
}
