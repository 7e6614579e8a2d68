package cmd

import (
	"fmt"

	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/gnzdotmx/psforge/internal/validator"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the build file and environment setup",
	Long:  `Check that the build file is valid and that the tools and credentials it needs are available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.LogInfo("Validating %s...", configPath)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		utils.LogSuccess("Build file: OK (%s %s)", cfg.Information.ModuleName, cfg.Information.ModuleVersion)

		if err := validator.ValidateExternalTools(cfg); err != nil {
			return fmt.Errorf("external tools validation failed: %w", err)
		}
		utils.LogSuccess("External tools: OK")

		if err := validator.ValidateEnvVars(cfg); err != nil {
			return fmt.Errorf("environment variables validation failed: %w", err)
		}
		utils.LogSuccess("Environment variables: OK")

		if err := validator.ValidateModulePaths(cfg); err != nil {
			return fmt.Errorf("module paths validation failed: %w", err)
		}
		utils.LogSuccess("Module paths: OK")

		if n := len(cfg.Information.RequiredModules); n > 0 {
			names := make([]string, 0, n)
			for _, r := range cfg.Information.RequiredModules {
				names = append(names, r.Name)
			}
			utils.LogVerbose("Declared required modules: %v", names)
		}

		utils.LogSuccess("Validation completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
