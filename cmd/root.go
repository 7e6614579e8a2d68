package cmd

import (
	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// verbosityLevel is the command-line flag for setting the log level
	verbosityLevel string
	// configPath is the build file shared by every subcommand
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "psforge",
	Short: "Build and release tool for PowerShell modules",
	Long: `psforge assembles PowerShell modules into release artefacts.

It resolves required modules, merges the module sources, runs the tests and
produces folder, archive and single script artefacts as declared in a YAML
build file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set the global log level based on the flag
		logLevel := utils.LogLevelFromString(verbosityLevel)
		utils.SetLogLevel(logLevel)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global flags
	rootCmd.PersistentFlags().StringVarP(&verbosityLevel, "log-level", "l", "normal",
		"Set the logging verbosity level: quiet, normal, verbose, debug")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "build.yaml",
		"Path to the build YAML file")
}
