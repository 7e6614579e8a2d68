package cmd

import (
	"fmt"

	"github.com/gnzdotmx/psforge/internal/catalog"
	"github.com/gnzdotmx/psforge/internal/resolver"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the resolved required modules",
	Long:  `Resolve the required modules of the build file and print them in copy order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cat := catalog.NewFileSystem(cfg.Options.ModulePaths...)
		result, err := resolver.New(cat, cfg.Options.ExcludeModules...).
			Resolve(cfg.Information.ModuleName, cfg.Information.RequiredModules)
		if err != nil {
			return fmt.Errorf("failed to resolve required modules: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(result.Dependencies) == 0 && len(result.Missing) == 0 {
			fmt.Fprintf(out, "%s has no required modules.\n", cfg.Information.ModuleName)
			return nil
		}

		for i, dep := range result.Dependencies {
			note := ""
			if dep.Substituted {
				note = fmt.Sprintf(" (requested %s)", dep.Requirement)
			}
			fmt.Fprintf(out, "%d. %s%s\n   %s\n", i+1, dep, note, dep.Path)
		}
		for _, req := range result.Missing {
			fmt.Fprintf(out, "- %s: not installed\n", req)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
