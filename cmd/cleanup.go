package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gnzdotmx/psforge/internal/archive"
	"github.com/gnzdotmx/psforge/internal/config"

	"github.com/spf13/cobra"
)

var (
	archiveDir    string
	moduleName    string
	keepLatest    int
	olderThanDays int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old module archives",
	Long: `Remove old archives of the module based on version count or age.

Without --dir the archive folders of every packed artefact in the build file
are cleaned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keepLatest <= 0 && olderThanDays <= 0 {
			return fmt.Errorf("one of --keep-latest or --older-than is required")
		}

		dirs, module, err := cleanupTargets()
		if err != nil {
			return err
		}

		var cutoff time.Time
		if olderThanDays > 0 {
			cutoff = time.Now().AddDate(0, 0, -olderThanDays)
		}

		out := cmd.OutOrStdout()
		for _, dir := range dirs {
			// Check if archive directory exists
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				fmt.Fprintf(out, "Archive directory %s does not exist, skipped.\n", dir)
				continue
			}

			archives, err := archive.List(dir, module)
			if err != nil {
				return err
			}
			toDelete := archive.SelectPrune(archives, keepLatest, cutoff)
			if len(toDelete) == 0 {
				fmt.Fprintf(out, "No archives to delete in %s.\n", dir)
				continue
			}

			fmt.Fprintf(out, "Found %d archives to delete in %s:\n", len(toDelete), dir)
			for _, a := range toDelete {
				fmt.Fprintf(out, "- %s\n", a.Path)
			}

			if cleanupDryRun {
				fmt.Fprintln(out, "Dry run - no archives were deleted.")
				continue
			}

			for _, a := range toDelete {
				if err := os.Remove(a.Path); err != nil {
					fmt.Fprintf(out, "Error deleting %s: %v\n", a.Path, err)
				}
			}
		}

		fmt.Fprintln(out, "Cleanup completed.")
		return nil
	},
}

// cleanupTargets returns the archive folders to clean and the module name
func cleanupTargets() ([]string, string, error) {
	if archiveDir != "" {
		if moduleName == "" {
			return nil, "", fmt.Errorf("--module is required with --dir")
		}
		return []string{archiveDir}, moduleName, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, a := range cfg.Artefacts {
		if a.Type != config.ArtefactPacked || seen[a.ZipPath] {
			continue
		}
		seen[a.ZipPath] = true
		dirs = append(dirs, a.ZipPath)
	}
	if len(dirs) == 0 {
		return nil, "", fmt.Errorf("%s declares no packed artefacts", configPath)
	}
	return dirs, cfg.Information.ModuleName, nil
}

func init() {
	cleanupCmd.Flags().StringVarP(&archiveDir, "dir", "d", "", "Archive directory to clean up instead of the build file's")
	cleanupCmd.Flags().StringVarP(&moduleName, "module", "m", "", "Module whose archives are cleaned (required with --dir)")
	cleanupCmd.Flags().IntVarP(&keepLatest, "keep-latest", "k", 0, "Keep this many latest versions")
	cleanupCmd.Flags().IntVarP(&olderThanDays, "older-than", "o", 0, "Delete archives older than this many days")
	cleanupCmd.Flags().BoolVarP(&cleanupDryRun, "dry-run", "n", false, "Show what would be deleted without actually deleting")

	rootCmd.AddCommand(cleanupCmd)
}
