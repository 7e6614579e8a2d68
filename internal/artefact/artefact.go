// Package artefact populates artefact destination trees from the staged
// module, its resolved dependencies and extra files and folders.
//
// None of the operations are transactional. A failure part way through
// leaves a partially populated destination behind.
package artefact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/copyspec"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// Runtime specific build folders, in order of preference
var runtimeFolders = []string{"Desktop", "Core"}

// ModuleDestination returns Destination/ModuleName, or
// Destination/ModuleName/TagName when includeTag is set.
func ModuleDestination(root string, d mod.Descriptor, includeTag bool) string {
	dest := filepath.Join(root, d.Name)
	if includeTag {
		dest = filepath.Join(dest, d.TagName())
	}
	return dest
}

// BuildSource picks the staged tree to ship: a Desktop build if present,
// else a Core build, else the staging root itself.
func BuildSource(staging string) string {
	for _, name := range runtimeFolders {
		candidate := filepath.Join(staging, name)
		if utils.DirExists(candidate) {
			return candidate
		}
	}
	return staging
}

// CopyMainModule replaces dest with the built module from staging. Any
// previous copy at dest is removed first so repeated runs give the same tree.
func CopyMainModule(staging, dest string) error {
	src := BuildSource(staging)
	if !utils.DirExists(src) {
		return fmt.Errorf("staged module not found at %s", src)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to remove previous copy at %s: %w", dest, err)
	}

	utils.LogVerbose("Copying main module %s -> %s", src, dest)
	if err := utils.CopyDir(src, dest); err != nil {
		return fmt.Errorf("failed to copy main module: %w", err)
	}
	return nil
}

// CopyRequiredModules copies every resolved dependency into modulesDir.
// Each folder is named by the canonical module name, whatever the name of
// the installed folder, and any stale folder of that name is removed first.
// Missing modules are logged and skipped. It returns the number of modules
// copied.
func CopyRequiredModules(deps []mod.Dependency, missing []mod.Requirement, modulesDir string) (int, error) {
	for _, req := range missing {
		utils.LogWarning("Required module %s not found, skipped", req.Name)
	}

	copied := 0
	for _, dep := range deps {
		if dep.Path == "" || !utils.DirExists(dep.Path) {
			utils.LogWarning("Required module %s not found at %q, skipped", dep.Name, dep.Path)
			continue
		}

		dest := filepath.Join(modulesDir, dep.Name)
		if filepath.Base(dep.Path) != dep.Name {
			utils.LogDebug("Renaming %s to canonical name %s", filepath.Base(dep.Path), dep.Name)
		}
		if err := os.RemoveAll(dest); err != nil {
			return copied, fmt.Errorf("failed to remove stale module folder %s: %w", dest, err)
		}

		utils.LogVerbose("Copying required module %s -> %s", dep, dest)
		if err := utils.CopyDir(dep.Path, dest); err != nil {
			return copied, fmt.Errorf("failed to copy required module %s: %w", dep.Name, err)
		}
		copied++
	}

	return copied, nil
}

// CopyFiles resolves and executes the artefact's file entries under dest
func CopyFiles(a config.Artefact, projectRoot, dest string) (*copyspec.Plan, error) {
	return copyEntries(copyspec.Files, a.Files, projectRoot, dest, a.FilesAreRelative())
}

// CopyFolders resolves and executes the artefact's folder entries under dest.
// Missing folders are skipped.
func CopyFolders(a config.Artefact, projectRoot, dest string) (*copyspec.Plan, error) {
	return copyEntries(copyspec.Folders, a.Folders, projectRoot, dest, a.FoldersAreRelative())
}

func copyEntries(kind copyspec.Kind, entries config.CopyEntries, projectRoot, dest string, relative bool) (*copyspec.Plan, error) {
	plan, err := copyspec.Resolve(kind, entries, projectRoot, dest, relative)
	if err != nil {
		return nil, err
	}
	if err := plan.Execute(); err != nil {
		return plan, err
	}
	return plan, nil
}
