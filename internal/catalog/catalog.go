// Package catalog finds installed copies of modules on disk
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// Module is one installed copy of a module
type Module struct {
	Name            string
	Version         string
	Path            string
	ManifestPath    string
	RootModule      string
	RequiredModules []mod.Requirement
}

// Catalog looks up installed copies of a module by name. Implementations
// match names case-insensitively and return candidates newest first.
type Catalog interface {
	Find(name string) ([]Module, error)
}

// FileSystem is a Catalog backed by module root directories laid out as
// <root>/<Name>/<Version>/<Name>.psd1 or <root>/<Name>/<Name>.psd1
type FileSystem struct {
	roots []string
	cache map[string][]Module
}

// NewFileSystem creates a catalog over the given module roots, searched in order
func NewFileSystem(roots ...string) *FileSystem {
	return &FileSystem{
		roots: roots,
		cache: make(map[string][]Module),
	}
}

// DefaultRoots returns the module roots listed in PSModulePath
func DefaultRoots() []string {
	var roots []string
	for _, p := range filepath.SplitList(os.Getenv("PSModulePath")) {
		if p = strings.TrimSpace(p); p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

// Roots returns the module roots searched by the catalog
func (c *FileSystem) Roots() []string {
	return c.roots
}

// Find returns every installed copy of name, newest first
func (c *FileSystem) Find(name string) ([]Module, error) {
	key := strings.ToLower(name)
	if found, ok := c.cache[key]; ok {
		return found, nil
	}

	var found []Module
	for _, root := range c.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				utils.LogDebug("Module root %s does not exist", root)
				continue
			}
			return nil, fmt.Errorf("failed to read module root %s: %w", root, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || !strings.EqualFold(entry.Name(), name) {
				continue
			}
			mods, err := scanModuleDir(filepath.Join(root, entry.Name()), entry.Name())
			if err != nil {
				return nil, err
			}
			found = append(found, mods...)
		}
	}

	sortNewestFirst(found)
	c.cache[key] = found
	return found, nil
}

// scanModuleDir collects the versionless and versioned copies under dir.
// A copy whose manifest cannot be read is skipped, or kept under its folder
// version with no requirements when it has one.
func scanModuleDir(dir, name string) ([]Module, error) {
	var found []Module

	if manifest := findManifest(dir, name); manifest != "" {
		m, err := load(dir, name, manifest, "")
		if err != nil {
			utils.LogWarning("Skipping %s: %v", dir, err)
		} else {
			found = append(found, m)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read module directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !mod.IsValidVersion(entry.Name()) {
			continue
		}
		versionDir := filepath.Join(dir, entry.Name())
		manifest := findManifest(versionDir, name)
		if manifest == "" {
			utils.LogDebug("No manifest for %s in %s", name, versionDir)
			continue
		}
		m, err := load(versionDir, name, manifest, entry.Name())
		if err != nil {
			utils.LogWarning("Using folder version for %s: %v", versionDir, err)
			m = Module{Name: name, Version: entry.Name(), Path: versionDir, ManifestPath: manifest}
		}
		found = append(found, m)
	}

	return found, nil
}

func findManifest(dir, name string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), name+".psd1") {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

func load(dir, name, manifestPath, folderVersion string) (Module, error) {
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return Module{}, err
	}

	version := manifest.ModuleVersion
	if version == "" {
		version = folderVersion
	}
	if version == "" {
		return Module{}, fmt.Errorf("manifest %s has no ModuleVersion", manifestPath)
	}

	return Module{
		Name:            name,
		Version:         version,
		Path:            dir,
		ManifestPath:    manifestPath,
		RootModule:      manifest.RootModule,
		RequiredModules: manifest.RequiredModules,
	}, nil
}

func sortNewestFirst(mods []Module) {
	sort.SliceStable(mods, func(i, j int) bool {
		return mod.CompareVersions(mods[i].Version, mods[j].Version) > 0
	})
}

// Static is an in-memory Catalog
type Static []Module

// Find returns the modules matching name, newest first
func (s Static) Find(name string) ([]Module, error) {
	var found []Module
	for _, m := range s {
		if strings.EqualFold(m.Name, name) {
			found = append(found, m)
		}
	}
	sortNewestFirst(found)
	return found, nil
}
