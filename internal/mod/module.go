package mod

import (
	"fmt"
	"strings"
)

// Descriptor identifies the module being built. It is created once per
// build run and never changed afterwards.
type Descriptor struct {
	Name         string
	Version      string
	ProjectPath  string
	ManifestPath string
}

// TagName returns the version-derived label used in artefact paths, e.g. v1.2.0
func (d Descriptor) TagName() string {
	return "v" + strings.TrimPrefix(d.Version, "v")
}

// Validate checks that the descriptor carries a name, version and project path
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	if d.Version == "" {
		return fmt.Errorf("module version cannot be empty")
	}
	if !IsValidVersion(d.Version) {
		return fmt.Errorf("module version %q is not a valid version", d.Version)
	}
	if d.ProjectPath == "" {
		return fmt.Errorf("project path cannot be empty")
	}
	return nil
}

// Placeholders returns the built-in placeholder values for this module
func (d Descriptor) Placeholders() map[string]string {
	return map[string]string{
		"ModuleName":    d.Name,
		"ModuleVersion": d.Version,
		"TagName":       d.TagName(),
	}
}
