// Package mod provides the core module types shared by the build pipeline
package mod

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Latest is the version constraint that selects the newest installed copy
const Latest = "Latest"

// Requirement represents one declared dependency of a module
type Requirement struct {
	Name            string `yaml:"name"`
	RequiredVersion string `yaml:"requiredVersion,omitempty"`
	MinimumVersion  string `yaml:"minimumVersion,omitempty"`
}

// IsLatest reports whether the requirement asks for the newest installed copy
func (r Requirement) IsLatest() bool {
	return r.RequiredVersion == "" || strings.EqualFold(r.RequiredVersion, Latest)
}

// String returns a human readable form such as "Bar (Latest)"
func (r Requirement) String() string {
	switch {
	case !r.IsLatest():
		return fmt.Sprintf("%s (%s)", r.Name, r.RequiredVersion)
	case r.MinimumVersion != "":
		return fmt.Sprintf("%s (>= %s)", r.Name, r.MinimumVersion)
	default:
		return fmt.Sprintf("%s (%s)", r.Name, Latest)
	}
}

// UnmarshalYAML accepts either a bare module name or a mapping
func (r *Requirement) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = Requirement{Name: strings.TrimSpace(node.Value)}
	case yaml.MappingNode:
		type plain Requirement
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*r = Requirement(p)
	default:
		return fmt.Errorf("line %d: required module must be a name or a mapping", node.Line)
	}
	if r.Name == "" {
		return fmt.Errorf("line %d: required module name is empty", node.Line)
	}
	return nil
}

// Dependency is a Requirement bound to a concrete installed copy
type Dependency struct {
	Requirement Requirement
	// Name is the canonical module name as installed
	Name    string
	Version string
	// Path is the folder holding the installed copy
	Path string
	// RootModule is the module's script file relative to Path, if known
	RootModule string
	// Substituted is set when the requested version was unavailable
	Substituted bool
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s %s", d.Name, d.Version)
}
