// Package resolver computes the ordered transitive closure of a module's
// required modules against a catalog of installed modules.
//
// The walk is depth first in declaration order. The discovery order is then
// reversed and de-duplicated by name, so the deepest discovered copy of a
// module wins and dependencies tend to sort ahead of their requirers. This
// is not a topological sort.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnzdotmx/psforge/internal/catalog"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// ErrDependencyCycle is returned when a module requires itself, directly or
// through other modules.
var ErrDependencyCycle = errors.New("circular module dependency")

// Result is the outcome of a resolution
type Result struct {
	// Dependencies holds each resolved module once, in copy order
	Dependencies []mod.Dependency
	// Missing holds requirements with no installed candidate
	Missing []mod.Requirement
}

// Substitutions returns the dependencies resolved to a version other than the one requested
func (r *Result) Substitutions() []mod.Dependency {
	var subs []mod.Dependency
	for _, d := range r.Dependencies {
		if d.Substituted {
			subs = append(subs, d)
		}
	}
	return subs
}

// Resolver resolves required modules against a catalog
type Resolver struct {
	catalog catalog.Catalog
	exclude map[string]bool
}

// New creates a resolver. Excluded module names are never resolved or copied.
func New(c catalog.Catalog, exclude ...string) *Resolver {
	r := &Resolver{
		catalog: c,
		exclude: make(map[string]bool, len(exclude)),
	}
	for _, name := range exclude {
		r.exclude[strings.ToLower(name)] = true
	}
	return r
}

// frame is one module on the current walk path with the requirements still to visit
type frame struct {
	key     string
	name    string
	pending []mod.Requirement
}

// Resolve walks the requirements of the root module. root names the module
// being built so that a dependency requiring it back is reported as a cycle.
func (r *Resolver) Resolve(root string, requirements []mod.Requirement) (*Result, error) {
	result := &Result{}
	var discovered []mod.Dependency
	missing := make(map[string]bool)
	onPath := make(map[string]bool)

	rootFrame := &frame{key: strings.ToLower(root), name: root, pending: requirements}
	if rootFrame.key != "" {
		onPath[rootFrame.key] = true
	}
	stack := []*frame{rootFrame}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top.pending) == 0 {
			stack = stack[:len(stack)-1]
			delete(onPath, top.key)
			continue
		}

		req := top.pending[0]
		top.pending = top.pending[1:]

		key := strings.ToLower(strings.TrimSpace(req.Name))
		if key == "" {
			continue
		}
		if r.exclude[key] {
			utils.LogDebug("Skipping excluded module %s", req.Name)
			continue
		}
		if onPath[key] {
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, cyclePath(stack, req.Name))
		}

		dep, requires, found, err := r.pick(req)
		if err != nil {
			return nil, err
		}
		if !found {
			if !missing[key] {
				missing[key] = true
				result.Missing = append(result.Missing, req)
			}
			utils.LogWarning("Required module %s is not installed", req)
			continue
		}

		utils.LogDebug("Discovered %s required by %s", dep, displayName(top.name))
		discovered = append(discovered, dep)
		onPath[key] = true
		stack = append(stack, &frame{key: key, name: dep.Name, pending: requires})
	}

	seen := make(map[string]bool, len(discovered))
	for i := len(discovered) - 1; i >= 0; i-- {
		key := strings.ToLower(discovered[i].Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Dependencies = append(result.Dependencies, discovered[i])
	}

	return result, nil
}

// pick selects the installed candidate for req
func (r *Resolver) pick(req mod.Requirement) (mod.Dependency, []mod.Requirement, bool, error) {
	candidates, err := r.catalog.Find(req.Name)
	if err != nil {
		return mod.Dependency{}, nil, false, fmt.Errorf("failed to look up module %s: %w", req.Name, err)
	}
	if len(candidates) == 0 {
		return mod.Dependency{}, nil, false, nil
	}

	chosen := candidates[0]
	substituted := false

	if req.IsLatest() {
		if req.MinimumVersion != "" && mod.CompareVersions(chosen.Version, req.MinimumVersion) < 0 {
			substituted = true
			utils.LogWarning("Module %s requires at least %s but newest installed is %s, using it anyway",
				req.Name, req.MinimumVersion, chosen.Version)
		}
	} else {
		exact := false
		for _, c := range candidates {
			if mod.CompareVersions(c.Version, req.RequiredVersion) == 0 {
				chosen = c
				exact = true
				break
			}
		}
		if !exact {
			substituted = true
			utils.LogWarning("Module %s version %s is not installed, using %s instead",
				req.Name, req.RequiredVersion, chosen.Version)
		}
	}

	return mod.Dependency{
		Requirement: req,
		Name:        chosen.Name,
		Version:     chosen.Version,
		Path:        chosen.Path,
		RootModule:  chosen.RootModule,
		Substituted: substituted,
	}, chosen.RequiredModules, true, nil
}

func cyclePath(stack []*frame, name string) string {
	var parts []string
	for _, f := range stack {
		if f.name != "" {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(append(parts, name), " -> ")
}

func displayName(name string) string {
	if name == "" {
		return "root"
	}
	return name
}
