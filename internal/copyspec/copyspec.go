// Package copyspec turns file and folder copy entries from the build
// configuration into concrete source and destination pairs.
package copyspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// ErrSourceNotFound is returned when a file copy source does not exist
var ErrSourceNotFound = errors.New("copy source not found")

// Kind selects whether entries describe files or folders
type Kind int

const (
	// Files entries must resolve to regular files
	Files Kind = iota
	// Folders entries must resolve to directories
	Folders
)

func (k Kind) String() string {
	if k == Folders {
		return "folder"
	}
	return "file"
}

// Operation is one resolved copy
type Operation struct {
	Source      string
	Destination string
	Dir         bool
}

// Plan is the ordered list of copies for one group of entries
type Plan struct {
	Kind       Kind
	Operations []Operation
	// Skipped lists sources that were disabled or, for folders, missing
	Skipped []string
}

// Resolve builds a plan for entries. Sources are taken relative to
// projectRoot, relative destinations are joined under destRoot and
// defaultRelative applies to entries that do not set their own flag.
//
// A missing file aborts the whole group with ErrSourceNotFound. A missing
// folder is logged and skipped.
func Resolve(kind Kind, entries config.CopyEntries, projectRoot, destRoot string, defaultRelative bool) (*Plan, error) {
	plan := &Plan{Kind: kind}

	for _, entry := range entries {
		if !entry.Enabled {
			utils.LogVerbose("Skipping disabled %s entry %s", kind, entry.Source)
			plan.Skipped = append(plan.Skipped, entry.Source)
			continue
		}

		dest, err := resolveDestination(entry.Destination, destRoot, entry.IsRelative(defaultRelative))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination for %s: %w", entry.Source, err)
		}

		ops, err := expandSource(kind, projectRoot, entry.Source, dest)
		if err != nil {
			if kind == Folders && errors.Is(err, ErrSourceNotFound) {
				utils.LogWarning("Folder %s not found, skipped", entry.Source)
				plan.Skipped = append(plan.Skipped, entry.Source)
				continue
			}
			return nil, err
		}
		plan.Operations = append(plan.Operations, ops...)
	}

	return plan, nil
}

// Execute performs the planned copies in order. It is not transactional: a
// failure leaves the copies made so far in place.
func (p *Plan) Execute() error {
	for _, op := range p.Operations {
		utils.LogVerbose("Copying %s -> %s", op.Source, op.Destination)
		var err error
		if op.Dir {
			err = utils.CopyDir(op.Source, op.Destination)
		} else {
			err = utils.CopyFile(op.Source, op.Destination)
		}
		if err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", op.Source, op.Destination, err)
		}
	}
	return nil
}

func resolveDestination(dest, root string, relative bool) (string, error) {
	if relative {
		return filepath.Join(root, dest), nil
	}
	expanded, err := utils.ExpandHomeDir(dest)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func expandSource(kind Kind, projectRoot, source, dest string) ([]Operation, error) {
	wantDir := kind == Folders

	if !hasMeta(source) {
		path := filepath.Join(projectRoot, source)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
			}
			return nil, fmt.Errorf("failed to access %s: %w", path, err)
		}
		if info.IsDir() != wantDir {
			return nil, fmt.Errorf("%s is not a %s", path, kind)
		}
		return []Operation{{Source: path, Destination: dest, Dir: wantDir}}, nil
	}

	base, pattern := doublestar.SplitPattern(filepath.ToSlash(source))
	baseDir := filepath.Join(projectRoot, filepath.FromSlash(base))
	if !utils.DirExists(baseDir) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, filepath.Join(projectRoot, source))
	}

	matches, err := doublestar.Glob(os.DirFS(baseDir), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", source, err)
	}

	var ops []Operation
	for _, m := range matches {
		path := filepath.Join(baseDir, filepath.FromSlash(m))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() != wantDir {
			continue
		}
		ops = append(ops, Operation{
			Source:      path,
			Destination: filepath.Join(dest, filepath.FromSlash(m)),
			Dir:         wantDir,
		})
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: no %s matches %s", ErrSourceNotFound, kind, source)
	}

	return ops, nil
}
