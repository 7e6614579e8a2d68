package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gnzdotmx/psforge/internal/mod"
)

// Existing is an archive of a module found on disk
type Existing struct {
	Path    string
	Version string
	ModTime time.Time
}

// List returns the archives of module in dir, newest version first. Both the
// default and the legacy naming are recognised. Files whose version cannot be
// parsed are ignored.
func List(dir, module string) ([]Existing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var found []Existing
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, ok := parseVersion(e.Name(), module)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		found = append(found, Existing{
			Path:    filepath.Join(dir, e.Name()),
			Version: version,
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return mod.CompareVersions(found[i].Version, found[j].Version) > 0
	})
	return found, nil
}

func parseVersion(file, module string) (string, bool) {
	if !strings.EqualFold(filepath.Ext(file), ".zip") {
		return "", false
	}
	base := strings.TrimSuffix(file, filepath.Ext(file))

	var version string
	switch {
	case strings.HasPrefix(base, module+"-v"):
		version = strings.TrimPrefix(base, module+"-v")
	case strings.HasPrefix(base, module+"."):
		version = strings.TrimPrefix(base, module+".")
	default:
		return "", false
	}
	return version, mod.IsValidVersion(version)
}

// SelectPrune picks the archives to delete from a newest-first list. All
// but the keepLatest newest versions are selected, plus any archive last
// written before cutoff. Zero values disable the respective rule.
func SelectPrune(archives []Existing, keepLatest int, cutoff time.Time) []Existing {
	var prune []Existing
	for i, a := range archives {
		switch {
		case keepLatest > 0 && i >= keepLatest:
			prune = append(prune, a)
		case !cutoff.IsZero() && a.ModTime.Before(cutoff):
			prune = append(prune, a)
		}
	}
	return prune
}
