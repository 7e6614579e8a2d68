// Package watch re-runs a build when project sources change
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/gnzdotmx/psforge/internal/utils"
)

const defaultDebounce = 500 * time.Millisecond

// Paths that never trigger a rebuild
var defaultIgnores = []string{
	"**/.*",
	"**/.*/**",
	"**/*.swp",
	"**/*~",
}

// Config holds the parameters for a Watcher
type Config struct {
	// Dir is the project directory to watch recursively
	Dir string
	// Patterns select the files that trigger a rebuild, relative to Dir.
	// No patterns means every file.
	Patterns []string
	// Exclude lists directories whose changes are ignored, typically the
	// build output locations
	Exclude []string
	// Debounce is the quiet period after the last event before OnChange runs
	Debounce time.Duration
	// OnChange runs once per batch of changes, never concurrently
	OnChange func(ctx context.Context, changed []string) error
}

// Watcher batches filesystem events and calls OnChange serially
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	dir      string
	exclude  []string
	debounce time.Duration
}

// New validates the patterns and registers every directory under cfg.Dir
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	for _, pat := range cfg.Patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid pattern %q", pat)
		}
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}

	exclude := make([]string, 0, len(cfg.Exclude))
	for _, ex := range cfg.Exclude {
		abs, err := filepath.Abs(ex)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve excluded path: %w", err)
		}
		exclude = append(exclude, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w := &Watcher{cfg: cfg, fsw: fsw, dir: dir, exclude: exclude, debounce: debounce}
	if err := w.addTree(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. Changes that arrive while
// OnChange is running are queued and trigger one more run afterwards.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			utils.LogDebug("watch: close: %v", err)
		}
	}()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if evt.Has(fsnotify.Create) {
				w.addNewDir(evt.Name)
			}
			rel, keep := w.relevant(evt)
			if !keep {
				continue
			}
			utils.LogDebug("watch: %s %s", evt.Op, rel)
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			utils.LogInfo("Detected %d change(s), rebuilding", len(changed))
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				utils.LogError("Rebuild failed: %v", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				utils.LogWarning("watch: event queue overflowed, some changes may be missed")
				continue
			}
			utils.LogWarning("watch: %v", err)
		}
	}
}

// relevant returns the path of evt relative to the project and whether it
// should trigger a rebuild
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	if evt.Op == fsnotify.Chmod {
		return "", false
	}
	if w.excluded(evt.Name) {
		return "", false
	}
	rel, err := filepath.Rel(w.dir, evt.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if matchAny(defaultIgnores, rel) {
		return "", false
	}
	if len(w.cfg.Patterns) > 0 && !matchAny(w.cfg.Patterns, rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) excluded(path string) bool {
	for _, ex := range w.exclude {
		rel, err := filepath.Rel(ex, path)
		if err == nil && (rel == "." || !strings.HasPrefix(rel, "..")) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			utils.LogWarning("watch: skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.excluded(path)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

// addNewDir extends the watch to directories created after startup
func (w *Watcher) addNewDir(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") || w.excluded(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		utils.LogWarning("%v", err)
	}
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
