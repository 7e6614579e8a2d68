package pipeline

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// Extensions that may hold placeholders
var placeholderExtensions = map[string]bool{
	".ps1":  true,
	".psm1": true,
	".psd1": true,
}

// outputDirs lists every directory the build writes to
func outputDirs(bc *BuildContext) []string {
	dirs := []string{bc.Paths.Staging, bc.Paths.Temp}
	for _, ap := range bc.Paths.Artefacts {
		dirs = append(dirs, ap.Destination)
		if ap.ZipDir != "" {
			dirs = append(dirs, ap.ZipDir)
		}
	}
	return dirs
}

// contains reports whether path is dir or lies below it
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// stageSources copies the top level entries of project into staging. Hidden
// entries, names in skip and entries holding any of the exclude paths are
// left out.
func stageSources(project, staging string, skip map[string]bool, exclude []string) error {
	entries, err := os.ReadDir(project)
	if err != nil {
		return fmt.Errorf("failed to read project directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || skip[name] {
			continue
		}

		src := filepath.Join(project, name)
		held := false
		for _, ex := range exclude {
			if contains(src, ex) {
				held = true
				break
			}
		}
		if held {
			utils.LogDebug("Not staging %s: it holds build output", src)
			continue
		}

		dst := filepath.Join(staging, name)
		if e.IsDir() {
			err = utils.CopyDir(src, dst)
		} else if e.Type().IsRegular() {
			err = utils.CopyFile(src, dst)
		}
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
	}
	return nil
}

// mergeModule writes <staging>/<Name>.psm1 from the project's root module
// followed by every .ps1 file under the merge directories, in directory
// order and then by path. All other project files are staged unchanged.
func mergeModule(d mod.Descriptor, mergeDirs []string, staging string, exclude []string) error {
	rootName := d.Name + ".psm1"

	skip := map[string]bool{rootName: true}
	for _, dir := range mergeDirs {
		skip[dir] = true
	}
	if err := stageSources(d.ProjectPath, staging, skip, exclude); err != nil {
		return err
	}

	var buf bytes.Buffer
	parts := 0

	rootPath := filepath.Join(d.ProjectPath, rootName)
	if utils.FileExists(rootPath) {
		if err := appendSource(&buf, rootPath); err != nil {
			return err
		}
		parts++
	}

	for _, dir := range mergeDirs {
		files, err := scriptFiles(filepath.Join(d.ProjectPath, dir))
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := appendSource(&buf, f); err != nil {
				return err
			}
			parts++
		}
	}

	if parts == 0 {
		return fmt.Errorf("no module sources found in %s", d.ProjectPath)
	}

	out := filepath.Join(staging, rootName)
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write merged module: %w", err)
	}
	utils.LogVerbose("Merged %d source file(s) into %s", parts, out)
	return nil
}

// scriptFiles returns the .ps1 files below dir sorted by path. A missing
// directory has no files.
func scriptFiles(dir string) ([]string, error) {
	if !utils.DirExists(dir) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".ps1") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts in %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

func appendSource(buf *bytes.Buffer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	buf.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	return nil
}

// replacePlaceholders expands {Key} tokens in the staged script files and
// returns the number of files changed.
func replacePlaceholders(root string, values map[string]string) (int, error) {
	changed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !placeholderExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if !utils.IsTextFile(path) {
			utils.LogDebug("Skipping placeholders in non-text file %s", path)
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		expanded := utils.ExpandPlaceholders(string(data), values)
		if expanded == string(data) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(expanded), info.Mode().Perm()); err != nil {
			return err
		}
		changed++
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("failed to replace placeholders: %w", err)
	}
	return changed, nil
}
