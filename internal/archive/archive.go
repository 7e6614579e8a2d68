// Package archive packages an assembled artefact tree into a zip file
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/klauspost/compress/zip"
)

// Name returns the archive file name for a module. A non-empty template
// wins and may use {ModuleName}, {ModuleVersion} and {TagName}. Otherwise
// the legacy form is <Name>-v<Version>.zip and the default <Name>.<Version>.zip.
func Name(d mod.Descriptor, legacy bool, template string) string {
	var name string
	switch {
	case template != "":
		name = utils.ExpandPlaceholders(template, d.Placeholders())
	case legacy:
		name = fmt.Sprintf("%s-%s", d.Name, d.TagName())
	default:
		name = fmt.Sprintf("%s.%s", d.Name, d.Version)
	}
	if filepath.Ext(name) != ".zip" {
		name += ".zip"
	}
	return name
}

// Create zips the tree at srcDir into zipPath. Entries are rooted at the
// base name of srcDir. An existing archive is replaced only once the new one
// has been written completely.
func Create(srcDir, zipPath string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("failed to access %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(zipPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(zipPath), ".psforge-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = write(tmp, srcDir); err != nil {
		return fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err = os.Rename(tmpName, zipPath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	utils.LogVerbose("Created archive %s", zipPath)
	return nil
}

func write(w io.Writer, srcDir string) error {
	zw := zip.NewWriter(w)
	root := filepath.Base(srcDir)

	walkErr := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		entry := filepath.ToSlash(filepath.Join(root, rel))

		if d.IsDir() {
			_, err := zw.Create(entry + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = entry
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return err
	})
	if walkErr != nil {
		_ = zw.Close()
		return walkErr
	}

	return zw.Close()
}
