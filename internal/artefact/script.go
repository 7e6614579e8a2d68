package artefact

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// WriteScript writes a single file artefact at dest/<ModuleName>.ps1. The
// root module scripts of the dependencies come first, in resolution order,
// followed by the staged root module. Dependencies without a script root
// module (binary modules for instance) are skipped.
func WriteScript(d mod.Descriptor, deps []mod.Dependency, staging, dest string) (string, error) {
	var buf bytes.Buffer

	for _, dep := range deps {
		path := dependencyScript(dep)
		if path == "" {
			utils.LogWarning("Module %s has no script root module, not included in script", dep.Name)
			continue
		}
		if err := appendSection(&buf, dep.String(), path); err != nil {
			return "", err
		}
	}

	main := filepath.Join(BuildSource(staging), d.Name+".psm1")
	if !utils.FileExists(main) {
		return "", fmt.Errorf("staged root module not found at %s", main)
	}
	if err := appendSection(&buf, d.Name+" "+d.Version, main); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("failed to create script destination: %w", err)
	}
	out := filepath.Join(dest, d.Name+".ps1")
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write script artefact: %w", err)
	}

	utils.LogVerbose("Wrote script artefact %s", out)
	return out, nil
}

func dependencyScript(dep mod.Dependency) string {
	root := dep.RootModule
	if root == "" {
		root = dep.Name + ".psm1"
	}
	ext := strings.ToLower(filepath.Ext(root))
	if ext != ".psm1" && ext != ".ps1" {
		return ""
	}
	path := filepath.Join(dep.Path, root)
	if !utils.FileExists(path) {
		return ""
	}
	return path
}

func appendSection(buf *bytes.Buffer, title, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	fmt.Fprintf(buf, "#region %s\n", title)
	buf.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(buf, "#endregion %s\n\n", title)
	return nil
}
