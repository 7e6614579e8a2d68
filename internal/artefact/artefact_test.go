package artefact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/copyspec"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// listTree returns the slash separated relative paths of all files under root
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}))
	return files
}

var foo = mod.Descriptor{Name: "Foo", Version: "1.2.0"}

func TestModuleDestination(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "Foo"), ModuleDestination("/out", foo, false))
	assert.Equal(t, filepath.Join("/out", "Foo", "v1.2.0"), ModuleDestination("/out", foo, true))
}

func TestBuildSourcePreference(t *testing.T) {
	staging := t.TempDir()
	assert.Equal(t, staging, BuildSource(staging))

	require.NoError(t, os.MkdirAll(filepath.Join(staging, "Core"), 0755))
	assert.Equal(t, filepath.Join(staging, "Core"), BuildSource(staging))

	require.NoError(t, os.MkdirAll(filepath.Join(staging, "Desktop"), 0755))
	assert.Equal(t, filepath.Join(staging, "Desktop"), BuildSource(staging))
}

func TestCopyMainModuleIsIdempotent(t *testing.T) {
	staging := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(staging, "Foo.psm1"), "function Get-Foo {}")
	writeFile(t, filepath.Join(staging, "Foo.psd1"), "@{}")

	dest := ModuleDestination(out, foo, false)
	require.NoError(t, CopyMainModule(staging, dest))
	first := listTree(t, dest)

	// a leftover from an earlier build must not survive the next copy
	writeFile(t, filepath.Join(dest, "stale.ps1"), "old")
	require.NoError(t, CopyMainModule(staging, dest))

	assert.Equal(t, first, listTree(t, dest))
	assert.ElementsMatch(t, []string{"Foo.psm1", "Foo.psd1"}, first)
	assert.Equal(t, "function Get-Foo {}", readFile(t, filepath.Join(dest, "Foo.psm1")))
}

func TestCopyMainModuleMissingStaging(t *testing.T) {
	err := CopyMainModule(filepath.Join(t.TempDir(), "nope"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged module not found")
}

func TestCopyRequiredModules(t *testing.T) {
	installed := t.TempDir()
	out := t.TempDir()
	barPath := filepath.Join(installed, "Bar", "2.0.0")
	writeFile(t, filepath.Join(barPath, "Bar.psd1"), "@{ ModuleVersion = '2.0.0' }")
	writeFile(t, filepath.Join(barPath, "Bar.psm1"), "function Get-Bar {}")

	modulesDir := filepath.Join(out, "Foo", "Modules")
	writeFile(t, filepath.Join(modulesDir, "Bar", "old.ps1"), "stale")

	deps := []mod.Dependency{
		{Name: "Bar", Version: "2.0.0", Path: barPath},
		{Name: "Gone", Version: "1.0.0", Path: filepath.Join(installed, "Gone")},
	}
	missing := []mod.Requirement{{Name: "Ghost"}}

	n, err := CopyRequiredModules(deps, missing, modulesDir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"Bar.psd1", "Bar.psm1"}, listTree(t, filepath.Join(modulesDir, "Bar")))
	assert.NoDirExists(t, filepath.Join(modulesDir, "Gone"))
	assert.NoDirExists(t, filepath.Join(modulesDir, "2.0.0"))
}

func TestCopyFilesAndFolders(t *testing.T) {
	proj := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(proj, "LICENSE"), "MIT")
	writeFile(t, filepath.Join(proj, "docs", "index.md"), "# Foo")

	a := config.Artefact{
		Files: config.CopyEntries{{Kind: config.PlainCopy, Enabled: true, Source: "LICENSE", Destination: "LICENSE"}},
		Folders: config.CopyEntries{
			{Kind: config.PlainCopy, Enabled: true, Source: "docs", Destination: "docs"},
			{Kind: config.PlainCopy, Enabled: true, Source: "examples", Destination: "examples"},
		},
	}

	_, err := CopyFiles(a, proj, out)
	require.NoError(t, err)
	plan, err := CopyFolders(a, proj, out)
	require.NoError(t, err)

	assert.Equal(t, "MIT", readFile(t, filepath.Join(out, "LICENSE")))
	assert.Equal(t, "# Foo", readFile(t, filepath.Join(out, "docs", "index.md")))
	assert.Equal(t, []string{"examples"}, plan.Skipped)

	a.Files = append(a.Files, config.CopyEntry{Kind: config.PlainCopy, Enabled: true, Source: "NOTICE", Destination: "NOTICE"})
	_, err = CopyFiles(a, proj, out)
	assert.ErrorIs(t, err, copyspec.ErrSourceNotFound)
}

func TestWriteScript(t *testing.T) {
	installed := t.TempDir()
	staging := t.TempDir()
	out := t.TempDir()

	barPath := filepath.Join(installed, "Bar")
	writeFile(t, filepath.Join(barPath, "Bar.psm1"), "\xef\xbb\xbffunction Get-Bar {}")
	binPath := filepath.Join(installed, "Bin")
	writeFile(t, filepath.Join(binPath, "Bin.dll"), "MZ")
	writeFile(t, filepath.Join(staging, "Foo.psm1"), "function Get-Foo {}\n")

	deps := []mod.Dependency{
		{Name: "Bar", Version: "2.0.0", Path: barPath},
		{Name: "Bin", Version: "1.0.0", Path: binPath, RootModule: "Bin.dll"},
	}

	path, err := WriteScript(foo, deps, staging, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "Foo.ps1"), path)

	script := readFile(t, path)
	assert.Less(t, strings.Index(script, "Get-Bar"), strings.Index(script, "Get-Foo"))
	assert.Contains(t, script, "#region Bar 2.0.0\nfunction Get-Bar {}\n#endregion Bar 2.0.0")
	assert.Contains(t, script, "#region Foo 1.2.0")
	assert.NotContains(t, script, "Bin")
	assert.NotContains(t, script, "\xef\xbb\xbf")
}

func TestWriteScriptMissingRootModule(t *testing.T) {
	_, err := WriteScript(foo, nil, t.TempDir(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged root module not found")
}
