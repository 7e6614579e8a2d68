package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	entries := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			entries[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		entries[f.Name] = string(data)
	}
	return entries
}

func TestName(t *testing.T) {
	d := mod.Descriptor{Name: "Foo", Version: "1.2.0"}

	tests := []struct {
		name     string
		legacy   bool
		template string
		want     string
	}{
		{name: "default", want: "Foo.1.2.0.zip"},
		{name: "legacy", legacy: true, want: "Foo-v1.2.0.zip"},
		{name: "template wins", legacy: true, template: "{ModuleName}_{TagName}", want: "Foo_v1.2.0.zip"},
		{name: "template with extension", template: "{ModuleName}-{ModuleVersion}.zip", want: "Foo-1.2.0.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(d, tt.legacy, tt.template))
		})
	}
}

func TestCreate(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Foo")
	writeFile(t, filepath.Join(src, "Foo.psm1"), "function Get-Foo {}")
	writeFile(t, filepath.Join(src, "Modules", "Bar", "Bar.psm1"), "function Get-Bar {}")

	zipPath := filepath.Join(t.TempDir(), "zip", "Foo.1.2.0.zip")
	require.NoError(t, Create(src, zipPath))

	entries := readZip(t, zipPath)
	assert.Equal(t, "function Get-Foo {}", entries["Foo/Foo.psm1"])
	assert.Equal(t, "function Get-Bar {}", entries["Foo/Modules/Bar/Bar.psm1"])
	assert.Contains(t, entries, "Foo/Modules/")
}

func TestCreateOverwrites(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Foo")
	writeFile(t, filepath.Join(src, "Foo.psm1"), "v1")

	outDir := t.TempDir()
	zipPath := filepath.Join(outDir, "Foo.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip"), 0644))

	require.NoError(t, Create(src, zipPath))
	writeFile(t, filepath.Join(src, "Foo.psm1"), "v2")
	require.NoError(t, Create(src, zipPath))

	assert.Equal(t, "v2", readZip(t, zipPath)["Foo/Foo.psm1"])

	// no temp files left behind
	files, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCreateMissingSource(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "Foo.zip")
	err := Create(filepath.Join(t.TempDir(), "missing"), zipPath)
	require.Error(t, err)
	assert.NoFileExists(t, zipPath)
}
