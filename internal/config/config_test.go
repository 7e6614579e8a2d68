package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBuildFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeBuildFile(t, dir, `
information:
  moduleName: Foo
  moduleVersion: 1.2.3
  requiredModules:
    - Bar
    - name: Baz
      requiredVersion: 2.0.0
options:
  modulePaths: [modules]
artefacts:
  - type: Packed
    path: out
    files:
      LICENSE: LICENSE
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, dir, cfg.Information.ProjectPath)
	assert.Equal(t, filepath.Join(dir, "Foo.psd1"), cfg.Information.ManifestPath)
	assert.Equal(t, []mod.Requirement{{Name: "Bar"}, {Name: "Baz", RequiredVersion: "2.0.0"}}, cfg.Information.RequiredModules)

	assert.Equal(t, []string{filepath.Join(dir, "modules")}, cfg.Options.ModulePaths)
	assert.Equal(t, filepath.Join(dir, ".build", "staging"), cfg.Options.StagingPath)
	assert.Equal(t, filepath.Join(dir, ".build", "tmp"), cfg.Options.TempPath)
	assert.Equal(t, DefaultMergeDirectories, cfg.Options.MergeDirectories)

	require.Len(t, cfg.Artefacts, 1)
	a := cfg.Artefacts[0]
	assert.Equal(t, "Packed1", a.Name)
	assert.Equal(t, filepath.Join(dir, "out"), a.Path)
	assert.Equal(t, a.Path, a.ZipPath)
	assert.Equal(t, "Modules", a.RequiredModules.Path)
	assert.True(t, a.IsEnabled())
	assert.True(t, a.MainModule.IsEnabled())
	assert.True(t, a.RequiredModules.IsEnabled())
	assert.True(t, a.FilesAreRelative())

	d := cfg.Descriptor()
	assert.Equal(t, "v1.2.3", d.TagName())
}

func TestLoadFromFileReadsManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Foo.psd1"), []byte(`@{
    ModuleVersion   = '0.9.1'
    RequiredModules = @('Bar', @{ ModuleName = 'Baz'; RequiredVersion = '1.0.0' })
}`), 0644))
	path := writeBuildFile(t, dir, `
information:
  moduleName: Foo
options:
  modulePaths: [modules]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.9.1", cfg.Information.ModuleVersion)
	assert.Equal(t, []mod.Requirement{{Name: "Bar"}, {Name: "Baz", RequiredVersion: "1.0.0"}}, cfg.Information.RequiredModules)
}

func TestLoadFromFileExplicitValuesWinOverManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Foo.psd1"), []byte(`@{ ModuleVersion = '0.9.1'; RequiredModules = 'Bar' }`), 0644))
	path := writeBuildFile(t, dir, `
information:
  moduleName: Foo
  moduleVersion: 2.0.0
  requiredModules: [Qux]
options:
  modulePaths: [modules]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", cfg.Information.ModuleVersion)
	assert.Equal(t, []mod.Requirement{{Name: "Qux"}}, cfg.Information.RequiredModules)
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "missing module name",
			content: "information:\n  moduleVersion: 1.0.0\n",
			field:   "information.moduleName",
		},
		{
			name:    "missing version without manifest",
			content: "information:\n  moduleName: Foo\n",
			field:   "information.moduleVersion",
		},
		{
			name:    "invalid version",
			content: "information:\n  moduleName: Foo\n  moduleVersion: one\n",
			field:   "information.moduleVersion",
		},
		{
			name:    "staging path contains project",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\noptions:\n  stagingPath: .\n",
			field:   "options.stagingPath",
		},
		{
			name:    "artefact path is project",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nartefacts:\n  - path: ..\n",
			field:   "artefacts[0].path",
		},
		{
			name:    "artefact path inside staging",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nartefacts:\n  - path: .build/staging/out\n",
			field:   "artefacts[0].path",
		},
		{
			name:    "artefact path contains temp",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\noptions:\n  tempPath: out/tmp\nartefacts:\n  - path: out\n",
			field:   "artefacts[0].path",
		},
		{
			name:    "unknown artefact type",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nartefacts:\n  - type: Tarball\n    path: out\n",
			field:   "artefacts[0].type",
		},
		{
			name:    "artefact without path",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nartefacts:\n  - name: x\n",
			field:   "artefacts[0].path",
		},
		{
			name:    "duplicate artefact name",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nartefacts:\n  - {name: a, path: out1}\n  - {name: A, path: out2}\n",
			field:   "artefacts[1].name",
		},
		{
			name:    "test without command",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nsteps:\n  test:\n    enabled: true\n",
			field:   "options.test.command",
		},
		{
			name:    "publish without target",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nsteps:\n  publish:\n    enabled: true\n",
			field:   "options.publish",
		},
		{
			name:    "github without repo",
			content: "information:\n  moduleName: Foo\n  moduleVersion: 1.0.0\nsteps:\n  publish:\n    enabled: true\noptions:\n  publish:\n    github:\n      owner: me\n",
			field:   "options.publish.github",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := LoadFromFile(writeBuildFile(t, dir, tt.content))
			require.Error(t, err)

			var vErr *utils.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestLoadFromFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFromFile(writeBuildFile(t, dir, "information:\n  moduleName: Foo\n  modulVersion: 1.0.0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modulVersion")
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read build file")
}

func TestCopyEntriesUnmarshal(t *testing.T) {
	cfg, err := Parse([]byte(`
artefacts:
  - path: out
    filesRelative: false
    files:
      LICENSE: LICENSE
      docs/readme.txt:
        destination: doc/readme.txt
        destinationRelative: true
      notes.md:
        enabled: false
`))
	require.NoError(t, err)
	require.Len(t, cfg.Artefacts, 1)
	a := cfg.Artefacts[0]
	require.Len(t, a.Files, 3)

	assert.Equal(t, CopyEntry{Kind: PlainCopy, Enabled: true, Source: "LICENSE", Destination: "LICENSE"}, a.Files[0])
	assert.False(t, a.Files[0].IsRelative(a.FilesAreRelative()))

	assert.Equal(t, StructuredCopy, a.Files[1].Kind)
	assert.Equal(t, "docs/readme.txt", a.Files[1].Source)
	assert.Equal(t, "doc/readme.txt", a.Files[1].Destination)
	assert.True(t, a.Files[1].IsRelative(a.FilesAreRelative()))

	assert.False(t, a.Files[2].Enabled)
	assert.Equal(t, "notes.md", a.Files[2].Destination)
}

func TestCopyEntriesUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"sequence instead of mapping", "artefacts:\n  - files: [a, b]\n"},
		{"empty destination", "artefacts:\n  - files:\n      a: ''\n"},
		{"list value", "artefacts:\n  - files:\n      a: [b]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestStepSwitchDefaults(t *testing.T) {
	cfg, err := Parse([]byte("steps:\n  merge:\n    enabled: false\n  test:\n    force: true\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Steps.Merge.IsEnabled(true))
	assert.True(t, cfg.Steps.PrepareStructure.IsEnabled(true))
	assert.False(t, cfg.Steps.Test.IsEnabled(false))
	assert.True(t, cfg.Steps.Test.Force)
}

func TestArtefactForceKeys(t *testing.T) {
	cfg, err := Parse([]byte(`artefacts:
  - path: out
    mainModule: { force: true }
    requiredModules: { force: true }
    force: { files: true, archive: true }
`))
	require.NoError(t, err)

	a := cfg.Artefacts[0]
	assert.True(t, a.MainModule.Force)
	assert.True(t, a.MainModule.IsEnabled())
	assert.True(t, a.RequiredModules.Force)
	assert.Equal(t, ArtefactForce{Files: true, Archive: true}, a.Force)
}
