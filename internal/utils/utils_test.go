package utils

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTextFile(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "a.ps1")
	require.NoError(t, os.WriteFile(text, []byte("function Get-Foo {\n\t'foo'\r\n}\n"), 0644))
	assert.True(t, IsTextFile(text))

	utf16 := filepath.Join(dir, "b.ps1")
	require.NoError(t, os.WriteFile(utf16, []byte{0xFF, 0xFE, 'a', 0}, 0644))
	assert.False(t, IsTextFile(utf16))

	binary := filepath.Join(dir, "c.dll")
	require.NoError(t, os.WriteFile(binary, []byte{'M', 'Z', 0x90, 0x00, 0x03}, 0644))
	assert.False(t, IsTextFile(binary))

	assert.False(t, IsTextFile(filepath.Join(dir, "missing")))
}

func TestExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHomeDir("~/Modules")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Modules"), got)

	got, err = ExpandHomeDir("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandHomeDir("/opt/~x")
	require.NoError(t, err)
	assert.Equal(t, "/opt/~x", got)
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "en-US"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Foo.psm1"), []byte("root"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "en-US", "about_Foo.help.txt"), []byte("help"), 0600))

	dst := filepath.Join(t.TempDir(), "out", "Foo")
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "keep.txt"), []byte("kept"), 0644))

	require.NoError(t, CopyDir(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "en-US", "about_Foo.help.txt"))
	require.NoError(t, err)
	assert.Equal(t, "help", string(data))
	assert.True(t, FileExists(filepath.Join(dst, "keep.txt")))

	info, err := os.Stat(filepath.Join(dst, "en-US", "about_Foo.help.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Error(t, CopyDir(filepath.Join(src, "Foo.psm1"), dst))
	assert.Error(t, CopyDir(filepath.Join(src, "missing"), dst))
}

func TestCopyFileReportsCloseError(t *testing.T) {
	original := closeFile
	defer func() { closeFile = original }()

	closeFile = func(f *os.File) error {
		_ = f.Close()
		return errors.New("disk quota exceeded")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.psm1")
	require.NoError(t, os.WriteFile(src, []byte("root"), 0644))

	err := CopyFile(src, filepath.Join(dir, "out", "Foo.psm1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk quota exceeded")
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
}

func TestExpandPlaceholders(t *testing.T) {
	values := map[string]string{"ModuleName": "Foo", "ModuleVersion": "1.2.0"}

	assert.Equal(t, "Foo 1.2.0 {Unknown}", ExpandPlaceholders("{ModuleName} {ModuleVersion} {Unknown}", values))
	assert.Equal(t, "no tokens", ExpandPlaceholders("no tokens", values))
	assert.Equal(t, "{ModuleName}", ExpandPlaceholders("{ModuleName}", nil))
}

func TestValidateRequiredDependency(t *testing.T) {
	original := ExecLookPath
	defer func() { ExecLookPath = original }()

	ExecLookPath = func(file string) (string, error) {
		if file == "pwsh" {
			return "/usr/bin/pwsh", nil
		}
		return "", exec.ErrNotFound
	}

	assert.NoError(t, ValidateRequiredDependency("pwsh"))

	err := ValidateRequiredDependency("Invoke-Pester")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Invoke-Pester", verr.Field)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Contains(t, err.Error(), "not found in PATH")
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)
	defer SetLogLevel(LevelNormal)

	SetLogLevel(LogLevelFromString("quiet"))
	LogInfo("hidden info")
	LogError("shown error")
	assert.NotContains(t, buf.String(), "hidden info")
	assert.Contains(t, buf.String(), "shown error")

	buf.Reset()
	SetLogLevel(LogLevelFromString("v"))
	LogVerbose("verbose detail")
	LogDebug("debug detail")
	assert.Contains(t, buf.String(), "verbose detail")
	assert.NotContains(t, buf.String(), "debug detail")

	assert.Equal(t, LevelNormal, LogLevelFromString("bogus"))
	assert.Equal(t, LevelDebug, LogLevelFromString("DEBUG"))
}
