package validator

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabled(v bool) config.StepSwitch {
	return config.StepSwitch{Enabled: &v}
}

// mockLookPath makes only the named commands resolvable
func mockLookPath(t *testing.T, found ...string) {
	t.Helper()
	original := utils.ExecLookPath
	utils.ExecLookPath = func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { utils.ExecLookPath = original })
}

func mockEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := getenv
	getenv = func(key string) string { return env[key] }
	t.Cleanup(func() { getenv = original })
}

func TestValidateExternalTools(t *testing.T) {
	tests := []struct {
		name    string
		test    config.StepSwitch
		found   []string
		wantErr bool
	}{
		{name: "test disabled", test: enabled(false)},
		{name: "command found", test: enabled(true), found: []string{"Invoke-Pester"}},
		{name: "command missing", test: enabled(true), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockLookPath(t, tt.found...)
			cfg := &config.BuildConfig{}
			cfg.Steps.Test = tt.test
			cfg.Options.Test.Command = "Invoke-Pester"

			err := ValidateExternalTools(cfg)
			if tt.wantErr {
				var verr *utils.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "Invoke-Pester", verr.Field)
				assert.ErrorIs(t, err, exec.ErrNotFound)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOptionalToolDoesNotFail(t *testing.T) {
	mockLookPath(t, "pwsh")
	original := execCommand
	execCommand = func(string, ...string) *exec.Cmd { return exec.Command("false") }
	t.Cleanup(func() { execCommand = original })

	assert.NoError(t, ValidateExternalTools(&config.BuildConfig{}))
}

func TestValidateEnvVars(t *testing.T) {
	publish := config.PublishOptions{
		GitHub: &config.GitHubOptions{Owner: "o", Repo: "r", TokenEnv: "GITHUB_TOKEN"},
		S3:     &config.S3Options{Endpoint: "s3", Bucket: "b", AccessKeyEnv: "AK", SecretKeyEnv: "SK"},
	}
	assert.Equal(t, []string{"GITHUB_TOKEN", "AK", "SK"}, RequiredEnvVars(publish))

	cfg := &config.BuildConfig{}
	cfg.Options.Publish = publish

	mockEnv(t, map[string]string{"GITHUB_TOKEN": "x"})
	assert.NoError(t, ValidateEnvVars(cfg), "publish disabled")

	cfg.Steps.Publish = enabled(true)
	err := ValidateEnvVars(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AK")

	mockEnv(t, map[string]string{"GITHUB_TOKEN": "x", "AK": "a", "SK": "s"})
	assert.NoError(t, ValidateEnvVars(cfg))

	cfg.Options.Publish.GCS = &config.GCSOptions{Bucket: "b", CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}
	var verr *utils.ValidationError
	require.ErrorAs(t, ValidateEnvVars(cfg), &verr)
	assert.Equal(t, "options.publish.gcs.credentialsFile", verr.Field)
}

func TestValidateModulePaths(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(existing, "nope")

	cfg := &config.BuildConfig{}
	cfg.Information.RequiredModules = []mod.Requirement{{Name: "Bar"}}

	cfg.Options.ModulePaths = []string{missing, existing}
	assert.NoError(t, ValidateModulePaths(cfg))

	cfg.Options.ModulePaths = []string{missing}
	assert.Error(t, ValidateModulePaths(cfg))

	cfg.Steps.ImportModules = enabled(false)
	assert.NoError(t, ValidateModulePaths(cfg))
}

func TestValidateJoinsFailures(t *testing.T) {
	mockLookPath(t)
	mockEnv(t, nil)

	cfg := &config.BuildConfig{}
	cfg.Steps.Test = enabled(true)
	cfg.Steps.Publish = enabled(true)
	cfg.Options.Test.Command = "Invoke-Pester"
	cfg.Options.Publish.GitHub = &config.GitHubOptions{TokenEnv: "GITHUB_TOKEN"}
	cfg.Options.ModulePaths = []string{filepath.Join(t.TempDir(), "nope")}
	cfg.Information.RequiredModules = []mod.Requirement{{Name: "Bar"}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "options.modulePaths")
	_, statErr := os.Stat(cfg.Options.ModulePaths[0])
	assert.True(t, os.IsNotExist(statErr))
}
