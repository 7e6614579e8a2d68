// Package validator checks that the machine can run a build before it starts
package validator

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// execCommand allows us to mock exec.Command in tests
var execCommand = exec.Command

// getenv allows us to mock os.Getenv in tests
var getenv = os.Getenv

// ExternalTool represents an external command-line tool requirement
type ExternalTool struct {
	Name        string
	VersionArgs []string
	Validate    func(output string) bool
}

// optionalTools lists tools that are checked but not required
var optionalTools = []ExternalTool{
	{
		Name:        "pwsh",
		VersionArgs: []string{"-NoProfile", "-Version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "PowerShell")
		},
	},
}

// Validate runs every environment check for cfg and returns all failures
// joined together
func Validate(cfg *config.BuildConfig) error {
	return errors.Join(
		ValidateExternalTools(cfg),
		ValidateEnvVars(cfg),
		ValidateModulePaths(cfg),
	)
}

// ValidateExternalTools checks that the configured test command can be found.
// Optional tools are only reported.
func ValidateExternalTools(cfg *config.BuildConfig) error {
	if cfg.Steps.Test.IsEnabled(false) {
		command := cfg.Options.Test.Command
		if err := utils.ValidateRequiredDependency(command); err != nil {
			return err
		}
		path, _ := utils.ExecLookPath(command)
		utils.LogVerbose("✓ %s found at %s", command, path)
	}

	for _, tool := range optionalTools {
		path, err := utils.ExecLookPath(tool.Name)
		if err != nil {
			utils.LogVerbose("ℹ️ Optional tool %s not found: %v", tool.Name, err)
			continue
		}

		output, err := execCommand(path, tool.VersionArgs...).CombinedOutput()
		if err != nil {
			utils.LogVerbose("ℹ️ Optional tool %s found but couldn't verify version: %v", tool.Name, err)
			continue
		}

		if !tool.Validate(string(output)) {
			utils.LogVerbose("ℹ️ Optional tool %s found but may not be the correct version", tool.Name)
			continue
		}

		utils.LogVerbose("✓ Optional tool %s found at %s", tool.Name, path)
	}

	return nil
}

// RequiredEnvVars lists the environment variables the publish targets read
func RequiredEnvVars(opts config.PublishOptions) []string {
	var vars []string
	if opts.GitHub != nil {
		vars = append(vars, opts.GitHub.TokenEnv)
	}
	if opts.S3 != nil {
		vars = append(vars, opts.S3.AccessKeyEnv, opts.S3.SecretKeyEnv)
	}
	return vars
}

// ValidateEnvVars checks that the credentials of every publish target are set
func ValidateEnvVars(cfg *config.BuildConfig) error {
	if !cfg.Steps.Publish.IsEnabled(false) {
		return nil
	}

	for _, envVar := range RequiredEnvVars(cfg.Options.Publish) {
		if getenv(envVar) == "" {
			return fmt.Errorf("environment variable %s not set", envVar)
		}

		// Don't print the actual value for security
		utils.LogVerbose("✓ %s is set", envVar)
	}

	if gcs := cfg.Options.Publish.GCS; gcs != nil && gcs.CredentialsFile != "" && !utils.FileExists(gcs.CredentialsFile) {
		return &utils.ValidationError{
			Field:   "options.publish.gcs.credentialsFile",
			Message: fmt.Sprintf("%s does not exist", gcs.CredentialsFile),
		}
	}

	return nil
}

// ValidateModulePaths fails when required modules are declared but none of
// the module paths exist. Individual missing roots are only reported.
func ValidateModulePaths(cfg *config.BuildConfig) error {
	found := 0
	for _, root := range cfg.Options.ModulePaths {
		if utils.DirExists(root) {
			found++
			continue
		}
		utils.LogVerbose("ℹ️ Module path %s does not exist", root)
	}

	if found == 0 && len(cfg.Information.RequiredModules) > 0 && cfg.Steps.ImportModules.IsEnabled(true) {
		return &utils.ValidationError{
			Field:   "options.modulePaths",
			Message: "no module path exists but required modules are declared",
		}
	}
	return nil
}
