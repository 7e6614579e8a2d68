package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gnzdotmx/psforge/internal/catalog"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/utils"
	"gopkg.in/yaml.v3"
)

// DefaultMergeDirectories are merged into the root module, in this order
var DefaultMergeDirectories = []string{"Enums", "Classes", "Private", "Public"}

const (
	defaultRequiredModulesPath = "Modules"
	defaultTokenEnv            = "GITHUB_TOKEN"
	defaultAccessKeyEnv        = "AWS_ACCESS_KEY_ID"
	defaultSecretKeyEnv        = "AWS_SECRET_ACCESS_KEY"
)

// LoadFromFile reads, defaults and validates a build configuration.
// Relative paths are resolved against the directory holding the file.
func LoadFromFile(path string) (*BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse build file %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build file path: %w", err)
	}
	cfg.path = absPath

	if err := cfg.applyDefaults(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a build configuration without applying defaults. Unknown
// keys are rejected.
func Parse(data []byte) (*BuildConfig, error) {
	var cfg BuildConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &utils.ValidationError{Field: "build file", Message: "file is empty"}
		}
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields and turns relative paths into absolute ones
func (c *BuildConfig) applyDefaults(baseDir string) error {
	info := &c.Information

	project, err := absFrom(baseDir, info.ProjectPath)
	if err != nil {
		return err
	}
	if info.ProjectPath == "" {
		project = baseDir
	}
	info.ProjectPath = project

	if info.ManifestPath == "" && info.ModuleName != "" {
		info.ManifestPath = info.ModuleName + ".psd1"
	}
	if info.ManifestPath != "" {
		if info.ManifestPath, err = absFrom(project, info.ManifestPath); err != nil {
			return err
		}
	}

	// Version and dependencies fall back to the module manifest
	if (info.ModuleVersion == "" || len(info.RequiredModules) == 0) && utils.FileExists(info.ManifestPath) {
		manifest, err := catalog.ReadManifest(info.ManifestPath)
		if err != nil {
			return &utils.ValidationError{Field: "information.manifestPath", Message: "cannot read manifest", Err: err}
		}
		if info.ModuleVersion == "" {
			info.ModuleVersion = manifest.ModuleVersion
		}
		if len(info.RequiredModules) == 0 {
			info.RequiredModules = manifest.RequiredModules
		}
	}

	opts := &c.Options
	if len(opts.ModulePaths) == 0 {
		opts.ModulePaths = catalog.DefaultRoots()
	}
	for i, p := range opts.ModulePaths {
		if opts.ModulePaths[i], err = absFrom(project, p); err != nil {
			return err
		}
	}
	if opts.StagingPath == "" {
		opts.StagingPath = filepath.Join(".build", "staging")
	}
	if opts.StagingPath, err = absFrom(project, opts.StagingPath); err != nil {
		return err
	}
	if opts.TempPath == "" {
		opts.TempPath = filepath.Join(".build", "tmp")
	}
	if opts.TempPath, err = absFrom(project, opts.TempPath); err != nil {
		return err
	}
	if opts.ReportPath != "" {
		if opts.ReportPath, err = absFrom(project, opts.ReportPath); err != nil {
			return err
		}
	}
	if len(opts.MergeDirectories) == 0 {
		opts.MergeDirectories = append([]string(nil), DefaultMergeDirectories...)
	}

	if gh := opts.Publish.GitHub; gh != nil && gh.TokenEnv == "" {
		gh.TokenEnv = defaultTokenEnv
	}
	if s3 := opts.Publish.S3; s3 != nil {
		if s3.AccessKeyEnv == "" {
			s3.AccessKeyEnv = defaultAccessKeyEnv
		}
		if s3.SecretKeyEnv == "" {
			s3.SecretKeyEnv = defaultSecretKeyEnv
		}
	}
	if gcs := opts.Publish.GCS; gcs != nil && gcs.CredentialsFile != "" {
		if gcs.CredentialsFile, err = absFrom(project, gcs.CredentialsFile); err != nil {
			return err
		}
	}

	for i := range c.Artefacts {
		a := &c.Artefacts[i]
		if a.Type == "" {
			a.Type = ArtefactUnpacked
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("%s%d", a.Type, i+1)
		}
		if a.Path != "" {
			if a.Path, err = absFrom(project, a.Path); err != nil {
				return err
			}
		}
		if a.ZipPath == "" {
			a.ZipPath = a.Path
		} else if a.ZipPath, err = absFrom(project, a.ZipPath); err != nil {
			return err
		}
		if a.RequiredModules.Path == "" {
			a.RequiredModules.Path = defaultRequiredModulesPath
		}
	}

	return nil
}

// absFrom resolves p against base unless it is already absolute
func absFrom(base, p string) (string, error) {
	expanded, err := utils.ExpandHomeDir(p)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		return "", nil
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(base, expanded)
	}
	return filepath.Clean(expanded), nil
}

// Validate checks the configuration for missing or inconsistent settings
func (c *BuildConfig) Validate() error {
	info := c.Information
	if info.ModuleName == "" {
		return &utils.ValidationError{Field: "information.moduleName", Message: "module name is required"}
	}
	if info.ModuleVersion == "" {
		return &utils.ValidationError{Field: "information.moduleVersion", Message: "module version is required (or a manifest with ModuleVersion)"}
	}
	if !mod.IsValidVersion(info.ModuleVersion) {
		return &utils.ValidationError{Field: "information.moduleVersion", Message: fmt.Sprintf("invalid version %q", info.ModuleVersion)}
	}
	if !utils.DirExists(info.ProjectPath) {
		return &utils.ValidationError{Field: "information.projectPath", Message: fmt.Sprintf("project path does not exist: %s", info.ProjectPath)}
	}

	if err := checkOwnedPath("options.stagingPath", c.Options.StagingPath, info.ProjectPath); err != nil {
		return err
	}
	if err := checkOwnedPath("options.tempPath", c.Options.TempPath, info.ProjectPath); err != nil {
		return err
	}

	if c.Steps.Test.IsEnabled(false) && c.Options.Test.Command == "" {
		return &utils.ValidationError{Field: "options.test.command", Message: "test step is enabled but no command is configured"}
	}

	if c.Steps.Publish.IsEnabled(false) {
		if err := c.Options.Publish.validate(); err != nil {
			return err
		}
	}

	names := make(map[string]bool)
	for i, a := range c.Artefacts {
		field := fmt.Sprintf("artefacts[%d]", i)
		switch a.Type {
		case ArtefactUnpacked, ArtefactPacked, ArtefactScript:
		default:
			return &utils.ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown artefact type %q", a.Type)}
		}
		if a.Path == "" {
			return &utils.ValidationError{Field: field + ".path", Message: "artefact path is required"}
		}
		if err := checkOwnedPath(field+".path", a.Path, info.ProjectPath); err != nil {
			return err
		}
		for _, work := range []string{c.Options.StagingPath, c.Options.TempPath} {
			if isWithin(work, a.Path) || isWithin(a.Path, work) {
				return &utils.ValidationError{Field: field + ".path", Message: fmt.Sprintf("%s overlaps the build directory %s", a.Path, work)}
			}
		}
		key := strings.ToLower(a.Name)
		if names[key] {
			return &utils.ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate artefact name %q", a.Name)}
		}
		names[key] = true
		for _, e := range append(append(CopyEntries{}, a.Files...), a.Folders...) {
			if filepath.IsAbs(e.Source) {
				return &utils.ValidationError{Field: field, Message: fmt.Sprintf("copy source %q must be relative to the project", e.Source)}
			}
		}
	}

	return nil
}

// checkOwnedPath rejects output directories that would delete the project
// when recreated.
func checkOwnedPath(field, path, project string) error {
	if path == "" {
		return &utils.ValidationError{Field: field, Message: "path is required"}
	}
	if isWithin(path, project) {
		return &utils.ValidationError{Field: field, Message: fmt.Sprintf("%s would remove the project directory when recreated", path)}
	}
	return nil
}

// isWithin reports whether path is dir or lies below it
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && (rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))))
}

func (p PublishOptions) validate() error {
	if p.GitHub == nil && p.S3 == nil && p.GCS == nil {
		return &utils.ValidationError{Field: "options.publish", Message: "publish step is enabled but no target is configured"}
	}
	if gh := p.GitHub; gh != nil && (gh.Owner == "" || gh.Repo == "") {
		return &utils.ValidationError{Field: "options.publish.github", Message: "owner and repo are required"}
	}
	if s3 := p.S3; s3 != nil && (s3.Endpoint == "" || s3.Bucket == "") {
		return &utils.ValidationError{Field: "options.publish.s3", Message: "endpoint and bucket are required"}
	}
	if gcs := p.GCS; gcs != nil && gcs.Bucket == "" {
		return &utils.ValidationError{Field: "options.publish.gcs", Message: "bucket is required"}
	}
	return nil
}
