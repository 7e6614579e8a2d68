// Package config loads and validates build configuration files
package config

import (
	"github.com/gnzdotmx/psforge/internal/mod"
)

// BuildConfig is the full build definition read from a YAML file
type BuildConfig struct {
	Information Information `yaml:"information"`
	Steps       Steps       `yaml:"steps"`
	Options     Options     `yaml:"options"`
	Artefacts   []Artefact  `yaml:"artefacts"`

	// path of the file the configuration was loaded from
	path string
}

// Information describes the module being built
type Information struct {
	ModuleName      string            `yaml:"moduleName"`
	ModuleVersion   string            `yaml:"moduleVersion"`
	ProjectPath     string            `yaml:"projectPath"`
	ManifestPath    string            `yaml:"manifestPath"`
	RequiredModules []mod.Requirement `yaml:"requiredModules"`
	Placeholders    map[string]string `yaml:"placeholders"`
}

// StepSwitch turns a pipeline stage on or off. Force makes a failure of the
// stage non-fatal.
type StepSwitch struct {
	Enabled *bool `yaml:"enabled"`
	Force   bool  `yaml:"force"`
}

// IsEnabled returns the configured value or def when the switch is absent
func (s StepSwitch) IsEnabled(def bool) bool {
	if s.Enabled == nil {
		return def
	}
	return *s.Enabled
}

// Steps holds the per-stage switches
type Steps struct {
	PrepareStructure StepSwitch `yaml:"prepareStructure"`
	ImportModules    StepSwitch `yaml:"importModules"`
	Merge            StepSwitch `yaml:"merge"`
	Placeholders     StepSwitch `yaml:"placeholders"`
	Test             StepSwitch `yaml:"test"`
	Publish          StepSwitch `yaml:"publish"`
}

// Options holds per-feature settings
type Options struct {
	ModulePaths      []string       `yaml:"modulePaths"`
	ExcludeModules   []string       `yaml:"excludeModules"`
	StagingPath      string         `yaml:"stagingPath"`
	TempPath         string         `yaml:"tempPath"`
	MergeDirectories []string       `yaml:"mergeDirectories"`
	ReportPath       string         `yaml:"reportPath"`
	Test             TestOptions    `yaml:"test"`
	Publish          PublishOptions `yaml:"publish"`
}

// TestOptions describes the external test command
type TestOptions struct {
	Command   string   `yaml:"command"`
	Arguments []string `yaml:"arguments"`
}

// PublishOptions configures the publish targets. A nil target is disabled.
type PublishOptions struct {
	GitHub *GitHubOptions `yaml:"github"`
	S3     *S3Options     `yaml:"s3"`
	GCS    *GCSOptions    `yaml:"gcs"`
}

// GitHubOptions configures publishing archives as GitHub release assets
type GitHubOptions struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	TokenEnv   string `yaml:"tokenEnv"`
	BaseURL    string `yaml:"baseURL"`
	Prerelease bool   `yaml:"prerelease"`
}

// S3Options configures publishing archives to an S3 compatible bucket
type S3Options struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	UseSSL       *bool  `yaml:"useSSL"`
	AccessKeyEnv string `yaml:"accessKeyEnv"`
	SecretKeyEnv string `yaml:"secretKeyEnv"`
}

// GCSOptions configures publishing archives to a Google Cloud Storage bucket
type GCSOptions struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// ArtefactType selects the shape of an artefact
type ArtefactType string

const (
	// ArtefactUnpacked is a folder layout
	ArtefactUnpacked ArtefactType = "Unpacked"
	// ArtefactPacked is a folder layout plus a zip archive
	ArtefactPacked ArtefactType = "Packed"
	// ArtefactScript is a single merged script file
	ArtefactScript ArtefactType = "Script"
)

// Toggle is an enable switch with a default of true. Force makes a failure
// of the stage non-fatal.
type Toggle struct {
	Enabled *bool `yaml:"enabled"`
	Force   bool  `yaml:"force"`
}

// IsEnabled reports whether the toggle is on, defaulting to true
func (t Toggle) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// RequiredModulesCopy configures copying of resolved dependencies into an artefact
type RequiredModulesCopy struct {
	Enabled *bool  `yaml:"enabled"`
	Force   bool   `yaml:"force"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether dependencies are copied, defaulting to true
func (r RequiredModulesCopy) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ArtefactForce marks per-artefact stages whose failure is logged and
// skipped over instead of halting the build
type ArtefactForce struct {
	Files   bool `yaml:"files"`
	Folders bool `yaml:"folders"`
	Archive bool `yaml:"archive"`
	Script  bool `yaml:"script"`
}

// Artefact describes one distributable output of the build
type Artefact struct {
	Name            string              `yaml:"name"`
	Type            ArtefactType        `yaml:"type"`
	Enabled         *bool               `yaml:"enabled"`
	Path            string              `yaml:"path"`
	ZipPath         string              `yaml:"zipPath"`
	ArchiveName     string              `yaml:"archiveName"`
	IncludeTagName  bool                `yaml:"includeTagName"`
	LegacyName      bool                `yaml:"legacyName"`
	MainModule      Toggle              `yaml:"mainModule"`
	RequiredModules RequiredModulesCopy `yaml:"requiredModules"`
	FilesRelative   *bool               `yaml:"filesRelative"`
	FoldersRelative *bool               `yaml:"foldersRelative"`
	Files           CopyEntries         `yaml:"files"`
	Folders         CopyEntries         `yaml:"folders"`
	Force           ArtefactForce       `yaml:"force"`
}

// IsEnabled reports whether the artefact is built, defaulting to true
func (a Artefact) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// FilesAreRelative is the default destination mode for plain file entries
func (a Artefact) FilesAreRelative() bool {
	return a.FilesRelative == nil || *a.FilesRelative
}

// FoldersAreRelative is the default destination mode for plain folder entries
func (a Artefact) FoldersAreRelative() bool {
	return a.FoldersRelative == nil || *a.FoldersRelative
}

// Path returns the file the configuration was loaded from
func (c *BuildConfig) Path() string {
	return c.path
}

// Descriptor returns the identity of the module being built
func (c *BuildConfig) Descriptor() mod.Descriptor {
	return mod.Descriptor{
		Name:         c.Information.ModuleName,
		Version:      c.Information.ModuleVersion,
		ProjectPath:  c.Information.ProjectPath,
		ManifestPath: c.Information.ManifestPath,
	}
}
