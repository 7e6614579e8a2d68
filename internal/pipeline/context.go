package pipeline

import (
	"path/filepath"

	"github.com/gnzdotmx/psforge/internal/archive"
	"github.com/gnzdotmx/psforge/internal/artefact"
	"github.com/gnzdotmx/psforge/internal/catalog"
	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/mod"
	"github.com/gnzdotmx/psforge/internal/publish"
	"github.com/gnzdotmx/psforge/internal/resolver"
)

// ArtefactPaths are the resolved output locations of one artefact
type ArtefactPaths struct {
	Name string
	// Destination is the artefact root
	Destination string
	// Module is Destination/<ModuleName>[/<TagName>], or Destination for scripts
	Module string
	// ModulesDir receives the required modules
	ModulesDir string
	// ZipDir holds the archive
	ZipDir string
	// Archive is the full archive path, empty unless the artefact is packed
	Archive string
}

// Paths are the output locations of a run. They are computed once and only
// the prepare-structure stage deletes and recreates them.
type Paths struct {
	Staging   string
	Temp      string
	Artefacts []ArtefactPaths
}

// NewPaths resolves the output locations for every enabled artefact
func NewPaths(cfg *config.BuildConfig) Paths {
	d := cfg.Descriptor()
	p := Paths{
		Staging: cfg.Options.StagingPath,
		Temp:    cfg.Options.TempPath,
	}

	for _, a := range cfg.Artefacts {
		if !a.IsEnabled() {
			continue
		}
		ap := ArtefactPaths{
			Name:        a.Name,
			Destination: a.Path,
			ZipDir:      a.ZipPath,
		}
		if a.Type == config.ArtefactScript {
			ap.Module = a.Path
		} else {
			ap.Module = artefact.ModuleDestination(a.Path, d, a.IncludeTagName)
			ap.ModulesDir = filepath.Join(ap.Module, a.RequiredModules.Path)
		}
		if a.Type == config.ArtefactPacked {
			ap.Archive = filepath.Join(a.ZipPath, archive.Name(d, a.LegacyName, a.ArchiveName))
		}
		p.Artefacts = append(p.Artefacts, ap)
	}

	return p
}

// For returns the paths of the named artefact
func (p Paths) For(name string) (ArtefactPaths, bool) {
	for _, ap := range p.Artefacts {
		if ap.Name == name {
			return ap, true
		}
	}
	return ArtefactPaths{}, false
}

// BuildContext is threaded through every stage of a run
type BuildContext struct {
	Config  *config.BuildConfig
	Module  mod.Descriptor
	Paths   Paths
	Catalog catalog.Catalog

	// Resolution is set by the import-modules stage
	Resolution *resolver.Result

	// Archives collects the archives written by archive stages
	Archives []publish.Asset

	// Publishers overrides the publishers built from the configuration
	Publishers []publish.Publisher
}

// NewBuildContext creates the context for a run. A nil catalog scans the
// configured module paths.
func NewBuildContext(cfg *config.BuildConfig, cat catalog.Catalog) *BuildContext {
	if cat == nil {
		cat = catalog.NewFileSystem(cfg.Options.ModulePaths...)
	}
	return &BuildContext{
		Config:  cfg,
		Module:  cfg.Descriptor(),
		Paths:   NewPaths(cfg),
		Catalog: cat,
	}
}

// Dependencies returns the resolved dependencies, if any
func (bc *BuildContext) Dependencies() []mod.Dependency {
	if bc.Resolution == nil {
		return nil
	}
	return bc.Resolution.Dependencies
}
