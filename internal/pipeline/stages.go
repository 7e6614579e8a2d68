package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gnzdotmx/psforge/internal/archive"
	"github.com/gnzdotmx/psforge/internal/artefact"
	"github.com/gnzdotmx/psforge/internal/catalog"
	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/publish"
	"github.com/gnzdotmx/psforge/internal/resolver"
	"github.com/gnzdotmx/psforge/internal/utils"
)

// execCommand allows us to mock exec.CommandContext in tests
var execCommand = exec.CommandContext

// Stage names
const (
	StagePrepareStructure    = "prepare-structure"
	StageImportModules       = "import-modules"
	StageMerge               = "merge"
	StagePlaceholders        = "placeholders"
	StageTest                = "test"
	StageCopyMainModule      = "copy-main-module"
	StageCopyRequiredModules = "copy-required-modules"
	StageCopyFiles           = "copy-files"
	StageCopyFolders         = "copy-folders"
	StageScript              = "script"
	StageArchive             = "archive"
	StagePublish             = "publish"
)

func policy(s config.StepSwitch) Policy {
	return forced(s.Force)
}

func forced(force bool) Policy {
	if force {
		return Continuable
	}
	return Fatal
}

// artefactStage names a per-artefact stage, e.g. "Packed1/archive"
func artefactStage(a config.Artefact, name string) string {
	return a.Name + "/" + name
}

// ForConfig returns the pipeline for cfg with its stages in their fixed order
func ForConfig(cfg *config.BuildConfig) *Pipeline {
	steps := cfg.Steps
	stages := []Stage{
		{Name: StagePrepareStructure, Label: "Prepare structure", Action: prepareStructure,
			Policy: policy(steps.PrepareStructure), Enabled: steps.PrepareStructure.IsEnabled(true)},
		{Name: StageImportModules, Label: "Import required modules", Action: importModules,
			Policy: policy(steps.ImportModules), Enabled: steps.ImportModules.IsEnabled(true)},
		{Name: StageMerge, Label: "Merge module sources", Action: mergeStage,
			Policy: policy(steps.Merge), Enabled: true},
		{Name: StagePlaceholders, Label: "Replace placeholders", Action: placeholders,
			Policy: policy(steps.Placeholders), Enabled: steps.Placeholders.IsEnabled(true)},
		{Name: StageTest, Label: "Run tests", Action: runTests,
			Policy: policy(steps.Test), Enabled: steps.Test.IsEnabled(false)},
	}

	for _, a := range cfg.Artefacts {
		if !a.IsEnabled() {
			utils.LogVerbose("Artefact %s is disabled", a.Name)
			continue
		}
		stages = append(stages, artefactStages(a)...)
	}

	stages = append(stages, Stage{
		Name: StagePublish, Label: "Publish", Action: publishStage,
		Policy: policy(steps.Publish), Enabled: steps.Publish.IsEnabled(false),
	})

	return New(stages...)
}

func artefactStages(a config.Artefact) []Stage {
	name := a.Name

	if a.Type == config.ArtefactScript {
		return []Stage{{
			Name: artefactStage(a, StageScript), Label: fmt.Sprintf("Write script (%s)", name),
			Action: writeScript(name), Policy: forced(a.Force.Script), Enabled: true,
		}}
	}

	stages := []Stage{
		{Name: artefactStage(a, StageCopyMainModule), Label: fmt.Sprintf("Copy main module (%s)", name),
			Action: copyMainModule(name), Policy: forced(a.MainModule.Force), Enabled: a.MainModule.IsEnabled()},
		{Name: artefactStage(a, StageCopyRequiredModules), Label: fmt.Sprintf("Copy required modules (%s)", name),
			Action: copyRequiredModules(name), Policy: forced(a.RequiredModules.Force), Enabled: a.RequiredModules.IsEnabled()},
		{Name: artefactStage(a, StageCopyFiles), Label: fmt.Sprintf("Copy files (%s)", name),
			Action: copyFiles(name), Policy: forced(a.Force.Files), Enabled: len(a.Files) > 0},
		{Name: artefactStage(a, StageCopyFolders), Label: fmt.Sprintf("Copy folders (%s)", name),
			Action: copyFolders(name), Policy: forced(a.Force.Folders), Enabled: len(a.Folders) > 0},
	}
	if a.Type == config.ArtefactPacked {
		stages = append(stages, Stage{
			Name: artefactStage(a, StageArchive), Label: fmt.Sprintf("Create archive (%s)", name),
			Action: createArchive(name), Policy: forced(a.Force.Archive), Enabled: true,
		})
	}
	return stages
}

// Run builds the pipeline for cfg, runs it and saves the report when a
// report path is configured. A nil catalog scans the configured module paths.
func Run(ctx context.Context, cfg *config.BuildConfig, cat catalog.Catalog) (*Report, error) {
	bc := NewBuildContext(cfg, cat)
	if err := bc.Module.Validate(); err != nil {
		return nil, err
	}
	report, err := ForConfig(cfg).Run(ctx, bc)

	if path := cfg.Options.ReportPath; path != "" && report != nil {
		if saveErr := report.Save(path); saveErr != nil {
			utils.LogWarning("Failed to save build report: %v", saveErr)
		} else {
			utils.LogVerbose("Build report written to %s", path)
		}
	}

	return report, err
}

// prepareStructure is the only stage that deletes output directories.
// Archives are kept across runs so old versions can be pruned later, also
// when the zip directory lies inside an artefact destination.
func prepareStructure(_ context.Context, bc *BuildContext) error {
	var zipDirs []string
	for _, ap := range bc.Paths.Artefacts {
		if ap.ZipDir != "" {
			zipDirs = append(zipDirs, ap.ZipDir)
		}
	}

	recreate := []string{bc.Paths.Staging, bc.Paths.Temp}
	for _, ap := range bc.Paths.Artefacts {
		recreate = append(recreate, ap.Destination)
	}

	for _, dir := range recreate {
		utils.LogVerbose("Recreating %s", dir)
		if err := clearOutput(dir, zipDirs); err != nil {
			return err
		}
	}

	for _, dir := range zipDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// clearOutput empties dir, sparing .zip files directly inside any of the
// keep directories
func clearOutput(dir string, keep []string) error {
	if !slices.ContainsFunc(keep, func(k string) bool { return contains(dir, k) }) {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	holdsArchives := slices.Contains(keep, dir)
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.Type().IsRegular() && holdsArchives && strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		if e.IsDir() && slices.ContainsFunc(keep, func(k string) bool { return contains(path, k) }) {
			if err := clearOutput(path, keep); err != nil {
				return err
			}
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func importModules(_ context.Context, bc *BuildContext) error {
	info := bc.Config.Information
	if len(info.RequiredModules) == 0 {
		bc.Resolution = &resolver.Result{}
		return Skip("%s declares no required modules", bc.Module.Name)
	}

	result, err := resolver.New(bc.Catalog, bc.Config.Options.ExcludeModules...).Resolve(bc.Module.Name, info.RequiredModules)
	if err != nil {
		return err
	}
	bc.Resolution = result

	for i, dep := range result.Dependencies {
		utils.LogVerbose("%d. %s (%s)", i+1, dep, dep.Path)
	}
	utils.LogInfo("Resolved %d required module(s), %d missing, %d substituted",
		len(result.Dependencies), len(result.Missing), len(result.Substitutions()))
	return nil
}

func mergeStage(_ context.Context, bc *BuildContext) error {
	cfg := bc.Config
	exclude := outputDirs(bc)
	if cfg.Path() != "" {
		exclude = append(exclude, cfg.Path())
	}

	if !cfg.Steps.Merge.IsEnabled(true) {
		utils.LogVerbose("Merging disabled, staging sources as they are")
		return stageSources(bc.Module.ProjectPath, bc.Paths.Staging, nil, exclude)
	}
	return mergeModule(bc.Module, cfg.Options.MergeDirectories, bc.Paths.Staging, exclude)
}

func placeholders(_ context.Context, bc *BuildContext) error {
	values := bc.Module.Placeholders()
	for k, v := range bc.Config.Information.Placeholders {
		values[k] = v
	}

	n, err := replacePlaceholders(bc.Paths.Staging, values)
	if err != nil {
		return err
	}
	if n == 0 {
		return Skip("no placeholders found")
	}
	utils.LogVerbose("Replaced placeholders in %d file(s)", n)
	return nil
}

func runTests(ctx context.Context, bc *BuildContext) error {
	opts := bc.Config.Options.Test

	cmd := execCommand(ctx, opts.Command, opts.Arguments...)
	cmd.Dir = bc.Paths.Staging
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	utils.LogVerbose("Running %s %s", opts.Command, strings.Join(opts.Arguments, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("test command failed: %w\n%s", err, tail(out.String(), 20))
	}
	utils.LogDebug("Test output:\n%s", out.String())
	return nil
}

// tail returns the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func lookup(bc *BuildContext, name string) (config.Artefact, ArtefactPaths, error) {
	ap, ok := bc.Paths.For(name)
	if !ok {
		return config.Artefact{}, ArtefactPaths{}, fmt.Errorf("no paths for artefact %s", name)
	}
	for _, a := range bc.Config.Artefacts {
		if a.Name == name {
			return a, ap, nil
		}
	}
	return config.Artefact{}, ArtefactPaths{}, fmt.Errorf("unknown artefact %s", name)
}

func copyMainModule(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		_, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		return artefact.CopyMainModule(bc.Paths.Staging, ap.Module)
	}
}

func copyRequiredModules(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		_, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		if bc.Resolution == nil {
			return Skip("required modules were not resolved")
		}
		if len(bc.Resolution.Dependencies) == 0 && len(bc.Resolution.Missing) == 0 {
			return Skip("no required modules")
		}
		n, err := artefact.CopyRequiredModules(bc.Resolution.Dependencies, bc.Resolution.Missing, ap.ModulesDir)
		if err != nil {
			return err
		}
		utils.LogVerbose("Copied %d required module(s) to %s", n, ap.ModulesDir)
		return nil
	}
}

func copyFiles(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		a, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		_, err = artefact.CopyFiles(a, bc.Module.ProjectPath, ap.Module)
		return err
	}
}

func copyFolders(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		a, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		plan, err := artefact.CopyFolders(a, bc.Module.ProjectPath, ap.Module)
		if err != nil {
			return err
		}
		if len(plan.Operations) == 0 {
			return Skip("no folders to copy")
		}
		return nil
	}
}

func writeScript(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		_, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		_, err = artefact.WriteScript(bc.Module, bc.Dependencies(), bc.Paths.Staging, ap.Destination)
		return err
	}
}

func createArchive(name string) Action {
	return func(_ context.Context, bc *BuildContext) error {
		_, ap, err := lookup(bc, name)
		if err != nil {
			return err
		}
		src := artefact.ModuleDestination(ap.Destination, bc.Module, false)
		if err := archive.Create(src, ap.Archive); err != nil {
			return err
		}
		bc.Archives = append(bc.Archives, publish.Asset{Path: ap.Archive, Module: bc.Module})
		utils.LogInfo("Archive written to %s", ap.Archive)
		return nil
	}
}

func publishStage(ctx context.Context, bc *BuildContext) error {
	if len(bc.Archives) == 0 {
		return Skip("no archives to publish")
	}

	publishers := bc.Publishers
	if publishers == nil {
		reg, err := publish.FromConfig(ctx, bc.Config.Options.Publish)
		if err != nil {
			return err
		}
		publishers = reg.List()
	}

	var errs []error
	for _, p := range publishers {
		for _, asset := range bc.Archives {
			utils.LogInfo("Publishing %s to %s", asset.Name(), p.Name())
			if err := p.Publish(ctx, asset); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
