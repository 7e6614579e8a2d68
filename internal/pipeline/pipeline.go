package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gnzdotmx/psforge/internal/utils"
)

// Pipeline runs a fixed list of stages strictly in order
type Pipeline struct {
	stages []Stage
}

// New creates a pipeline from an ordered list of stages
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stages in execution order
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Run executes every stage in declared order. A failing fatal stage halts
// the run and is returned as a *StageError. A failing continuable stage is
// logged and the run goes on. The report is returned in both cases.
func (p *Pipeline) Run(ctx context.Context, bc *BuildContext) (*Report, error) {
	report := newReport(bc.Module.Name, bc.Module.Version, p.stages)
	utils.LogInfo("Building %s %s (run %s)", bc.Module.Name, bc.Module.Version, report.ID)

	var continued int
	for i, stage := range p.stages {
		if !stage.Enabled {
			_ = report.UpdateStageStatus(i, StatusSkipped, "disabled")
			report.AddEvent(stage.Name, "skipped", "%s is disabled", stage.Label)
			utils.LogVerbose("Skipping %s (disabled)", stage.Label)
			continue
		}

		if err := report.UpdateStageStatus(i, StatusRunning, ""); err != nil {
			return report, err
		}
		report.AddEvent(stage.Name, "started", "Started %s", stage.Label)
		utils.LogInfo("▶ %s", stage.Label)

		start := time.Now()
		err := runStage(ctx, stage, bc)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch {
		case err == nil:
			_ = report.UpdateStageStatus(i, StatusSucceeded, "")
			report.AddEvent(stage.Name, "completed", "Completed %s in %s", stage.Label, elapsed)
			utils.LogSuccess("%s (%s)", stage.Label, elapsed)

		case errors.Is(err, ErrSkipped):
			_ = report.UpdateStageStatus(i, StatusSkipped, err.Error())
			report.AddEvent(stage.Name, "skipped", "%v", err)
			utils.LogVerbose("%s skipped: %v", stage.Label, err)

		default:
			_ = report.UpdateStageStatus(i, StatusFailed, err.Error())
			report.AddEvent(stage.Name, "failed", "Failed %s after %s: %v", stage.Label, elapsed, err)

			if stage.Policy == Continuable {
				utils.LogWarning("%s failed after %s, continuing: %v", stage.Label, elapsed, err)
				continued++
				continue
			}

			utils.LogError("%s failed after %s: %v", stage.Label, elapsed, err)
			report.finish(StatusFailed)
			return report, &StageError{Stage: stage.Name, Err: err}
		}
	}

	report.finish(StatusSucceeded)
	total := report.EndTime.Sub(report.StartTime).Round(time.Millisecond)
	if continued > 0 {
		utils.LogWarning("Build finished in %s with %d non-fatal stage failure(s)", total, continued)
	} else {
		utils.LogSuccess("Build finished in %s", total)
	}
	return report, nil
}

// runStage calls the stage action and turns a panic into an error
func runStage(ctx context.Context, stage Stage, bc *BuildContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.LogDebug("panic in %s: %v\n%s", stage.Name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if stage.Action == nil {
		return fmt.Errorf("stage %s has no action", stage.Name)
	}
	return stage.Action(ctx, bc)
}
