package stages

import (
	"context"
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Stage is one idempotent unit of a provisioning run. Done inspects the
// host and must not mutate it. Run establishes the state Done checks for;
// Done is re-evaluated afterwards and must then hold.
type Stage interface {
	Name() string
	Label() string
	// After names the stages that must complete first
	After() []string
	Done(ctx context.Context, env *Env) (bool, error)
	Run(ctx context.Context, env *Env) error
}

// Options controls a single orchestrated run
type Options struct {
	// DryRun evaluates predicates only
	DryRun bool
	// LogPath is reported to the user on failure
	LogPath string
	// OnStage is called after every stage with its report
	OnStage func(types.StageReport)
}

// Orchestrator runs stages in dependency order
type Orchestrator struct {
	stages []Stage
	logger zerolog.Logger
}

// NewOrchestrator orders stages by their declared predecessors. Unknown
// predecessors, duplicate names and cycles are errors.
func NewOrchestrator(stages ...Stage) (*Orchestrator, error) {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		if _, dup := byName[s.Name()]; dup {
			return nil, errors.Newf(errors.ErrInternal, "duplicate stage %s", s.Name())
		}
		byName[s.Name()] = s
	}

	edges := make([]toposort.Edge, 0, len(stages))
	for _, s := range stages {
		if len(s.After()) == 0 {
			edges = append(edges, toposort.Edge{"", s.Name()})
		}
		for _, dep := range s.After() {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Newf(errors.ErrInternal, "stage %s depends on unknown stage %s", s.Name(), dep)
			}
			edges = append(edges, toposort.Edge{dep, s.Name()})
		}
	}
	order, err := toposort.Toposort(edges)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "stage graph is not acyclic")
	}

	o := &Orchestrator{logger: logging.GetLogger("stages")}
	for _, node := range order {
		name, _ := node.(string)
		if name == "" {
			continue
		}
		o.stages = append(o.stages, byName[name])
	}
	return o, nil
}

// Stages returns the stages in execution order
func (o *Orchestrator) Stages() []Stage {
	return append([]Stage(nil), o.stages...)
}

// Run walks the stages in order. A stage whose predicate holds is skipped;
// otherwise its body runs and the predicate is checked again. The first
// failure ends the run. The cleanup registry is released on every path
// and, unless this is a dry run, the state record is saved after every
// stage.
func (o *Orchestrator) Run(ctx context.Context, env *Env, opts Options) (types.RunReport, error) {
	start := env.Now()
	runID := uuid.NewString()
	report := types.RunReport{RunID: runID, DryRun: opts.DryRun, LogPath: opts.LogPath}
	env.State.RunID = runID

	defer func() {
		if failures := env.Registry.Release(); failures > 0 {
			o.logger.Warn().Int("failures", failures).Msg("Some temporary files could not be removed")
		}
	}()

	o.logger.Info().Str("run", runID).Bool("dry_run", opts.DryRun).Int("stages", len(o.stages)).Msg("Provisioning run started")

	for _, s := range o.stages {
		sr, err := o.runStage(ctx, env, s, opts.DryRun)
		report.Stages = append(report.Stages, sr)
		if opts.OnStage != nil {
			opts.OnStage(sr)
		}
		if !opts.DryRun {
			env.State.SetStage(s.Name(), sr.Status, sr.Message, env.Now())
			o.saveState(env)
		}
		if err != nil {
			report.Outcome = types.RunFailed
			report.FailedStage = s.Name()
			report.Duration = env.Now().Sub(start)
			o.logger.Error().Err(err).Str("stage", s.Name()).Str("log", opts.LogPath).Msg("Provisioning run failed")
			return report, errors.InStage(err, s.Name())
		}
	}

	report.Outcome = types.RunCompleted
	report.Duration = env.Now().Sub(start)
	o.logger.Info().Str("run", runID).Dur("duration", report.Duration).Msg("Provisioning run completed")
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, env *Env, s Stage, dryRun bool) (types.StageReport, error) {
	start := env.Now()
	sr := types.StageReport{Name: s.Name(), Label: s.Label(), Status: types.StageStatusPending}
	logger := o.logger.With().Str("stage", s.Name()).Logger()

	fail := func(err error) (types.StageReport, error) {
		sr.Status = types.StageStatusFailed
		sr.Error = err
		sr.Message = err.Error()
		sr.Duration = env.Now().Sub(start)
		return sr, err
	}

	if err := ctx.Err(); err != nil {
		return fail(errors.Wrap(err, errors.ErrCancelled, "run interrupted"))
	}

	done, err := s.Done(ctx, env)
	if err != nil {
		return fail(err)
	}
	if done {
		logger.Info().Msg("Stage already satisfied, skipping")
		sr.Status = types.StageStatusSkipped
		sr.Message = "already satisfied"
		sr.Duration = env.Now().Sub(start)
		return sr, nil
	}
	if dryRun {
		logger.Info().Msg("Stage would run")
		sr.Status = types.StageStatusWouldRun
		sr.Message = "would run"
		sr.Duration = env.Now().Sub(start)
		return sr, nil
	}

	logger.Info().Msg("Running stage")
	if err := s.Run(ctx, env); err != nil {
		return fail(err)
	}

	done, err = s.Done(ctx, env)
	if err != nil {
		return fail(err)
	}
	if !done {
		return fail(errors.Newf(errors.ErrStageInconsistent,
			"stage %s finished but its completion check still fails", s.Name()))
	}

	sr.Status = types.StageStatusDone
	sr.Message = "completed"
	if keys := env.FailedKeys(s.Name()); len(keys) > 0 {
		sr.Message = fmt.Sprintf("completed, %d setting(s) not applied", len(keys))
	}
	sr.Duration = env.Now().Sub(start)
	logger.Info().Dur("duration", sr.Duration).Msg("Stage completed")
	return sr, nil
}

func (o *Orchestrator) saveState(env *Env) {
	if err := env.StateFile.Save(env.State, env.Now()); err != nil {
		o.logger.Warn().Err(err).Str("path", env.StateFile.Path()).Msg("Failed to save state record")
	}
}
