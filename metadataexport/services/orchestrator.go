package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/natserract/idmcexport/pkg/artifact"
	"github.com/natserract/idmcexport/pkg/collaborator"
	"github.com/natserract/idmcexport/pkg/config"
	"github.com/natserract/idmcexport/pkg/runlock"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ErrBaseDir is returned when the install directory is missing or not a
// directory. Nothing else runs in that case.
var ErrBaseDir = errors.New("base directory unavailable")

// recordTimeout bounds ledger and webhook writes after the run, even when
// the run itself was cancelled.
const recordTimeout = 2 * time.Minute

// FailurePolicy decides whether a failed export still runs the load step.
type FailurePolicy string

const (
	BestEffort FailurePolicy = config.PolicyBestEffort
	FailFast   FailurePolicy = config.PolicyFailFast
)

// Options configures one orchestrator. Every path is absolute or relative
// to BaseDir; the process working directory is never changed.
type Options struct {
	BaseDir    string
	ConfigFile string
	Section    string
	// LockFile guards against overlapping runs; empty disables locking.
	LockFile    string
	Export      collaborator.Command
	Load        collaborator.Command
	Policy      FailurePolicy
	StepTimeout time.Duration
}

// OptionsFromConfig builds Options for the Python collaborators described by
// cfg. Both run unbuffered inside the base directory.
func OptionsFromConfig(cfg *config.Config) Options {
	unbuffered := []string{"-u"}
	return Options{
		BaseDir:    cfg.BaseDir,
		ConfigFile: cfg.Path(cfg.ConfigFile),
		Section:    cfg.Section,
		LockFile:   cfg.Path(cfg.LockFile),
		Export: collaborator.Command{
			Name:            StepExport,
			Interpreter:     cfg.Python,
			InterpreterArgs: unbuffered,
			Script:          cfg.Path(cfg.ExportScript),
			Dir:             cfg.BaseDir,
		},
		Load: collaborator.Command{
			Name:            StepLoad,
			Interpreter:     cfg.Python,
			InterpreterArgs: unbuffered,
			Script:          cfg.Path(cfg.LoadScript),
			Dir:             cfg.BaseDir,
		},
		Policy:      FailurePolicy(cfg.FailurePolicy),
		StepTimeout: cfg.StepTimeout,
	}
}

// RunRecorder persists or publishes a finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// Orchestrator sequences one export run: read the export filename, remove
// stale artifacts, run the export collaborator, then the load collaborator.
type Orchestrator struct {
	opts      Options
	executor  collaborator.Executor
	recorders []RunRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(opts Options, executor collaborator.Executor, logger *zap.Logger, recorders ...RunRecorder) *Orchestrator {
	if opts.Policy == "" {
		opts.Policy = BestEffort
	}
	return &Orchestrator{
		opts:      opts,
		executor:  executor,
		recorders: recorders,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one full export run.
//
// The returned error is non-nil only when the run could not start: the base
// directory is unusable (ErrBaseDir) or another run holds the lock
// (runlock.ErrHeld). Collaborator failures are reported in the RunReport,
// whose ExitCode is the load collaborator's exit status.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := newRunReport(o.now())
	log := o.logger.With(zap.String("run_id", report.ID.String()))

	log.Info("Starting IDMC export run",
		zap.Time("started_at", report.StartedAt),
		zap.String("base_dir", o.opts.BaseDir),
		zap.String("failure_policy", string(o.opts.Policy)))

	if err := checkBaseDir(o.opts.BaseDir); err != nil {
		log.Error("Base directory unavailable, aborting run",
			zap.String("base_dir", o.opts.BaseDir),
			zap.Error(err))
		report.finish(o.now(), 1)
		o.record(ctx, log, report)
		return report, err
	}

	if o.opts.LockFile != "" {
		lock := runlock.New(o.opts.LockFile)
		if err := lock.Acquire(); err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				log.Warn("Another export run is in progress, skipping",
					zap.String("lock_file", lock.Path()))
				report.Status = RunLocked
				report.finish(o.now(), 0)
				o.record(ctx, log, report)
				return report, err
			}
			// Locking is a safeguard, not a prerequisite.
			log.Warn("Failed to take run lock, continuing without it", zap.Error(err))
		} else {
			defer func() {
				if err := lock.Release(); err != nil {
					log.Warn("Failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	name := o.readExportFilename(log, report)
	report.ExportFilename = name

	o.cleanup(log, report, name)

	exportRes := o.runStep(ctx, log, report, o.opts.Export)
	if !exportRes.Succeeded() && o.opts.Policy == FailFast {
		log.Error("Export collaborator failed, skipping load",
			zap.Int("exit_code", exportRes.ExitCode),
			zap.NamedError("cause", exportRes.Err))
		report.add(StepResult{
			Name:   StepLoad,
			Status: StepSkipped,
			Target: o.opts.Load.Script,
			Detail: "export failed under fail-fast policy",
		})
		return o.complete(ctx, log, report, exitCodeOf(exportRes)), nil
	}

	// A failed export may still print a path; only trust it on success.
	hint := ""
	if exportRes.Succeeded() {
		hint = exportRes.LastLine
	}

	load := o.opts.Load
	if path := o.handoff(log, report, name, hint); path != "" {
		load.Args = append(append([]string(nil), load.Args...), path)
	}

	loadRes := o.runStep(ctx, log, report, load)
	return o.complete(ctx, log, report, exitCodeOf(loadRes)), nil
}

func (o *Orchestrator) complete(ctx context.Context, log *zap.Logger, report *RunReport, exitCode int) *RunReport {
	report.finish(o.now(), exitCode)

	log.Info("Completed IDMC export run",
		zap.String("status", string(report.Status)),
		zap.Int("exit_code", report.ExitCode),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		zap.String("export_filename", report.ExportFilename),
		zap.String("artifact_path", report.ArtifactPath),
		zap.Int("steps_succeeded", report.Count(StepSucceeded)),
		zap.Int("steps_failed", report.Count(StepFailed)),
		zap.Int("steps_skipped", report.Count(StepSkipped)))

	o.record(ctx, log, report)
	return report
}

// readExportFilename never fails the run: every problem degrades to an
// empty name.
func (o *Orchestrator) readExportFilename(log *zap.Logger, report *RunReport) string {
	start := time.Now()
	name, err := config.ReadExportFilename(o.opts.ConfigFile, o.opts.Section)

	step := StepResult{Name: StepConfig, Target: o.opts.ConfigFile}
	switch {
	case err != nil:
		step.Status = StepFailed
		step.Error = err.Error()
		log.Warn("Could not read export filename, continuing with an empty name",
			zap.String("config_file", o.opts.ConfigFile),
			zap.Error(err))
	case name == "":
		step.Status = StepSkipped
		step.Detail = fmt.Sprintf("%s not set in [%s]", config.ExportFilenameKey, o.opts.Section)
		log.Warn("Export filename not configured, continuing with an empty name",
			zap.String("config_file", o.opts.ConfigFile),
			zap.String("section", o.opts.Section))
	default:
		step.Status = StepSucceeded
		step.Detail = name
		log.Info("Read export filename", zap.String("export_filename", name))
	}
	step.DurationMs = time.Since(start).Milliseconds()

	report.add(step)
	return name
}

func (o *Orchestrator) cleanup(log *zap.Logger, report *RunReport, name string) {
	start := time.Now()
	removals := artifact.Cleanup(artifact.Paths(o.opts.BaseDir, name))
	elapsed := time.Since(start).Milliseconds()

	for _, removal := range removals {
		step := StepResult{
			Name:       StepCleanup,
			Target:     removal.Path,
			Detail:     string(removal.Outcome),
			DurationMs: elapsed,
		}
		switch removal.Outcome {
		case artifact.Removed:
			step.Status = StepSucceeded
			log.Info("Removed stale artifact", zap.String("path", removal.Path))
		case artifact.Absent:
			step.Status = StepSkipped
			log.Debug("No stale artifact to remove", zap.String("path", removal.Path))
		default:
			step.Status = StepFailed
			step.Error = removal.Err.Error()
			log.Warn("Failed to remove stale artifact, continuing",
				zap.String("path", removal.Path),
				zap.Error(removal.Err))
		}
		report.add(step)
	}
}

// runStep runs one collaborator and records it. A panic inside the executor
// is turned into a failed step so the run can still be recorded.
func (o *Orchestrator) runStep(ctx context.Context, log *zap.Logger, report *RunReport, cmd collaborator.Command) collaborator.Result {
	if err := ctx.Err(); err != nil {
		log.Warn("Run cancelled, skipping step", zap.String("step", cmd.Name), zap.Error(err))
		report.add(StepResult{
			Name:   cmd.Name,
			Status: StepSkipped,
			Target: cmd.Script,
			Detail: "run cancelled",
			Error:  err.Error(),
		})
		return collaborator.Result{Name: cmd.Name, ExitCode: -1, Err: err}
	}

	stepCtx := ctx
	if o.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, o.opts.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	var res collaborator.Result
	var pc panics.Catcher
	pc.Try(func() { res = o.executor.Run(stepCtx, cmd) })
	if rec := pc.Recovered(); rec != nil {
		log.Error("Collaborator step panicked",
			zap.String("step", cmd.Name),
			zap.Any("panic", rec.Value),
			zap.ByteString("stack", rec.Stack))
		res = collaborator.Result{
			Name:     cmd.Name,
			ExitCode: -1,
			Duration: time.Since(start),
			Err:      fmt.Errorf("%s panicked: %v", cmd.Name, rec.Value),
		}
	}

	step := StepResult{
		Name:       cmd.Name,
		Target:     cmd.Script,
		ExitCode:   intPtr(res.ExitCode),
		DurationMs: res.Duration.Milliseconds(),
	}
	if len(cmd.Args) > 0 {
		step.Detail = "args: " + strings.Join(cmd.Args, " ")
	}
	if res.Succeeded() {
		step.Status = StepSucceeded
	} else {
		step.Status = StepFailed
		if res.Err != nil {
			step.Error = res.Err.Error()
		}
		log.Warn("Collaborator step failed",
			zap.String("step", cmd.Name),
			zap.Int("exit_code", res.ExitCode),
			zap.NamedError("cause", res.Err))
	}
	report.add(step)

	return res
}

// handoff resolves the artifact for the load collaborator. An empty result
// means the loader falls back to its own configured input path.
func (o *Orchestrator) handoff(log *zap.Logger, report *RunReport, name, hint string) string {
	path, err := artifact.Resolve(o.opts.BaseDir, name, hint)
	if err != nil {
		log.Warn("No export artifact found, load collaborator will use its own input path",
			zap.String("export_filename", name),
			zap.Error(err))
		report.add(StepResult{
			Name:   StepHandoff,
			Status: StepSkipped,
			Detail: "no artifact passed to the load collaborator",
			Error:  err.Error(),
		})
		return ""
	}

	log.Info("Resolved export artifact", zap.String("artifact_path", path))
	report.ArtifactPath = path
	report.add(StepResult{Name: StepHandoff, Status: StepSucceeded, Target: path})
	return path
}

func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, report *RunReport) {
	if len(o.recorders) == 0 {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	// Recorders are independent; a slow webhook must not hold up the ledger.
	p := pool.New().WithMaxGoroutines(len(o.recorders))
	for _, r := range o.recorders {
		p.Go(func() {
			if err := r.RecordRun(recordCtx, report); err != nil {
				log.Warn("Failed to record run", zap.Error(err))
			}
		})
	}
	p.Wait()
}

func checkBaseDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBaseDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrBaseDir, dir)
	}
	return nil
}

// exitCodeOf maps a collaborator result onto a process exit status. Start
// failures and signal kills have no exit code of their own and become 1.
func exitCodeOf(res collaborator.Result) int {
	if res.ExitCode > 0 {
		return res.ExitCode
	}
	if res.Succeeded() {
		return 0
	}
	return 1
}
