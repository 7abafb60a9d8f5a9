package executor

import (
	"context"
	"errors"
	"time"

	"zkml-orchestrator/core/configdoc"
	"zkml-orchestrator/core/monitoring"

	log "github.com/sirupsen/logrus"
)

// RunStatus is the terminal state of one engine invocation
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunOutcome is what the engine reported for a job.
// Reason is the engine's error text, passed through unparsed.
type RunOutcome struct {
	Status   RunStatus
	Reason   string
	Duration time.Duration
}

// Completed reports whether the engine ran to completion
func (o RunOutcome) Completed() bool {
	return o.Status == RunCompleted
}

// Runner hands rendered documents to the engine and awaits one terminal outcome
type Runner struct {
	engine  Engine
	timeout time.Duration
}

// NewRunner creates a runner. A zero timeout lets the engine run until it finishes.
func NewRunner(engine Engine, timeout time.Duration) *Runner {
	return &Runner{
		engine:  engine,
		timeout: timeout,
	}
}

// Execute runs one job. The engine keeps running if ctx is cancelled, since it
// has no partial-cancel contract. A transport failure is returned as an error;
// an engine-reported failure is a RunFailed outcome. Execute never retries.
func (r *Runner) Execute(ctx context.Context, doc *configdoc.Document) (RunOutcome, error) {
	runCtx := context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.timeout)
		defer cancel()
	}

	kind := doc.Config.Kind
	entry := log.WithFields(log.Fields{"kind": kind, "config": doc.Path})
	entry.Printf("Running engine job")

	start := time.Now()
	err := r.engine.Run(runCtx, doc)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		monitoring.ObserveEngineRun(kind, string(RunCompleted), elapsed)
		entry.WithField("duration", elapsed).Printf("Engine job completed")
		return RunOutcome{Status: RunCompleted, Duration: elapsed}, nil
	case errors.Is(err, ErrEngineUnreachable):
		monitoring.ObserveEngineRun(kind, "unreachable", elapsed)
		entry.WithError(err).Error("Engine unreachable")
		return RunOutcome{}, err
	default:
		monitoring.ObserveEngineRun(kind, string(RunFailed), elapsed)
		entry.WithError(err).Warn("Engine job failed")
		return RunOutcome{Status: RunFailed, Reason: err.Error(), Duration: elapsed}, nil
	}
}
