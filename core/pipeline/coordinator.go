// Package pipeline sequences workspace setup, input persistence, config
// rendering, engine runs, judging and artifact read-back for each request kind.
//
// Runs for the same project are serialized behind a per-project lock. Runs for
// different projects proceed in parallel; the engine hand-off is per
// invocation unless the configured engine says otherwise.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zkml-orchestrator/core/configdoc"
	"zkml-orchestrator/core/executor"
	"zkml-orchestrator/core/judge"
	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/monitoring"
	"zkml-orchestrator/core/results"
	"zkml-orchestrator/core/workspace"
	"zkml-orchestrator/settlement"

	log "github.com/sirupsen/logrus"
)

// ParamsProvider owns the shared proving parameters file
type ParamsProvider interface {
	Path() string
	Ensure(ctx context.Context) (string, error)
}

// WinClaim identifies the hunt and winner to notify when a proof is accepted
type WinClaim struct {
	HuntID string
	Winner string
}

// Options configures a Coordinator
type Options struct {
	Args          models.RunParameters
	Prove         models.ProveOptions
	Threshold     float64
	Recorder      JobRecorder
	Notifier      settlement.Notifier
	NotifyTimeout time.Duration
}

// Coordinator runs the request pipelines
type Coordinator struct {
	workspaces *workspace.Manager
	runner     *executor.Runner
	params     ParamsProvider
	opts       Options
	locks      *projectLocks
}

// NewCoordinator creates a coordinator; zero options fall back to the built-in defaults
func NewCoordinator(workspaces *workspace.Manager, runner *executor.Runner, params ParamsProvider, opts Options) *Coordinator {
	if opts.Args.Scale == 0 {
		opts.Args = models.DefaultRunParameters()
	}
	if opts.Prove.Transcript == "" || opts.Prove.Strategy == "" {
		opts.Prove = models.DefaultProveOptions()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = judge.DefaultThreshold
	}
	if opts.NotifyTimeout == 0 {
		opts.NotifyTimeout = 5 * time.Minute
	}
	return &Coordinator{
		workspaces: workspaces,
		runner:     runner,
		params:     params,
		opts:       opts,
		locks:      newProjectLocks(),
	}
}

// Threshold returns the judge threshold in use
func (c *Coordinator) Threshold() float64 {
	return c.opts.Threshold
}

// Forward runs the model over input and returns the engine's output data file
func (c *Coordinator) Forward(ctx context.Context, project string, input models.DataFile, model []byte) (*models.DataFile, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return nil, err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	kind := models.JobKindForward
	t := newTracker(c.opts.Recorder, project, kind, c.configPath(project, kind))

	ws, err := c.prepare(t, project, &input, model)
	if err != nil {
		return nil, err
	}
	outcome, err := c.runStage(ctx, t, ws, kind)
	if err != nil {
		return nil, err
	}
	if !outcome.Completed() {
		return nil, &EngineFailure{Kind: kind, Reason: outcome.Reason}
	}

	outputPath := workspace.PathFor(ws, workspace.ArtifactOutput)
	output, err := results.ReadDataFile(outputPath)
	if err != nil {
		return nil, t.fail(models.StateEngineFailure, err)
	}
	t.artifact(models.ArtifactTypeOutput, outputPath)
	t.step(models.StateArtifactsRead)
	t.finish(nil, nil)
	return output, nil
}

// Mock runs a mock-check and judges the input's declared output against target
func (c *Coordinator) Mock(ctx context.Context, project string, input models.DataFile, target models.Tensor, model []byte) (models.Verdict, error) {
	return c.judged(ctx, models.JobKindMock, project, input, target, model, nil)
}

// Prove generates a proof and judges the input's declared output against target.
// When the verdict is accepted and claim is set, the win is reported in the background.
func (c *Coordinator) Prove(ctx context.Context, project string, input models.DataFile, target models.Tensor, model []byte, claim *WinClaim) (models.Verdict, error) {
	return c.judged(ctx, models.JobKindProve, project, input, target, model, claim)
}

func (c *Coordinator) judged(ctx context.Context, kind models.JobKind, project string, input models.DataFile, target models.Tensor, model []byte, claim *WinClaim) (models.Verdict, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return models.Verdict{}, err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	t := newTracker(c.opts.Recorder, project, kind, c.configPath(project, kind))

	ws, err := c.prepare(t, project, &input, model)
	if err != nil {
		return models.Verdict{JobID: t.id()}, err
	}
	outcome, err := c.runStage(ctx, t, ws, kind)
	if err != nil {
		return models.Verdict{JobID: t.id()}, err
	}
	if !outcome.Completed() {
		v := models.Verdict{JobID: t.id(), Outcome: models.OutcomeEngineFailed, Reason: outcome.Reason}
		monitoring.ObserveVerdict(kind, v.Outcome)
		return v, nil
	}

	res, err := judge.Evaluate(input.Output(), target, c.opts.Threshold)
	if err != nil {
		return models.Verdict{JobID: t.id()}, t.fail(models.StateShapeMismatchError, err)
	}
	t.step(models.StateJudged)

	v := models.Verdict{
		JobID:    t.id(),
		Outcome:  models.OutcomeRejected,
		Accepted: res.Accepted,
		Distance: &res.Distance,
	}
	if res.Accepted {
		v.Outcome = models.OutcomeAccepted
	}

	if kind == models.JobKindProve {
		t.artifact(models.ArtifactTypeVerificationKey, workspace.PathFor(ws, workspace.ArtifactVerificationKey))
		t.artifact(models.ArtifactTypeProof, workspace.PathFor(ws, workspace.ArtifactProof))
		if v.Accepted && claim != nil {
			c.notifyWin(t, ws, claim)
		}
	}

	t.finish(&v.Accepted, v.Distance)
	monitoring.ObserveVerdict(kind, v.Outcome)
	return v, nil
}

// notifyWin reads the fresh proof and hands it to the settlement notifier
func (c *Coordinator) notifyWin(t *tracker, ws workspace.Paths, claim *WinClaim) {
	if c.opts.Notifier == nil {
		t.entry.Warn("Proof accepted with a win claim but no settlement notifier is configured")
		return
	}
	proof, err := results.ReadProof(workspace.PathFor(ws, workspace.ArtifactProof))
	if err != nil {
		t.entry.WithError(err).Error("Cannot notify win without a proof")
		return
	}
	settlement.Dispatch(c.opts.Notifier, claim.HuntID, claim.Winner, proof.Proof, c.opts.NotifyTimeout)
}

// GenerateVerifier proves over input, then generates the verifier from the
// resulting verification key and returns its source. The second job never
// runs if the first fails.
func (c *Coordinator) GenerateVerifier(ctx context.Context, project string, model []byte, input models.DataFile) (string, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return "", err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	proveTracker := newTracker(c.opts.Recorder, project, models.JobKindProve, c.configPath(project, models.JobKindProve))
	ws, err := c.prepare(proveTracker, project, &input, model)
	if err != nil {
		return "", err
	}
	if err := c.mustComplete(ctx, proveTracker, ws, models.JobKindProve); err != nil {
		return "", err
	}
	proveTracker.artifact(models.ArtifactTypeVerificationKey, workspace.PathFor(ws, workspace.ArtifactVerificationKey))
	proveTracker.artifact(models.ArtifactTypeProof, workspace.PathFor(ws, workspace.ArtifactProof))
	proveTracker.finish(nil, nil)

	kind := models.JobKindGenerateVerifier
	t := newTracker(c.opts.Recorder, project, kind, c.configPath(project, kind))
	t.step(models.StateWorkspaceReady)
	if err := c.mustComplete(ctx, t, ws, kind); err != nil {
		return "", err
	}

	solPath := workspace.PathFor(ws, workspace.ArtifactVerifierSource)
	source, err := results.ReadVerifierSource(solPath)
	if err != nil {
		return "", t.fail(models.StateEngineFailure, err)
	}
	t.artifact(models.ArtifactTypeVerifierSource, solPath)
	t.artifact(models.ArtifactTypeDeploymentCode, workspace.PathFor(ws, workspace.ArtifactDeploymentCode))
	t.step(models.StateArtifactsRead)
	t.finish(nil, nil)
	return source, nil
}

// ProveAndRetrieve stores the model and input, proves, and returns the run
// status with the proof the engine wrote
func (c *Coordinator) ProveAndRetrieve(ctx context.Context, project string, model []byte, input models.DataFile) (string, *models.ProofArtifact, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return "", nil, err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	kind := models.JobKindProve
	t := newTracker(c.opts.Recorder, project, kind, c.configPath(project, kind))

	ws, err := c.prepare(t, project, &input, model)
	if err != nil {
		return "", nil, err
	}
	outcome, err := c.runStage(ctx, t, ws, kind)
	if err != nil {
		return "", nil, err
	}
	if !outcome.Completed() {
		return string(outcome.Status), nil, &EngineFailure{Kind: kind, Reason: outcome.Reason}
	}

	proofPath := workspace.PathFor(ws, workspace.ArtifactProof)
	proof, err := results.ReadProof(proofPath)
	if err != nil {
		return "", nil, t.fail(models.StateEngineFailure, err)
	}
	t.artifact(models.ArtifactTypeVerificationKey, workspace.PathFor(ws, workspace.ArtifactVerificationKey))
	t.artifact(models.ArtifactTypeProof, proofPath)
	t.step(models.StateArtifactsRead)
	t.finish(nil, nil)
	return string(outcome.Status), proof, nil
}

// Proof returns the last proof written for a project
func (c *Coordinator) Proof(project string) (*models.ProofArtifact, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return nil, err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	return results.ReadProof(workspace.PathFor(c.paths(project), workspace.ArtifactProof))
}

// UploadModel stores the model file for a project and returns its path
func (c *Coordinator) UploadModel(project string, model []byte) (string, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return "", err
	}
	unlock := c.locks.lock(project)
	defer unlock()

	ws, err := c.workspaces.EnsureProject(project)
	if err != nil {
		return "", err
	}
	path := workspace.PathFor(ws, workspace.ArtifactModel)
	if err := writeFile(path, model); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"project": project, "bytes": len(model)}).Info("Stored model")
	return path, nil
}

// DocumentRun is the outcome of a caller-authored config document
type DocumentRun struct {
	JobID  string                `json:"job_id,omitempty"`
	Kind   models.JobKind        `json:"kind"`
	Status executor.RunStatus    `json:"status"`
	Reason string                `json:"reason,omitempty"`
	Output *models.DataFile      `json:"output,omitempty"`
	Proof  *models.ProofArtifact `json:"proof,omitempty"`
}

// RunDocument runs a config document written by the caller against the
// project workspace. Every path it names must resolve inside the workspace,
// and params_path, when present, must be the shared params file. A document
// that fails either check returns ErrInvalidDocument before anything runs.
// An engine-reported failure is a failed DocumentRun, not an error.
func (c *Coordinator) RunDocument(ctx context.Context, project string, body []byte) (*DocumentRun, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return nil, err
	}
	cfg, err := configdoc.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := confine(c.paths(project), cfg.Paths); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if p := cfg.Paths.ParamsPath; p != "" && filepath.Clean(p) != filepath.Clean(c.params.Path()) {
		return nil, fmt.Errorf("%w: params_path must be %s", ErrInvalidDocument, c.params.Path())
	}
	if _, err := configdoc.Render(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	unlock := c.locks.lock(project)
	defer unlock()

	t := newTracker(c.opts.Recorder, project, cfg.Kind, c.configPath(project, cfg.Kind))
	ws, err := c.workspaces.EnsureProject(project)
	if err != nil {
		return nil, t.fail(models.StateWorkspaceError, err)
	}
	t.step(models.StateWorkspaceReady)
	if needsParams(cfg.Kind) {
		if _, err := c.params.Ensure(ctx); err != nil {
			return nil, t.fail(models.StateWorkspaceError, err)
		}
	}

	outcome, err := c.execute(ctx, t, ws, cfg)
	if err != nil {
		return nil, err
	}
	run := &DocumentRun{JobID: t.id(), Kind: cfg.Kind, Status: outcome.Status, Reason: outcome.Reason}
	if !outcome.Completed() {
		return run, nil
	}

	p := cfg.Paths
	switch cfg.Kind {
	case models.JobKindForward:
		if run.Output, err = results.ReadDataFile(p.Output); err != nil {
			return nil, t.fail(models.StateEngineFailure, err)
		}
		t.artifact(models.ArtifactTypeOutput, p.Output)
	case models.JobKindProve:
		if run.Proof, err = results.ReadProof(p.ProofPath); err != nil {
			return nil, t.fail(models.StateEngineFailure, err)
		}
		t.artifact(models.ArtifactTypeVerificationKey, p.VKPath)
		t.artifact(models.ArtifactTypeProof, p.ProofPath)
	case models.JobKindGenerateVerifier:
		t.artifact(models.ArtifactTypeVerifierSource, p.SolCodePath)
		t.artifact(models.ArtifactTypeDeploymentCode, p.DeploymentCodePath)
	}
	t.step(models.StateArtifactsRead)
	t.finish(nil, nil)
	return run, nil
}

// RenderConfig renders the document a job would hand to the engine without touching disk
func (c *Coordinator) RenderConfig(project string, kind models.JobKind) (*configdoc.Document, error) {
	if err := workspace.ValidateProjectName(project); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown job kind %q", configdoc.ErrSerialization, kind)
	}
	ws := c.paths(project)
	doc, err := configdoc.Render(c.newConfig(ws, kind, c.params.Path()))
	if err != nil {
		return nil, err
	}
	doc.Path = workspace.ConfigPath(ws, kind)
	return doc, nil
}

func (c *Coordinator) paths(project string) workspace.Paths {
	return workspace.Paths{Project: project, Dir: c.workspaces.Dir(project), ModelExt: c.workspaces.ModelExt()}
}

func (c *Coordinator) configPath(project string, kind models.JobKind) string {
	return workspace.ConfigPath(c.paths(project), kind)
}

// prepare takes a run from Received to InputsPersisted
func (c *Coordinator) prepare(t *tracker, project string, input *models.DataFile, model []byte) (workspace.Paths, error) {
	ws, err := c.workspaces.EnsureProject(project)
	if err != nil {
		return ws, t.fail(models.StateWorkspaceError, err)
	}
	t.step(models.StateWorkspaceReady)

	if len(model) > 0 {
		path := workspace.PathFor(ws, workspace.ArtifactModel)
		if err := writeFile(path, model); err != nil {
			return ws, t.fail(models.StatePersistError, err)
		}
		t.artifact(models.ArtifactTypeModel, path)
	}
	if input != nil {
		body, err := json.Marshal(input)
		if err != nil {
			return ws, t.fail(models.StatePersistError, fmt.Errorf("%w: encoding input: %v", ErrPersist, err))
		}
		path := workspace.PathFor(ws, workspace.ArtifactInput)
		if err := writeFile(path, body); err != nil {
			return ws, t.fail(models.StatePersistError, err)
		}
		t.artifact(models.ArtifactTypeInput, path)
	}
	t.step(models.StateInputsPersisted)
	return ws, nil
}

func (c *Coordinator) newConfig(ws workspace.Paths, kind models.JobKind, paramsPath string) models.JobConfig {
	cfg := models.JobConfig{
		Kind:  kind,
		Args:  c.opts.Args,
		Paths: workspace.JobPaths(ws, kind, paramsPath),
	}
	if kind == models.JobKindProve {
		cfg.Prove = c.opts.Prove
	}
	return cfg
}

// runStage renders, stores and runs one job. A failed outcome with a nil
// error means the engine itself reported the failure.
func (c *Coordinator) runStage(ctx context.Context, t *tracker, ws workspace.Paths, kind models.JobKind) (executor.RunOutcome, error) {
	paramsPath := ""
	if needsParams(kind) {
		p, err := c.params.Ensure(ctx)
		if err != nil {
			return executor.RunOutcome{}, t.fail(models.StateWorkspaceError, err)
		}
		paramsPath = p
	}
	return c.execute(ctx, t, ws, c.newConfig(ws, kind, paramsPath))
}

// execute writes cfg as the job's config document and hands it to the runner
func (c *Coordinator) execute(ctx context.Context, t *tracker, ws workspace.Paths, cfg models.JobConfig) (executor.RunOutcome, error) {
	if err := confine(ws, cfg.Paths); err != nil {
		return executor.RunOutcome{}, t.fail(models.StateSerializationError, err)
	}
	doc, err := configdoc.Render(cfg)
	if err != nil {
		return executor.RunOutcome{}, t.fail(models.StateSerializationError, err)
	}
	doc.Path = workspace.ConfigPath(ws, cfg.Kind)
	if err := writeFile(doc.Path, doc.Body); err != nil {
		return executor.RunOutcome{}, t.fail(models.StatePersistError, err)
	}
	t.artifact(models.ArtifactTypeConfig, doc.Path)
	t.running()

	outcome, err := c.runner.Execute(ctx, doc)
	if err != nil {
		return outcome, t.fail(models.StateEngineFailure, err)
	}
	if !outcome.Completed() {
		t.fail(models.StateEngineFailure, &EngineFailure{Kind: cfg.Kind, Reason: outcome.Reason})
		return outcome, nil
	}
	t.step(models.StateJobExecuted)
	return outcome, nil
}

func needsParams(kind models.JobKind) bool {
	return kind == models.JobKindProve || kind == models.JobKindGenerateVerifier
}

// confine rejects job paths that resolve outside the project workspace.
// The shared params file is checked separately.
func confine(ws workspace.Paths, p models.JobPaths) error {
	for _, f := range []struct{ name, path string }{
		{"data", p.Data},
		{"model", p.Model},
		{"output", p.Output},
		{"vk_path", p.VKPath},
		{"proof_path", p.ProofPath},
		{"deployment_code_path", p.DeploymentCodePath},
		{"sol_code_path", p.SolCodePath},
	} {
		if f.path != "" && !workspace.Contains(ws, f.path) {
			return fmt.Errorf("%w: %s %q is outside workspace %s", configdoc.ErrSerialization, f.name, f.path, ws.Dir)
		}
	}
	return nil
}

// mustComplete runs a stage and turns an engine-reported failure into an *EngineFailure
func (c *Coordinator) mustComplete(ctx context.Context, t *tracker, ws workspace.Paths, kind models.JobKind) error {
	outcome, err := c.runStage(ctx, t, ws, kind)
	if err != nil {
		return err
	}
	if !outcome.Completed() {
		return &EngineFailure{Kind: kind, Reason: outcome.Reason}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrPersist, path, err)
	}
	return nil
}
