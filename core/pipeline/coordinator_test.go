package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zkml-orchestrator/core/configdoc"
	"zkml-orchestrator/core/executor"
	"zkml-orchestrator/core/judge"
	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/results"
	"zkml-orchestrator/core/workspace"
	"zkml-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proofJSON = `{"num_instance":[1],"instances":[[[5,0,0,0]]],"proof":[1,2,3]}`

// fakeEngine writes the artifacts each job kind declares and counts invocations
type fakeEngine struct {
	mu    sync.Mutex
	kinds []models.JobKind
	fail  map[models.JobKind]string
	calls int32
}

func (e *fakeEngine) Run(_ context.Context, doc *configdoc.Document) error {
	atomic.AddInt32(&e.calls, 1)
	e.mu.Lock()
	e.kinds = append(e.kinds, doc.Config.Kind)
	reason, fail := e.fail[doc.Config.Kind]
	e.mu.Unlock()
	if fail {
		return errors.New(reason)
	}

	onDisk, err := os.ReadFile(doc.Path)
	if err != nil {
		return err
	}
	cfg, err := configdoc.Parse(onDisk)
	if err != nil {
		return err
	}

	p := cfg.Paths
	switch cfg.Kind {
	case models.JobKindForward:
		var in models.DataFile
		raw, err := os.ReadFile(p.Data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return err
		}
		in.OutputData = [][]float64{{0.5, 0.25}}
		out, _ := json.Marshal(in)
		return os.WriteFile(p.Output, out, 0o644)
	case models.JobKindProve:
		if err := os.WriteFile(p.VKPath, []byte("vk"), 0o644); err != nil {
			return err
		}
		return os.WriteFile(p.ProofPath, []byte(proofJSON), 0o644)
	case models.JobKindGenerateVerifier:
		if _, err := os.Stat(p.VKPath); err != nil {
			return fmt.Errorf("missing verification key: %w", err)
		}
		if err := os.WriteFile(p.DeploymentCodePath, []byte{0x60, 0x80}, 0o644); err != nil {
			return err
		}
		return os.WriteFile(p.SolCodePath, []byte("contract Verifier {}\n"), 0o644)
	}
	return nil
}

func (e *fakeEngine) invocations() int {
	return int(atomic.LoadInt32(&e.calls))
}

type recordedEvent struct {
	status models.JobStatus
	reason string
}

// memoryRecorder keeps job history in memory
type memoryRecorder struct {
	mu        sync.Mutex
	events    map[string][]recordedEvent
	artifacts map[string][]models.ArtifactType
	jobs      map[string]*models.Job
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{
		events:    map[string][]recordedEvent{},
		artifacts: map[string][]models.ArtifactType{},
		jobs:      map[string]*models.Job{},
	}
}

func (r *memoryRecorder) CreateJob(job *models.Job, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	r.events[job.ID] = append(r.events[job.ID], recordedEvent{job.Status, reason})
	return nil
}

func (r *memoryRecorder) CreateJobEvent(jobID string, _ *models.JobStatus, to models.JobStatus, reason string, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[jobID] = append(r.events[jobID], recordedEvent{to, reason})
	return nil
}

func (r *memoryRecorder) UpdateJobStatus(jobID string, _, to models.JobStatus, reason string, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID].Status = to
	r.events[jobID] = append(r.events[jobID], recordedEvent{to, reason})
	return nil
}

func (r *memoryRecorder) CompleteJob(jobID string, _, to models.JobStatus, reason string, accepted *bool, distance *float64, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	job.Status, job.Accepted, job.Distance, job.Error = to, accepted, distance, errMsg
	r.events[jobID] = append(r.events[jobID], recordedEvent{to, reason})
	return nil
}

func (r *memoryRecorder) CreateArtifact(jobID string, kind models.ArtifactType, _ string, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[jobID] = append(r.artifacts[jobID], kind)
	return nil
}

func (r *memoryRecorder) reasons(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events[jobID] {
		out = append(out, e.reason)
	}
	return out
}

type harness struct {
	root     string
	engine   *fakeEngine
	recorder *memoryRecorder
	coord    *Coordinator
}

func newHarness(t *testing.T, engine executor.Engine, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "workspaces")
	mgr := workspace.NewManager(root, "onnx")
	require.NoError(t, mgr.Init())

	paramsPath := filepath.Join(dir, "kzg.params")
	require.NoError(t, os.WriteFile(paramsPath, []byte("srs"), 0o644))

	h := &harness{root: root}
	if fe, ok := engine.(*fakeEngine); ok {
		h.engine = fe
	}
	if opts.Recorder == nil {
		h.recorder = newMemoryRecorder()
		opts.Recorder = h.recorder
	}
	h.coord = NewCoordinator(mgr, executor.NewRunner(engine, 0), storage.NewParamsStore(paramsPath, nil), opts)
	return h
}

func sampleInput(output ...float64) models.DataFile {
	return models.DataFile{
		InputData:   [][]float64{{1, 2, 3}},
		InputShapes: [][]int{{3}},
		OutputData:  [][]float64{output},
	}
}

func TestForwardReturnsOutput(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	out, err := h.coord.Forward(context.Background(), "demo", sampleInput(0, 0), []byte("onnx"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.25}}, out.OutputData)
	assert.Equal(t, [][]float64{{1, 2, 3}}, out.InputData)

	model, err := os.ReadFile(filepath.Join(h.root, "demo", "network.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "onnx", string(model))
	assert.FileExists(t, filepath.Join(h.root, "demo", "forward_demo.json"))
}

func TestForwardEngineFailure(t *testing.T) {
	h := newHarness(t, &fakeEngine{fail: map[models.JobKind]string{models.JobKindForward: "bad graph"}}, Options{})

	_, err := h.coord.Forward(context.Background(), "demo", sampleInput(0), nil)
	var ef *EngineFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, "bad graph", ef.Reason)
}

func TestMockVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		output   []float64
		target   [][]float64
		outcome  models.VerdictOutcome
		accepted bool
	}{
		{"within threshold", []float64{1, 2}, [][]float64{{1, 2.05}}, models.OutcomeAccepted, true},
		{"outside threshold", []float64{1, 2}, [][]float64{{1, 3}}, models.OutcomeRejected, false},
		{"exactly at threshold", []float64{0}, [][]float64{{0.1}}, models.OutcomeRejected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeEngine{}, Options{})
			v, err := h.coord.Mock(context.Background(), "demo", sampleInput(tt.output...), models.Tensor{Data: tt.target}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, v.Outcome)
			assert.Equal(t, tt.accepted, v.Accepted)
			require.NotNil(t, v.Distance)
			assert.NotEmpty(t, v.JobID)
		})
	}
}

func TestMockEngineFailureIsNotARejection(t *testing.T) {
	h := newHarness(t, &fakeEngine{fail: map[models.JobKind]string{models.JobKindMock: "lookup overflow"}}, Options{})

	v, err := h.coord.Mock(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEngineFailed, v.Outcome)
	assert.False(t, v.Accepted)
	assert.Nil(t, v.Distance)
	assert.Equal(t, "lookup overflow", v.Reason)

	assert.Equal(t, []string{"received", "workspace_ready", "inputs_persisted", "config_rendered", "engine_failure"}, h.recorder.reasons(v.JobID))
	assert.Equal(t, models.JobStatusFailed, h.recorder.jobs[v.JobID].Status)
}

func TestMockShapeMismatch(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	_, err := h.coord.Mock(context.Background(), "demo", sampleInput(1, 2, 3), models.Tensor{Data: [][]float64{{1, 2}}}, nil)
	assert.ErrorIs(t, err, judge.ErrShapeMismatch)
}

func TestMockRecordsEveryState(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	v, err := h.coord.Mock(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"received", "workspace_ready", "inputs_persisted", "config_rendered", "job_executed", "judged", "responded",
	}, h.recorder.reasons(v.JobID))

	job := h.recorder.jobs[v.JobID]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Accepted)
	assert.True(t, *job.Accepted)
	assert.Equal(t, []models.ArtifactType{models.ArtifactTypeInput, models.ArtifactTypeConfig}, h.recorder.artifacts[v.JobID])
}

func TestInvalidProjectNameNeverTouchesDisk(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})

	_, err := h.coord.Mock(context.Background(), "../../etc", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
	assert.ErrorIs(t, err, workspace.ErrInvalidProjectName)

	_, err = h.coord.GenerateVerifier(context.Background(), "a/b", nil, sampleInput(1))
	assert.ErrorIs(t, err, workspace.ErrInvalidProjectName)

	_, err = h.coord.Proof("..")
	assert.ErrorIs(t, err, workspace.ErrInvalidProjectName)

	assert.Equal(t, 0, engine.invocations())
	assert.NoDirExists(t, filepath.Join(filepath.Dir(h.root), "etc"))
	entries, err := os.ReadDir(h.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistErrorSkipsEngine(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "demo", "input.json"), 0o755))

	_, err := h.coord.Mock(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, 0, engine.invocations())
}

func TestEngineUnreachableIsAnError(t *testing.T) {
	engine := executor.EngineFunc(func(context.Context, *configdoc.Document) error {
		return fmt.Errorf("%w: connection refused", executor.ErrEngineUnreachable)
	})
	h := newHarness(t, engine, Options{})

	_, err := h.coord.Mock(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
	assert.ErrorIs(t, err, executor.ErrEngineUnreachable)

	// the project lock was released
	done := make(chan struct{})
	go func() {
		h.coord.Mock(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("project lock was not released")
	}
}

func TestGenerateVerifierStopsAfterProveFailure(t *testing.T) {
	engine := &fakeEngine{fail: map[models.JobKind]string{models.JobKindProve: "unsatisfied constraint"}}
	h := newHarness(t, engine, Options{})

	_, err := h.coord.GenerateVerifier(context.Background(), "demo", []byte("onnx"), sampleInput(1))
	require.Error(t, err)
	assert.True(t, IsEngineFailure(err))
	assert.Equal(t, 1, engine.invocations())
	assert.NoFileExists(t, filepath.Join(h.root, "demo", "generate_verifier_demo.json"))
}

func TestGenerateVerifierReturnsSource(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})

	src, err := h.coord.GenerateVerifier(context.Background(), "demo", []byte("onnx"), sampleInput(1))
	require.NoError(t, err)
	assert.Equal(t, "contract Verifier {}\n", src)
	assert.Equal(t, []models.JobKind{models.JobKindProve, models.JobKindGenerateVerifier}, engine.kinds)
	assert.FileExists(t, filepath.Join(h.root, "demo", "demo.sol"))
	assert.FileExists(t, filepath.Join(h.root, "demo", "demo.code"))
}

func TestProveAndRetrieve(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	status, proof, err := h.coord.ProveAndRetrieve(context.Background(), "demo", []byte("onnx"), sampleInput(1))
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	assert.Equal(t, []int{1}, proof.NumInstance)
	assert.Equal(t, models.ProofBytes{1, 2, 3}, proof.Proof)

	again, err := h.coord.Proof("demo")
	require.NoError(t, err)
	assert.Equal(t, proof, again)

	cfg, err := os.ReadFile(filepath.Join(h.root, "demo", "prove_demo.json"))
	require.NoError(t, err)
	parsed, err := configdoc.Parse(cfg)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptEVM, parsed.Prove.Transcript)
	assert.NotEmpty(t, parsed.Paths.ParamsPath)
}

func TestProofMissing(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})
	_, err := h.coord.Proof("nobody")
	assert.ErrorIs(t, err, results.ErrArtifact)
}

type chanNotifier chan []byte

func (n chanNotifier) NotifyWin(_ context.Context, huntID, winner string, proof []byte) (bool, error) {
	n <- append([]byte(huntID+"|"+winner+"|"), proof...)
	return true, nil
}

func TestProveNotifiesAcceptedWin(t *testing.T) {
	notifier := make(chanNotifier, 1)
	h := newHarness(t, &fakeEngine{}, Options{Notifier: notifier})
	claim := &WinClaim{HuntID: "hunt-9", Winner: "0x00000000000000000000000000000000000000aa"}

	v, err := h.coord.Prove(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil, claim)
	require.NoError(t, err)
	require.True(t, v.Accepted)

	select {
	case got := <-notifier:
		assert.Equal(t, "hunt-9|0x00000000000000000000000000000000000000aa|\x01\x02\x03", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("win was not reported")
	}
}

func TestProveRejectedDoesNotNotify(t *testing.T) {
	notifier := make(chanNotifier, 1)
	h := newHarness(t, &fakeEngine{}, Options{Notifier: notifier})

	v, err := h.coord.Prove(context.Background(), "demo", sampleInput(1), models.Tensor{Data: [][]float64{{5}}}, nil, &WinClaim{HuntID: "h", Winner: "w"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, v.Outcome)

	select {
	case <-notifier:
		t.Fatal("rejected proof was reported as a win")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentSameProjectMocksDoNotInterleave(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	var root string
	engine := executor.EngineFunc(func(_ context.Context, doc *configdoc.Document) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		before, err := os.ReadFile(doc.Config.Paths.Data)
		if err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
		after, err := os.ReadFile(doc.Config.Paths.Data)
		if err != nil {
			return err
		}
		if string(before) != string(after) {
			return errors.New("input changed during run")
		}
		var in models.DataFile
		return json.Unmarshal(after, &in)
	})
	h := newHarness(t, engine, Options{})
	root = h.root

	var wg sync.WaitGroup
	verdicts := make([]models.Verdict, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := h.coord.Mock(context.Background(), "shared", sampleInput(float64(i)), models.Tensor{Data: [][]float64{{float64(i)}}}, nil)
			assert.NoError(t, err)
			verdicts[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	for i, v := range verdicts {
		assert.Equal(t, models.OutcomeAccepted, v.Outcome, "run %d", i)
	}
	assert.DirExists(t, filepath.Join(root, "shared"))
}

func TestDifferentProjectsRunInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	engine := executor.EngineFunc(func(_ context.Context, doc *configdoc.Document) error {
		started <- doc.Path
		<-release
		return nil
	})
	h := newHarness(t, engine, Options{})

	var wg sync.WaitGroup
	for _, p := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			h.coord.Mock(context.Background(), p, sampleInput(1), models.Tensor{Data: [][]float64{{1}}}, nil)
		}(p)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("projects did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

func TestRenderConfigDoesNotCreateWorkspace(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	doc, err := h.coord.RenderConfig("preview", models.JobKindGenerateVerifier)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.root, "preview", "generate_verifier_preview.json"), doc.Path)
	assert.Contains(t, string(doc.Body), configdoc.TagGenerateVerifier)
	assert.NoDirExists(t, filepath.Join(h.root, "preview"))

	_, err = h.coord.RenderConfig("preview", models.JobKind("train"))
	assert.ErrorIs(t, err, configdoc.ErrSerialization)
}

func TestUploadModel(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})

	path, err := h.coord.UploadModel("demo", []byte("graph"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.root, "demo", "network.onnx"), path)

	_, err = h.coord.UploadModel("../up", []byte("graph"))
	assert.ErrorIs(t, err, workspace.ErrInvalidProjectName)
}

func (h *harness) projectDir(t *testing.T, project string) workspace.Paths {
	t.Helper()
	ws := workspace.Paths{Project: project, Dir: filepath.Join(h.root, project), ModelExt: "onnx"}
	require.NoError(t, os.MkdirAll(ws.Dir, 0o755))
	return ws
}

func renderDoc(t *testing.T, cfg models.JobConfig) []byte {
	t.Helper()
	cfg.Args = models.DefaultRunParameters()
	doc, err := configdoc.Render(cfg)
	require.NoError(t, err)
	return doc.Body
}

func TestRunDocumentForward(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})
	ws := h.projectDir(t, "demo")
	in, _ := json.Marshal(sampleInput(1))
	require.NoError(t, os.WriteFile(workspace.PathFor(ws, workspace.ArtifactInput), in, 0o644))

	body := renderDoc(t, models.JobConfig{Kind: models.JobKindForward, Paths: workspace.JobPaths(ws, models.JobKindForward, "")})
	run, err := h.coord.RunDocument(context.Background(), "demo", body)
	require.NoError(t, err)
	assert.Equal(t, executor.RunCompleted, run.Status)
	assert.Equal(t, models.JobKindForward, run.Kind)
	require.NotNil(t, run.Output)
	assert.Equal(t, [][]float64{{0.5, 0.25}}, run.Output.OutputData)
	assert.Contains(t, h.recorder.reasons(run.JobID), string(models.StateArtifactsRead))
}

func TestRunDocumentProveUsesSharedParams(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, Options{})
	ws := h.projectDir(t, "demo")
	params := filepath.Join(filepath.Dir(h.root), "kzg.params")

	cfg := models.JobConfig{
		Kind:  models.JobKindProve,
		Prove: models.DefaultProveOptions(),
		Paths: workspace.JobPaths(ws, models.JobKindProve, params),
	}
	run, err := h.coord.RunDocument(context.Background(), "demo", renderDoc(t, cfg))
	require.NoError(t, err)
	require.NotNil(t, run.Proof)
	assert.Equal(t, models.ProofBytes{1, 2, 3}, run.Proof.Proof)

	cfg.Paths.ParamsPath = filepath.Join(ws.Dir, "other.params")
	_, err = h.coord.RunDocument(context.Background(), "demo", renderDoc(t, cfg))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestRunDocumentEngineFailureIsAnOutcome(t *testing.T) {
	engine := &fakeEngine{fail: map[models.JobKind]string{models.JobKindMock: "constraint 7 not satisfied"}}
	h := newHarness(t, engine, Options{})
	ws := h.projectDir(t, "demo")

	body := renderDoc(t, models.JobConfig{Kind: models.JobKindMock, Paths: workspace.JobPaths(ws, models.JobKindMock, "")})
	run, err := h.coord.RunDocument(context.Background(), "demo", body)
	require.NoError(t, err)
	assert.Equal(t, executor.RunFailed, run.Status)
	assert.Contains(t, run.Reason, "constraint 7")
	assert.Equal(t, models.JobStatusFailed, h.recorder.jobs[run.JobID].Status)
}

func TestRunDocumentRejectsEscapingPaths(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})

	for name, body := range map[string][]byte{
		"absolute": renderDoc(t, models.JobConfig{Kind: models.JobKindMock, Paths: models.JobPaths{
			Data: "/etc/passwd", Model: filepath.Join(h.root, "demo", "network.onnx"),
		}}),
		"traversal": renderDoc(t, models.JobConfig{Kind: models.JobKindForward, Paths: models.JobPaths{
			Data:   filepath.Join(h.root, "demo", "input.json"),
			Model:  filepath.Join(h.root, "demo", "network.onnx"),
			Output: filepath.Join(h.root, "demo", "..", "victim", "output.json"),
		}}),
		"relative": renderDoc(t, models.JobConfig{Kind: models.JobKindMock, Paths: models.JobPaths{
			Data: "input.json", Model: "network.onnx",
		}}),
		"malformed":  []byte(`{"command":{}}`),
		"unknown":    []byte(`{"command":{"Train":{}},"args":{}}`),
		"incomplete": []byte(`{"command":{"Mock":{"data":""}}}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.coord.RunDocument(context.Background(), "demo", body)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
	assert.Equal(t, 0, engine.invocations())
	assert.NoDirExists(t, filepath.Join(h.root, "demo"))
}

func TestExecuteRefusesConfigOutsideWorkspace(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, engine, Options{})
	ws := h.projectDir(t, "demo")

	cfg := h.coord.newConfig(ws, models.JobKindForward, "")
	cfg.Paths.Output = filepath.Join(h.root, "elsewhere", "output.json")
	tr := newTracker(h.recorder, "demo", models.JobKindForward, "")

	_, err := h.coord.execute(context.Background(), tr, ws, cfg)
	assert.ErrorIs(t, err, configdoc.ErrSerialization)
	assert.Equal(t, 0, engine.invocations())
	assert.NoFileExists(t, workspace.ConfigPath(ws, models.JobKindForward))
	assert.Equal(t, models.JobStatusFailed, h.recorder.jobs[tr.id()].Status)
}
