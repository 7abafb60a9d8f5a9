package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zkml-orchestrator/core/configdoc"
	"zkml-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockDoc(t *testing.T, dir string) *configdoc.Document {
	t.Helper()
	doc, err := configdoc.Render(models.JobConfig{
		Kind:  models.JobKindMock,
		Args:  models.DefaultRunParameters(),
		Paths: models.JobPaths{Data: filepath.Join(dir, "input.json"), Model: filepath.Join(dir, "network.onnx")},
	})
	require.NoError(t, err)
	if dir != "" {
		doc.Path = filepath.Join(dir, "mock_demo.json")
		require.NoError(t, os.WriteFile(doc.Path, doc.Body, 0o644))
	}
	return doc
}

func TestRunnerOutcomes(t *testing.T) {
	doc := mockDoc(t, t.TempDir())

	t.Run("completed", func(t *testing.T) {
		r := NewRunner(EngineFunc(func(context.Context, *configdoc.Document) error { return nil }), 0)
		out, err := r.Execute(context.Background(), doc)
		require.NoError(t, err)
		assert.True(t, out.Completed())
		assert.Empty(t, out.Reason)
	})

	t.Run("engine failure passes reason through", func(t *testing.T) {
		r := NewRunner(EngineFunc(func(context.Context, *configdoc.Document) error {
			return errors.New("constraint system unsatisfied")
		}), 0)
		out, err := r.Execute(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, RunFailed, out.Status)
		assert.Equal(t, "constraint system unsatisfied", out.Reason)
	})

	t.Run("unreachable is an error", func(t *testing.T) {
		r := NewRunner(EngineFunc(func(context.Context, *configdoc.Document) error {
			return fmt.Errorf("%w: dial tcp: refused", ErrEngineUnreachable)
		}), 0)
		_, err := r.Execute(context.Background(), doc)
		assert.ErrorIs(t, err, ErrEngineUnreachable)
	})
}

func TestRunnerIgnoresCallerCancellation(t *testing.T) {
	doc := mockDoc(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(EngineFunc(func(ctx context.Context, _ *configdoc.Document) error {
		return ctx.Err()
	}), 0)
	out, err := r.Execute(ctx, doc)
	require.NoError(t, err)
	assert.True(t, out.Completed())
}

func TestRunnerTimeout(t *testing.T) {
	doc := mockDoc(t, t.TempDir())
	r := NewRunner(EngineFunc(func(ctx context.Context, _ *configdoc.Document) error {
		<-ctx.Done()
		return ctx.Err()
	}), 20*time.Millisecond)

	out, err := r.Execute(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, out.Status)
	assert.Contains(t, out.Reason, "deadline exceeded")
}

func TestExecEngineHandsOffConfigPath(t *testing.T) {
	dir := t.TempDir()
	doc := mockDoc(t, dir)
	seen := filepath.Join(dir, "seen")

	engine := NewExecEngine("sh", "-c", `cp "$EZKLCONF" "$SEEN"`)
	t.Setenv("SEEN", seen)
	require.NoError(t, engine.Run(context.Background(), doc))

	got, err := os.ReadFile(seen)
	require.NoError(t, err)
	assert.Equal(t, doc.Body, got)
}

func TestExecEngineFailures(t *testing.T) {
	dir := t.TempDir()
	doc := mockDoc(t, dir)

	err := NewExecEngine("sh", "-c", `echo "bad model" >&2; exit 3`).Run(context.Background(), doc)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEngineUnreachable)
	assert.Contains(t, err.Error(), "bad model")

	err = NewExecEngine(filepath.Join(dir, "no-such-engine")).Run(context.Background(), doc)
	assert.ErrorIs(t, err, ErrEngineUnreachable)

	err = NewExecEngine("sh", "-c", "true").Run(context.Background(), mockDoc(t, ""))
	require.Error(t, err)
}

func TestHTTPEngine(t *testing.T) {
	doc := mockDoc(t, t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		cfg, err := configdoc.Parse(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(runResponse{Error: err.Error()})
			return
		}
		if cfg.Args.Logrows > 20 {
			json.NewEncoder(w).Encode(runResponse{Error: "logrows too large"})
			return
		}
		json.NewEncoder(w).Encode(runResponse{OK: true})
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL + "/")
	require.NoError(t, engine.Run(context.Background(), doc))

	big := *doc
	big.Config.Args.Logrows = 24
	rendered, err := configdoc.Render(big.Config)
	require.NoError(t, err)
	err = engine.Run(context.Background(), rendered)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEngineUnreachable)
	assert.Contains(t, err.Error(), "logrows too large")
}

func TestHTTPEngineUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPEngine(url).Run(context.Background(), mockDoc(t, t.TempDir()))
	assert.ErrorIs(t, err, ErrEngineUnreachable)
}

func TestHTTPEngineSlowRunTimesOutAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := NewRunner(NewHTTPEngine(srv.URL), 50*time.Millisecond)
	out, err := r.Execute(context.Background(), mockDoc(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, RunFailed, out.Status)
	assert.Contains(t, out.Reason, "deadline exceeded")
	assert.NotContains(t, out.Reason, ErrEngineUnreachable.Error())
}

func TestHTTPEngineDroppedResponseIsEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n{\"ok\""))
		conn.Close()
	}))
	defer srv.Close()

	err := NewHTTPEngine(srv.URL).Run(context.Background(), mockDoc(t, t.TempDir()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEngineUnreachable)

	out, err := NewRunner(NewHTTPEngine(srv.URL), 0).Execute(context.Background(), mockDoc(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, RunFailed, out.Status)
}

func TestHTTPEngineHasNoClientDeadline(t *testing.T) {
	assert.Zero(t, NewHTTPEngine("http://engine").Client.Timeout)
}

func TestGlobalHandoffEngineSerializesRuns(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		seen     = map[string]string{}
	)

	engine := &GlobalHandoffEngine{Invoke: func(ctx context.Context) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		value := os.Getenv(HandoffVar)
		time.Sleep(5 * time.Millisecond)
		if os.Getenv(HandoffVar) != value {
			return errors.New("hand-off slot changed during run")
		}

		mu.Lock()
		inFlight--
		seen[value] = value
		mu.Unlock()
		return nil
	}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := &configdoc.Document{Path: fmt.Sprintf("/w/p%d/mock_p%d.json", i, i)}
			errs <- engine.Run(context.Background(), doc)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, maxSeen)
	assert.Len(t, seen, 8)
	_, set := os.LookupEnv(HandoffVar)
	assert.False(t, set)
}

func TestGlobalHandoffEnginePassBody(t *testing.T) {
	doc := mockDoc(t, t.TempDir())
	var got string
	engine := &GlobalHandoffEngine{PassBody: true, Invoke: func(context.Context) error {
		got = os.Getenv(HandoffVar)
		return nil
	}}
	require.NoError(t, engine.Run(context.Background(), doc))
	assert.Equal(t, string(doc.Body), got)
}
