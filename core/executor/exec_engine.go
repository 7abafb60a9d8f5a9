package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"zkml-orchestrator/core/configdoc"
)

const maxStderrTail = 2048

// ExecEngine runs the engine binary as a child process. The config path is
// handed over through the child's own environment, so concurrent runs never
// share the hand-off slot.
type ExecEngine struct {
	Binary string
	Args   []string
}

// NewExecEngine creates an engine that runs binary with args
func NewExecEngine(binary string, args ...string) *ExecEngine {
	return &ExecEngine{Binary: binary, Args: args}
}

// Run executes the binary with HandoffVar pointing at the document
func (e *ExecEngine) Run(ctx context.Context, doc *configdoc.Document) error {
	if doc.Path == "" {
		return errors.New("config document has not been written to disk")
	}

	cmd := exec.CommandContext(ctx, e.Binary, e.Args...)
	cmd.Env = append(os.Environ(), HandoffVar+"="+doc.Path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrEngineUnreachable, e.Binary, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("engine run aborted: %w", ctx.Err())
		}
		msg := tail(stderr.String(), maxStderrTail)
		if msg == "" {
			msg = tail(stdout.String(), maxStderrTail)
		}
		return fmt.Errorf("engine exited: %v: %s", err, msg)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
