package executor

import (
	"context"
	"os"
	"sync"

	"zkml-orchestrator/core/configdoc"
)

// handoffMu guards the process environment slot for in-process engines
var handoffMu sync.Mutex

// GlobalHandoffEngine wraps an in-process engine that can only read its
// configuration from the process environment. Set-env and invocation happen
// under one process-wide lock, so at most one such run is in flight.
type GlobalHandoffEngine struct {
	// Invoke runs the in-process engine; it reads HandoffVar itself
	Invoke func(ctx context.Context) error
	// PassBody hands over the serialized document instead of its path
	PassBody bool
}

// Run publishes the document in HandoffVar and invokes the engine
func (e *GlobalHandoffEngine) Run(ctx context.Context, doc *configdoc.Document) error {
	value := doc.Path
	if e.PassBody || value == "" {
		value = string(doc.Body)
	}

	handoffMu.Lock()
	defer handoffMu.Unlock()

	prev, had := os.LookupEnv(HandoffVar)
	if err := os.Setenv(HandoffVar, value); err != nil {
		return err
	}
	defer func() {
		if had {
			os.Setenv(HandoffVar, prev)
		} else {
			os.Unsetenv(HandoffVar)
		}
	}()

	return e.Invoke(ctx)
}
