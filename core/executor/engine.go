// Package executor hands rendered config documents to a proving engine.
//
// Three engines ship with the package. ExecEngine starts the engine binary
// with HandoffVar set in the child environment only. HTTPEngine posts the
// document to an engine sidecar. GlobalHandoffEngine is the embedding API for
// programs that link an engine into their own process and can only pass the
// config through the process environment; the server never builds one, it is
// for callers that construct a Runner around their own Invoke function.
package executor

import (
	"context"
	"errors"

	"zkml-orchestrator/core/configdoc"
)

// HandoffVar is the environment variable the engine reads its config location from
const HandoffVar = "EZKLCONF"

// ErrEngineUnreachable is returned when the engine cannot be started or contacted
var ErrEngineUnreachable = errors.New("engine unreachable")

// Engine runs one rendered job and writes the artifacts the document declares
type Engine interface {
	Run(ctx context.Context, doc *configdoc.Document) error
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(ctx context.Context, doc *configdoc.Document) error

// Run calls f
func (f EngineFunc) Run(ctx context.Context, doc *configdoc.Document) error {
	return f(ctx, doc)
}
