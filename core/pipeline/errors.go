package pipeline

import (
	"errors"
	"fmt"

	"zkml-orchestrator/core/models"
)

// ErrPersist is returned when an input artifact cannot be written
var ErrPersist = errors.New("persist error")

// ErrInvalidDocument is returned when a caller-supplied config document is
// malformed or names paths outside the project workspace
var ErrInvalidDocument = errors.New("invalid config document")

// EngineFailure is an engine-reported failure for a job kind that has no judged result
type EngineFailure struct {
	Kind   models.JobKind
	Reason string
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("%s job failed: %s", e.Kind, e.Reason)
}

// IsEngineFailure reports whether err carries an *EngineFailure
func IsEngineFailure(err error) bool {
	var ef *EngineFailure
	return errors.As(err, &ef)
}
