package orchestrator

import (
	"fmt"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

// PhaseFailedError reports that a workflow halted at Phase. The failure
// is already recorded on the workflow when this is returned.
type PhaseFailedError struct {
	WorkflowID string
	Phase      phases.Phase
	Kind       ErrorKind
	Message    string
}

func (e *PhaseFailedError) Error() string {
	return fmt.Sprintf("orchestrator: workflow %s failed in %s (%s): %s", e.WorkflowID, e.Phase, e.Kind, e.Message)
}

// Unwrap maps role mismatches to CodePhaseModelMismatch and every other
// kind to CodeExecutor.
func (e *PhaseFailedError) Unwrap() error {
	code := sserr.CodeExecutor
	if e.Kind == KindRoleMismatch {
		code = sserr.CodePhaseModelMismatch
	}
	return sserr.New(code, e.Message).WithDetails(map[string]any{
		"workflow_id": e.WorkflowID,
		"phase":       string(e.Phase),
		"kind":        string(e.Kind),
	})
}
