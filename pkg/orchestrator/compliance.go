package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/StricklySoft/contentflow/pkg/compliance"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

// ComplianceExecutor evaluates the draft locally. It runs as the
// rule-based agent.
type ComplianceExecutor struct {
	eval *compliance.Evaluator
}

// NewComplianceExecutor returns an executor over eval.
func NewComplianceExecutor(eval *compliance.Evaluator) *ComplianceExecutor {
	return &ComplianceExecutor{eval: eval}
}

// Agent implements Executor.
func (c *ComplianceExecutor) Agent() string { return phases.RuleBased }

// Execute sanitizes the draft and reports rule violations. Violations
// do not fail the outcome.
func (c *ComplianceExecutor) Execute(_ context.Context, in Input) Outcome {
	var draft DraftOutput
	if err := json.Unmarshal(in.Previous, &draft); err != nil {
		return Err(KindInvalidOutput, fmt.Sprintf("decode draft output: %v", err))
	}
	clean := compliance.Sanitize(draft.Markdown, c.eval.Rules().MaxLength)
	violations := c.eval.Evaluate(clean, in.Brief.Sources)

	out, err := json.Marshal(ComplianceReport{
		Passed:     len(violations) == 0,
		Violations: violations,
		Characters: utf8.RuneCountInString(clean),
		Draft:      clean,
	})
	if err != nil {
		return Err(KindInvalidOutput, fmt.Sprintf("encode compliance report: %v", err))
	}
	return Ok(out)
}
