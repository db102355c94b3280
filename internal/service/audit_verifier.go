package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
)

// RunnerVerifier verifies task completion through the agent-execution
// collaborator. The runner replies with a first line of OK or NOK and an
// optional "confidence=<0..1>" token; the rest of the output is evidence.
type RunnerVerifier struct {
	runner agentrunner.Runner
	model  string
}

// NewRunnerVerifier creates a RunnerVerifier using the given model.
func NewRunnerVerifier(runner agentrunner.Runner, model string) *RunnerVerifier {
	return &RunnerVerifier{runner: runner, model: model}
}

// Verify asks the runner whether the task is actually complete.
func (v *RunnerVerifier) Verify(ctx context.Context, t task.Task) (AuditVerdict, error) {
	req := agentrunner.Request{
		Role:  agent.RoleTester,
		Model: v.model,
		Description: fmt.Sprintf(
			"Verify whether this task is actually complete. Reply OK or NOK on the first line, "+
				"then confidence=<0..1>, then evidence.\nTask: %s\nRecorded status: %s\nDescription: %s",
			t.Title, t.Status, t.Description),
	}

	res, err := v.runner.Execute(ctx, req)
	if err != nil {
		return AuditVerdict{}, err
	}
	return parseVerdict(t.ID, res.Output), nil
}

// parseVerdict extracts the verdict, confidence, and evidence note from the
// runner's output. Anything that is not an unambiguous OK counts as
// incomplete.
func parseVerdict(taskID, output string) AuditVerdict {
	verdict := AuditVerdict{TaskID: taskID, Confidence: 0.5}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 0 && strings.EqualFold(strings.TrimSpace(lines[0]), "OK") {
		verdict.Complete = true
	}

	var evidence []string
	for _, line := range lines[min(1, len(lines)):] {
		trimmed := strings.TrimSpace(line)
		if val, ok := strings.CutPrefix(trimmed, "confidence="); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil && f >= 0 && f <= 1 {
				verdict.Confidence = f
			}
			continue
		}
		if trimmed != "" {
			evidence = append(evidence, trimmed)
		}
	}
	verdict.Note = strings.Join(evidence, " ")
	return verdict
}
