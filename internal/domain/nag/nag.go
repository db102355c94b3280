// Package nag defines quality-gate rules ("nags"), their evaluation results,
// and the durable status ledger consulted at enforcement points.
package nag

import (
	"errors"
	"time"
)

// Stage identifies the lifecycle stage a nag gates.
type Stage string

const (
	StagePreCommit Stage = "pre-commit"
	StagePrePush   Stage = "pre-push"
)

// Kind identifies how a nag is evaluated.
type Kind string

const (
	KindTool  Kind = "tool-check"
	KindAgent Kind = "agent-evaluated"
)

// Criterion selects how a tool-check's success is judged.
type Criterion string

const (
	CriterionExitCode       Criterion = "exit-code"
	CriterionOutputContains Criterion = "output-contains"
	CriterionOutputExcludes Criterion = "output-excludes"
)

// Nag is a single quality-gate rule.
type Nag struct {
	ID       string `json:"id" yaml:"id"`
	Stage    Stage  `json:"stage" yaml:"stage"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Blocking bool   `json:"blocking" yaml:"blocking"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`

	// Tool-check configuration.
	Command   string        `json:"command,omitempty" yaml:"command,omitempty"`
	Criterion Criterion     `json:"criterion,omitempty" yaml:"criterion,omitempty"`
	Needle    string        `json:"needle,omitempty" yaml:"needle,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Agent-evaluated configuration.
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Criteria string `json:"criteria,omitempty" yaml:"criteria,omitempty"`
}

// Validate checks that a nag definition is internally consistent.
func (n *Nag) Validate() error {
	if n.ID == "" {
		return errors.New("nag id is required")
	}
	if n.Stage != StagePreCommit && n.Stage != StagePrePush {
		return errors.New("nag stage must be pre-commit or pre-push")
	}
	switch n.Kind {
	case KindTool:
		if n.Command == "" {
			return errors.New("tool-check nag requires a command")
		}
		switch n.Criterion {
		case CriterionExitCode, CriterionOutputContains, CriterionOutputExcludes:
		case "":
			return errors.New("tool-check nag requires a criterion")
		default:
			return errors.New("unknown tool-check criterion")
		}
		if n.Criterion != CriterionExitCode && n.Needle == "" {
			return errors.New("output criterion requires a needle")
		}
	case KindAgent:
		if n.Prompt == "" {
			return errors.New("agent-evaluated nag requires a prompt")
		}
	default:
		return errors.New("nag kind must be tool-check or agent-evaluated")
	}
	return nil
}

// Result is the outcome of evaluating one nag.
type Result string

const (
	ResultPassed  Result = "passed"
	ResultFailed  Result = "failed"
	ResultError   Result = "error"
	ResultSkipped Result = "skipped"
)

// Verdict is a durable ledger value for one nag.
type Verdict string

const (
	VerdictOK  Verdict = "OK"
	VerdictNOK Verdict = "NOK"
)

// LedgerEntry is the durable record for one nag in the status ledger.
// Unknown or missing entries are never treated as passing.
type LedgerEntry struct {
	NagID     string    `json:"nag_id"`
	Verdict   Verdict   `json:"verdict"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Evaluation records the result of one nag within a stage run.
type Evaluation struct {
	NagID    string        `json:"nag_id"`
	Kind     Kind          `json:"kind"`
	Blocking bool          `json:"blocking"`
	Result   Result        `json:"result"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StageReport aggregates one stage execution.
type StageReport struct {
	Stage       Stage        `json:"stage"`
	Evaluations []Evaluation `json:"evaluations"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Errored     int          `json:"errored"`
	Skipped     int          `json:"skipped"`
	Blocked     bool         `json:"blocked"`
	RanAt       time.Time    `json:"ran_at"`
}
