package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/nag"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
	"github.com/Strob0t/AgentFoundry/internal/port/broadcast"
	"github.com/Strob0t/AgentFoundry/internal/port/ledger"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
	"github.com/Strob0t/AgentFoundry/internal/telemetry"
)

// GateService evaluates quality-gate rules ("nags") at lifecycle stages and
// maintains the durable status ledger the enforcement point consults.
// Missing or unknown ledger entries never pass (default-deny).
type GateService struct {
	nags           []nag.Nag
	blocking       map[string]bool // stage -> stage may block
	defaultTimeout time.Duration
	discipline     config.Discipline
	ledger         ledger.Store
	runner         agentrunner.Runner // nil: agent-evaluated nags are skipped
	vcs            vcs.Client
	queue          messagequeue.Queue
	hub            broadcast.Broadcaster
}

// NewGateService creates a GateService over the configured nag set.
func NewGateService(cfg config.Gate, discipline config.Discipline, store ledger.Store,
	runner agentrunner.Runner, client vcs.Client, queue messagequeue.Queue, hub broadcast.Broadcaster,
) *GateService {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GateService{
		nags:           cfg.Nags,
		blocking:       cfg.Blocking,
		defaultTimeout: timeout,
		discipline:     discipline,
		ledger:         store,
		runner:         runner,
		vcs:            client,
		queue:          queue,
		hub:            hub,
	}
}

// RunStage evaluates every enabled nag configured for the stage in the given
// working copy, records verdicts into the ledger, and returns the aggregate
// report. Individual nag failures are data in the report, never errors, so
// one failing check cannot abort the rest of the stage.
func (s *GateService) RunStage(ctx context.Context, projectID, worktreePath string, stage nag.Stage) (*nag.StageReport, error) {
	ctx, span := telemetry.StartGateSpan(ctx, projectID, string(stage))
	defer span.End()

	report := &nag.StageReport{Stage: stage, RanAt: time.Now().UTC()}

	for i := range s.nags {
		n := &s.nags[i]
		if n.Stage != stage || !n.Enabled {
			continue
		}

		started := time.Now()
		result, detail := s.evaluate(ctx, worktreePath, n)
		eval := nag.Evaluation{
			NagID:    n.ID,
			Kind:     n.Kind,
			Blocking: n.Blocking,
			Result:   result,
			Detail:   detail,
			Duration: time.Since(started),
		}
		report.Evaluations = append(report.Evaluations, eval)

		switch result {
		case nag.ResultPassed:
			report.Passed++
			s.record(ctx, projectID, n.ID, nag.VerdictOK, detail)
		case nag.ResultFailed:
			report.Failed++
			s.record(ctx, projectID, n.ID, nag.VerdictNOK, detail)
		case nag.ResultError:
			report.Errored++
			s.record(ctx, projectID, n.ID, nag.VerdictNOK, detail)
		case nag.ResultSkipped:
			// No runtime available: the previous verdict, if any, stands.
			// Skipped is never recorded as passing.
			report.Skipped++
		}

		if result == nag.ResultFailed && n.Blocking && s.blocking[string(stage)] {
			report.Blocked = true
		}
	}

	s.publishReport(ctx, projectID, report)
	return report, nil
}

// evaluate runs one nag and maps its outcome to a result.
func (s *GateService) evaluate(ctx context.Context, worktreePath string, n *nag.Nag) (nag.Result, string) {
	switch n.Kind {
	case nag.KindTool:
		return s.runTool(ctx, worktreePath, n)
	case nag.KindAgent:
		return s.runAgent(ctx, worktreePath, n)
	}
	return nag.ResultError, fmt.Sprintf("unknown nag kind %q", n.Kind)
}

// runTool executes the nag's command under its timeout and judges the
// configured success criterion.
func (s *GateService) runTool(ctx context.Context, worktreePath string, n *nag.Nag) (nag.Result, string) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", n.Command) //nolint:gosec // nag commands come from operator config
	cmd.Dir = worktreePath
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	if cctx.Err() == context.DeadlineExceeded {
		return nag.ResultError, fmt.Sprintf("timed out after %s", timeout)
	}

	output := out.String()
	switch n.Criterion {
	case nag.CriterionExitCode:
		if runErr == nil {
			return nag.ResultPassed, ""
		}
		return nag.ResultFailed, truncate(output, 512)
	case nag.CriterionOutputContains:
		if strings.Contains(output, n.Needle) {
			return nag.ResultPassed, ""
		}
		return nag.ResultFailed, fmt.Sprintf("output does not contain %q", n.Needle)
	case nag.CriterionOutputExcludes:
		if !strings.Contains(output, n.Needle) {
			return nag.ResultPassed, ""
		}
		return nag.ResultFailed, fmt.Sprintf("output contains %q", n.Needle)
	}
	return nag.ResultError, fmt.Sprintf("unknown criterion %q", n.Criterion)
}

// runAgent delegates evaluation to the agent runtime. With no runtime the
// result is skipped, never silently passing.
func (s *GateService) runAgent(ctx context.Context, worktreePath string, n *nag.Nag) (nag.Result, string) {
	if s.runner == nil {
		return nag.ResultSkipped, "no agent runtime available"
	}

	res, err := s.runner.Execute(ctx, agentrunner.Request{
		Role:         agent.RoleReviewer,
		Description:  fmt.Sprintf("%s\nCriteria: %s\nReply OK or NOK on the first line.", n.Prompt, n.Criteria),
		WorktreePath: worktreePath,
	})
	if err != nil {
		return nag.ResultError, err.Error()
	}

	first := ""
	if lines := strings.SplitN(strings.TrimSpace(res.Output), "\n", 2); len(lines) > 0 {
		first = strings.TrimSpace(lines[0])
	}
	switch {
	case strings.EqualFold(first, string(nag.VerdictOK)):
		return nag.ResultPassed, ""
	case strings.EqualFold(first, string(nag.VerdictNOK)):
		return nag.ResultFailed, truncate(res.Output, 512)
	}
	return nag.ResultError, "agent verdict was neither OK nor NOK"
}

// CheckLedger is the enforcement-point query: it reports whether the stage
// may proceed for the project. Every enabled blocking nag of the stage must
// have a recorded OK; missing entries are failing (default-deny). Stages not
// configured to block always proceed.
func (s *GateService) CheckLedger(ctx context.Context, projectID string, stage nag.Stage) (allowed bool, failing []string, err error) {
	if !s.blocking[string(stage)] {
		return true, nil, nil
	}

	for i := range s.nags {
		n := &s.nags[i]
		if n.Stage != stage || !n.Enabled || !n.Blocking {
			continue
		}
		entry, ok, getErr := s.verdict(ctx, projectID, n.ID)
		if getErr != nil {
			return false, nil, getErr
		}
		if !ok || entry.Verdict != nag.VerdictOK {
			failing = append(failing, n.ID)
		}
	}
	return len(failing) == 0, failing, nil
}

// SetVerdict records an externally supplied verdict for a nag. This is how
// out-of-band processes flip a NOK to OK once the underlying issue is fixed.
func (s *GateService) SetVerdict(ctx context.Context, projectID, nagID string, v nag.Verdict, detail string) error {
	if v != nag.VerdictOK && v != nag.VerdictNOK {
		return fmt.Errorf("set verdict: invalid verdict %q", v)
	}
	s.record(ctx, projectID, nagID, v, detail)
	return nil
}

// Ledger returns all recorded verdicts for the project, sorted by nag ID.
func (s *GateService) Ledger(ctx context.Context, projectID string) ([]nag.LedgerEntry, error) {
	keys, err := s.ledger.Keys(ctx, ledgerPrefix(projectID))
	if err != nil {
		return nil, fmt.Errorf("gate ledger keys: %w", err)
	}
	sort.Strings(keys)

	var entries []nag.LedgerEntry
	for _, key := range keys {
		data, ok, err := s.ledger.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("gate ledger get %s: %w", key, err)
		}
		if !ok {
			continue
		}
		var e nag.LedgerEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("gate ledger decode %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ExportText renders the ledger in the textual interchange format, one
// "<nag-id>: <verdict>" line per entry. The text is an export only; the
// ledger store remains the unit of concurrency control.
func (s *GateService) ExportText(ctx context.Context, projectID string) (string, error) {
	entries, err := s.Ledger(ctx, projectID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.NagID, e.Verdict)
	}
	return b.String(), nil
}

// CheckDiscipline evaluates the built-in commit-discipline thresholds for
// the working copy: pending change size against the configured maxima and the
// gap since the last commit against the configured interval bounds. Each
// breached threshold yields one violation string; zero thresholds disable a
// check, a zero lastCommit disables the interval checks.
func (s *GateService) CheckDiscipline(ctx context.Context, worktreePath string, lastCommit time.Time) ([]string, error) {
	var violations []string

	if s.discipline.MaxChangedLines > 0 || s.discipline.MaxChangedFiles > 0 {
		diff, err := s.vcs.Diff(ctx, worktreePath)
		if err != nil {
			return nil, fmt.Errorf("discipline diff: %w", err)
		}
		changed := diff.Additions + diff.Deletions
		if s.discipline.MaxChangedLines > 0 && changed > s.discipline.MaxChangedLines {
			violations = append(violations,
				fmt.Sprintf("%d changed lines exceed the limit of %d; split the work into smaller commits", changed, s.discipline.MaxChangedLines))
		}
		if s.discipline.MaxChangedFiles > 0 && diff.Files > s.discipline.MaxChangedFiles {
			violations = append(violations,
				fmt.Sprintf("%d changed files exceed the limit of %d", diff.Files, s.discipline.MaxChangedFiles))
		}
	}

	if !lastCommit.IsZero() {
		gap := time.Since(lastCommit)
		if s.discipline.MinCommitInterval > 0 && gap < s.discipline.MinCommitInterval {
			violations = append(violations,
				fmt.Sprintf("last commit was %s ago, below the minimum interval of %s", gap.Round(time.Second), s.discipline.MinCommitInterval))
		}
		if s.discipline.MaxCommitInterval > 0 && gap > s.discipline.MaxCommitInterval {
			violations = append(violations,
				fmt.Sprintf("last commit was %s ago, beyond the maximum interval of %s", gap.Round(time.Second), s.discipline.MaxCommitInterval))
		}
	}

	return violations, nil
}

func (s *GateService) record(ctx context.Context, projectID, nagID string, v nag.Verdict, detail string) {
	entry := nag.LedgerEntry{
		NagID:     nagID,
		Verdict:   v,
		Detail:    detail,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.ledger.Put(ctx, ledgerKey(projectID, nagID), data); err != nil {
		slog.Error("failed to record gate verdict", "nag_id", nagID, "error", err)
	}
}

func (s *GateService) verdict(ctx context.Context, projectID, nagID string) (*nag.LedgerEntry, bool, error) {
	data, ok, err := s.ledger.Get(ctx, ledgerKey(projectID, nagID))
	if err != nil || !ok {
		return nil, false, err
	}
	var e nag.LedgerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

func (s *GateService) publishReport(ctx context.Context, projectID string, report *nag.StageReport) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "gate.report", report)
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.GateReportPayload{
		ProjectID: projectID,
		Stage:     string(report.Stage),
		Blocked:   report.Blocked,
		Failed:    report.Failed,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectGateReport, data); err != nil {
		slog.Error("failed to publish gate report", "project_id", projectID, "error", err)
	}
}

func ledgerPrefix(projectID string) string {
	return "gate/" + projectID + "/"
}

func ledgerKey(projectID, nagID string) string {
	return ledgerPrefix(projectID) + nagID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
