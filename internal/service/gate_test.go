package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain/nag"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
)

func vcsDiff(files, additions, deletions int) vcs.DiffStat {
	return vcs.DiffStat{Files: files, Additions: additions, Deletions: deletions}
}

func newGate(t *testing.T, nags []nag.Nag, blocking map[string]bool, runner agentrunner.Runner) (*GateService, *mockLedger, *mockVCS, *mockQueue) {
	t.Helper()
	store := newMockLedger()
	client := newMockVCS()
	queue := newMockQueue()
	cfg := config.Gate{Nags: nags, Blocking: blocking, DefaultTimeout: 10 * time.Second}
	svc := NewGateService(cfg, config.Defaults().Discipline, store, runner, client, queue, &mockBroadcaster{})
	return svc, store, client, queue
}

func toolNag(id string, stage nag.Stage, blocking bool, command string, criterion nag.Criterion, needle string) nag.Nag {
	return nag.Nag{
		ID: id, Stage: stage, Kind: nag.KindTool, Blocking: blocking, Enabled: true,
		Command: command, Criterion: criterion, Needle: needle,
	}
}

func TestRunStageToolCriteria(t *testing.T) {
	nags := []nag.Nag{
		toolNag("exit-ok", nag.StagePreCommit, true, "true", nag.CriterionExitCode, ""),
		toolNag("exit-fail", nag.StagePreCommit, false, "false", nag.CriterionExitCode, ""),
		toolNag("contains", nag.StagePreCommit, true, "echo all checks green", nag.CriterionOutputContains, "green"),
		toolNag("excludes", nag.StagePreCommit, true, "echo FIXME left in tree", nag.CriterionOutputExcludes, "FIXME"),
	}
	svc, store, _, _ := newGate(t, nags, map[string]bool{string(nag.StagePreCommit): true}, nil)
	ctx := context.Background()

	report, err := svc.RunStage(ctx, "p1", t.TempDir(), nag.StagePreCommit)
	if err != nil {
		t.Fatalf("run stage: %v", err)
	}

	if report.Passed != 2 || report.Failed != 2 {
		t.Fatalf("expected 2 passed / 2 failed, got %d / %d", report.Passed, report.Failed)
	}
	// Only "excludes" is both failing and blocking.
	if !report.Blocked {
		t.Error("expected stage blocked by failing blocking nag")
	}

	// Verdicts are durably recorded.
	if data, ok, _ := store.Get(ctx, ledgerKey("p1", "exit-ok")); !ok || !strings.Contains(string(data), string(nag.VerdictOK)) {
		t.Errorf("expected OK ledger entry for exit-ok, got %s", data)
	}
	if data, ok, _ := store.Get(ctx, ledgerKey("p1", "excludes")); !ok || !strings.Contains(string(data), string(nag.VerdictNOK)) {
		t.Errorf("expected NOK ledger entry for excludes, got %s", data)
	}
}

func TestRunStageNonBlockingStageNeverBlocks(t *testing.T) {
	nags := []nag.Nag{
		toolNag("fails", nag.StagePrePush, true, "false", nag.CriterionExitCode, ""),
	}
	// The stage is absent from the blocking map: it reports but never blocks.
	svc, _, _, queue := newGate(t, nags, map[string]bool{}, nil)

	report, err := svc.RunStage(context.Background(), "p1", t.TempDir(), nag.StagePrePush)
	if err != nil {
		t.Fatalf("run stage: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", report.Failed)
	}
	if report.Blocked {
		t.Error("stage not configured as blocking must not block")
	}
	if queue.count(messagequeue.SubjectGateReport) != 1 {
		t.Error("expected gate report published")
	}
}

func TestRunStageDisabledNagIgnored(t *testing.T) {
	n := toolNag("off", nag.StagePreCommit, true, "false", nag.CriterionExitCode, "")
	n.Enabled = false
	svc, _, _, _ := newGate(t, []nag.Nag{n}, map[string]bool{string(nag.StagePreCommit): true}, nil)

	report, err := svc.RunStage(context.Background(), "p1", t.TempDir(), nag.StagePreCommit)
	if err != nil {
		t.Fatalf("run stage: %v", err)
	}
	if len(report.Evaluations) != 0 || report.Blocked {
		t.Errorf("disabled nag must not be evaluated: %+v", report)
	}
}

func TestAgentNagSkippedWithoutRuntime(t *testing.T) {
	nags := []nag.Nag{{
		ID: "review", Stage: nag.StagePreCommit, Kind: nag.KindAgent, Blocking: true, Enabled: true,
		Prompt: "review the staged diff",
	}}
	svc, store, _, _ := newGate(t, nags, map[string]bool{string(nag.StagePreCommit): true}, nil)
	ctx := context.Background()

	report, err := svc.RunStage(ctx, "p1", t.TempDir(), nag.StagePreCommit)
	if err != nil {
		t.Fatalf("run stage: %v", err)
	}
	if report.Skipped != 1 || report.Passed != 0 {
		t.Fatalf("expected skipped evaluation, got %+v", report)
	}
	// Skipped is not a pass: nothing may be recorded as OK.
	if _, ok, _ := store.Get(ctx, ledgerKey("p1", "review")); ok {
		t.Error("skipped nag must not write a ledger entry")
	}

	// Default-deny: the blocking nag has no OK entry, so the stage is held.
	allowed, failing, err := svc.CheckLedger(ctx, "p1", nag.StagePreCommit)
	if err != nil {
		t.Fatalf("check ledger: %v", err)
	}
	if allowed || len(failing) != 1 || failing[0] != "review" {
		t.Errorf("expected default-deny on missing entry, got allowed=%v failing=%v", allowed, failing)
	}
}

func TestAgentNagVerdictMapping(t *testing.T) {
	nags := []nag.Nag{{
		ID: "review", Stage: nag.StagePreCommit, Kind: nag.KindAgent, Blocking: true, Enabled: true,
		Prompt: "review the staged diff",
	}}

	for _, tc := range []struct {
		output string
		want   nag.Result
	}{
		{"OK\nlooks good", nag.ResultPassed},
		{"NOK\nmissing tests", nag.ResultFailed},
		{"unclear", nag.ResultError},
	} {
		runner := &mockRunner{execute: func(context.Context, agentrunner.Request) (*agentrunner.Result, error) {
			return &agentrunner.Result{Success: true, Output: tc.output}, nil
		}}
		svc, _, _, _ := newGate(t, nags, map[string]bool{string(nag.StagePreCommit): true}, runner)

		report, err := svc.RunStage(context.Background(), "p1", t.TempDir(), nag.StagePreCommit)
		if err != nil {
			t.Fatalf("run stage: %v", err)
		}
		if got := report.Evaluations[0].Result; got != tc.want {
			t.Errorf("output %q: expected %s, got %s", tc.output, tc.want, got)
		}
	}
}

func TestLedgerNOKThenOKAllows(t *testing.T) {
	nags := []nag.Nag{
		toolNag("tests", nag.StagePrePush, true, "false", nag.CriterionExitCode, ""),
	}
	svc, _, _, _ := newGate(t, nags, map[string]bool{string(nag.StagePrePush): true}, nil)
	ctx := context.Background()

	if _, err := svc.RunStage(ctx, "p1", t.TempDir(), nag.StagePrePush); err != nil {
		t.Fatalf("run stage: %v", err)
	}

	allowed, failing, err := svc.CheckLedger(ctx, "p1", nag.StagePrePush)
	if err != nil {
		t.Fatalf("check ledger: %v", err)
	}
	if allowed {
		t.Fatalf("NOK entry must hold the stage, failing=%v", failing)
	}

	// An external process fixes the issue and flips the verdict.
	if err := svc.SetVerdict(ctx, "p1", "tests", nag.VerdictOK, "fixed upstream"); err != nil {
		t.Fatalf("set verdict: %v", err)
	}
	allowed, _, err = svc.CheckLedger(ctx, "p1", nag.StagePrePush)
	if err != nil {
		t.Fatalf("check ledger: %v", err)
	}
	if !allowed {
		t.Error("OK entry must release the stage")
	}

	// Verdicts outside OK/NOK are rejected.
	if err := svc.SetVerdict(ctx, "p1", "tests", "MAYBE", ""); err == nil {
		t.Error("expected rejection of invalid verdict")
	}
}

func TestExportText(t *testing.T) {
	svc, _, _, _ := newGate(t, nil, nil, nil)
	ctx := context.Background()

	if err := svc.SetVerdict(ctx, "p1", "lint", nag.VerdictOK, ""); err != nil {
		t.Fatalf("set verdict: %v", err)
	}
	if err := svc.SetVerdict(ctx, "p1", "tests", nag.VerdictNOK, "2 failures"); err != nil {
		t.Fatalf("set verdict: %v", err)
	}

	text, err := svc.ExportText(ctx, "p1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := "lint: OK\ntests: NOK\n"
	if text != want {
		t.Errorf("unexpected export:\n%s", text)
	}
}

func TestCheckDiscipline(t *testing.T) {
	svc, _, client, _ := newGate(t, nil, nil, nil)
	ctx := context.Background()

	// Within all thresholds.
	client.diff = vcsDiff(10, 120, 30)
	violations, err := svc.CheckDiscipline(ctx, "/tmp/wt", time.Now().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("discipline: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}

	// Oversized change plus a commit gap beyond the maximum interval.
	client.diff = vcsDiff(40, 900, 200)
	violations, err = svc.CheckDiscipline(ctx, "/tmp/wt", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("discipline: %v", err)
	}
	if len(violations) != 3 {
		t.Fatalf("expected lines+files+interval violations, got %v", violations)
	}

	// Zero lastCommit disables the interval checks.
	client.diff = vcsDiff(1, 1, 0)
	violations, err = svc.CheckDiscipline(ctx, "/tmp/wt", time.Time{})
	if err != nil {
		t.Fatalf("discipline: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations for fresh worktree, got %v", violations)
	}
}
