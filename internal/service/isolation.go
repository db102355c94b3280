// Package service contains the orchestration services composing the factory
// core: repository isolation, task graph, coordination, quality gate,
// continuity, model selection, and the project facade.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/commitmeta"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
)

// Worktree is one provisioned branch + working copy pair.
type Worktree struct {
	UnitID string `json:"unit_id"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// CommitRecord pairs a commit hash with its parsed metadata.
type CommitRecord struct {
	Hash    string            `json:"hash"`
	Title   string            `json:"title"`
	Record  commitmeta.Record `json:"record"`
	HasMeta bool              `json:"has_meta"`
}

// IsolationService carves isolated, disposable working copies out of the
// base repository, one branch + worktree pair per unit of work. It is the
// only component that talks to version control, and it never pushes.
type IsolationService struct {
	vcs       vcs.Client
	queue     messagequeue.Queue
	repoPath  string
	namespace string
}

// NewIsolationService creates an IsolationService rooted at repoPath.
// Branches are allocated under the given namespace.
func NewIsolationService(client vcs.Client, queue messagequeue.Queue, repoPath, namespace string) *IsolationService {
	return &IsolationService{
		vcs:       client,
		queue:     queue,
		repoPath:  repoPath,
		namespace: namespace,
	}
}

// BranchName returns the namespaced branch for a unit of work.
func (s *IsolationService) BranchName(unitID string) string {
	return s.namespace + "/task/" + unitID
}

// WorktreePath returns the working-copy directory for a unit: a sibling of
// the base repository so worktrees never nest inside it.
func (s *IsolationService) WorktreePath(unitID string) string {
	abs, err := filepath.Abs(s.repoPath)
	if err != nil {
		abs = s.repoPath
	}
	return filepath.Join(filepath.Dir(abs), filepath.Base(abs)+"-"+unitID)
}

// CreateWorktree allocates the unit's branch from baseBranch, attaches a
// working copy, and installs local enforcement hooks. Branch and worktree
// are created as a pair: any failure after the branch exists rolls the
// branch back before the error surfaces, so no orphaned branches remain.
func (s *IsolationService) CreateWorktree(ctx context.Context, unitID, baseBranch string) (*Worktree, error) {
	branch := s.BranchName(unitID)
	path := s.WorktreePath(unitID)

	exists, err := s.vcs.BranchExists(ctx, s.repoPath, branch)
	if err != nil {
		return nil, fmt.Errorf("check branch %s: %w", branch, err)
	}
	if exists {
		return nil, fmt.Errorf("branch %s: %w", branch, domain.ErrExists)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("worktree %s: %w", path, domain.ErrExists)
	}

	if err := s.vcs.CreateBranch(ctx, s.repoPath, branch, baseBranch); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}

	if err := s.vcs.AddWorktree(ctx, s.repoPath, path, branch); err != nil {
		s.rollbackBranch(ctx, branch)
		return nil, fmt.Errorf("add worktree %s: %w", path, err)
	}

	if err := s.installHooks(path); err != nil {
		s.rollback(ctx, branch, path)
		return nil, fmt.Errorf("install hooks: %w", err)
	}

	slog.Info("worktree created", "unit_id", unitID, "branch", branch, "path", path)
	return &Worktree{UnitID: unitID, Branch: branch, Path: path}, nil
}

// RemoveWorktree destroys the unit's working copy and branch. Removal is
// idempotent: a second call on an already-removed unit is a no-op. A failing
// version-control removal falls back to a forced filesystem delete so
// cleanup is never blocked by tool-level errors.
func (s *IsolationService) RemoveWorktree(ctx context.Context, unitID string) error {
	branch := s.BranchName(unitID)
	path := s.WorktreePath(unitID)

	if _, err := os.Stat(path); err == nil {
		if err := s.vcs.RemoveWorktree(ctx, s.repoPath, path); err != nil {
			slog.Warn("worktree removal failed, forcing filesystem delete",
				"path", path, "error", err)
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return fmt.Errorf("force-delete worktree %s: %w", path, rmErr)
			}
		}
	}

	exists, err := s.vcs.BranchExists(ctx, s.repoPath, branch)
	if err != nil {
		return fmt.Errorf("check branch %s: %w", branch, err)
	}
	if exists {
		if err := s.vcs.DeleteBranch(ctx, s.repoPath, branch); err != nil {
			return fmt.Errorf("delete branch %s: %w", branch, err)
		}
	}

	slog.Info("worktree removed", "unit_id", unitID, "branch", branch)
	return nil
}

// CommitWithMetadata stages all changes in the working copy and commits with
// the structured metadata embedded in the message. A clean tree returns
// ("", nil): nothing to commit is a no-op success.
func (s *IsolationService) CommitWithMetadata(ctx context.Context, worktreePath, title string, rec commitmeta.Record) (string, error) {
	message, err := commitmeta.Format(title, rec)
	if err != nil {
		return "", err
	}

	hash, err := s.vcs.Commit(ctx, worktreePath, message)
	if err != nil {
		return "", fmt.Errorf("commit in %s: %w", worktreePath, err)
	}
	if hash == "" {
		slog.Debug("nothing to commit", "worktree", worktreePath)
		return "", nil
	}

	s.publishCommit(ctx, worktreePath, hash, title)
	return hash, nil
}

// ExtractCommitMetadata recovers the metadata record of rev. Commits without
// an embedded block yield a placeholder record and found=false, not an error.
func (s *IsolationService) ExtractCommitMetadata(ctx context.Context, worktreePath, rev string) (*CommitRecord, error) {
	message, err := s.vcs.Show(ctx, worktreePath, rev)
	if err != nil {
		return nil, fmt.Errorf("show %s: %w", rev, err)
	}
	title, rec, found, err := commitmeta.Parse(message)
	if err != nil {
		return nil, err
	}
	return &CommitRecord{Hash: rev, Title: title, Record: rec, HasMeta: found}, nil
}

// History returns up to limit commits from HEAD, newest first, with metadata
// parsed where present.
func (s *IsolationService) History(ctx context.Context, worktreePath string, limit int) ([]CommitRecord, error) {
	commits, err := s.vcs.History(ctx, worktreePath, limit)
	if err != nil {
		return nil, fmt.Errorf("history in %s: %w", worktreePath, err)
	}

	records := make([]CommitRecord, 0, len(commits))
	for _, c := range commits {
		title, rec, found, err := commitmeta.Parse(c.Message)
		if err != nil {
			return nil, err
		}
		records = append(records, CommitRecord{Hash: c.Hash, Title: title, Record: rec, HasMeta: found})
	}
	return records, nil
}

// Status returns the dirty-state summary of the working copy.
func (s *IsolationService) Status(ctx context.Context, worktreePath string) (*vcs.Status, error) {
	return s.vcs.Status(ctx, worktreePath)
}

// Merge merges the unit's branch into the branch checked out at the base
// repository.
func (s *IsolationService) Merge(ctx context.Context, unitID, message string) error {
	branch := s.BranchName(unitID)
	if err := s.vcs.Merge(ctx, s.repoPath, branch, message); err != nil {
		return fmt.Errorf("merge %s: %w", branch, err)
	}
	return nil
}

func (s *IsolationService) rollbackBranch(ctx context.Context, branch string) {
	if err := s.vcs.DeleteBranch(ctx, s.repoPath, branch); err != nil {
		slog.Error("branch rollback failed", "branch", branch, "error", err)
	}
}

func (s *IsolationService) rollback(ctx context.Context, branch, path string) {
	if err := s.vcs.RemoveWorktree(ctx, s.repoPath, path); err != nil {
		_ = os.RemoveAll(path)
	}
	s.rollbackBranch(ctx, branch)
}

const (
	preCommitHook = "#!/bin/sh\n# Installed by agentfoundry. The gate enforcement point consults the\n# nag status ledger; unknown entries never pass.\nexec agentfoundry gate check --stage pre-commit\n"
	prePushHook   = "#!/bin/sh\n# Installed by agentfoundry. Pushes never originate from unit worktrees.\necho \"push blocked: unit worktrees are merged locally, never pushed\" >&2\nexit 1\n"
)

// installHooks writes the local enforcement hooks into the working copy.
// This layer installs push prevention but does not enforce it itself.
func (s *IsolationService) installHooks(worktreePath string) error {
	dir := filepath.Join(worktreePath, ".foundry", "hooks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	hooks := map[string]string{
		"pre-commit": preCommitHook,
		"pre-push":   prePushHook,
	}
	for name, body := range hooks {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil { //nolint:gosec // hooks must be executable
			return err
		}
	}
	return nil
}

func (s *IsolationService) publishCommit(ctx context.Context, worktreePath, hash, title string) {
	if s.queue == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"worktree": worktreePath,
		"hash":     hash,
		"title":    title,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectCommitCreated, payload); err != nil {
		slog.Error("failed to publish commit event", "hash", hash, "error", err)
	}
}
