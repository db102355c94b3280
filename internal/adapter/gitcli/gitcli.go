// Package gitcli implements the vcs.Client port using the local git CLI.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Strob0t/AgentFoundry/internal/git"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
)

// recordSeparator delimits commits in `git log` output; unit separator
// delimits fields within one record. Both are ASCII control characters that
// cannot appear in commit hashes.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// Client runs git commands through a shared concurrency pool.
type Client struct {
	pool *git.Pool
}

// NewClient creates a Client that limits concurrent git operations via pool.
func NewClient(pool *git.Pool) *Client {
	return &Client{pool: pool}
}

// CreateBranch creates branch from base.
func (c *Client) CreateBranch(ctx context.Context, repoPath, branch, base string) error {
	return c.pool.Run(ctx, func() error {
		if _, err := run(ctx, repoPath, "branch", branch, base); err != nil {
			return fmt.Errorf("gitcli: create branch %s: %w", branch, err)
		}
		return nil
	})
}

// DeleteBranch force-deletes branch.
func (c *Client) DeleteBranch(ctx context.Context, repoPath, branch string) error {
	return c.pool.Run(ctx, func() error {
		if _, err := run(ctx, repoPath, "branch", "-D", branch); err != nil {
			return fmt.Errorf("gitcli: delete branch %s: %w", branch, err)
		}
		return nil
	})
}

// BranchExists reports whether branch exists.
func (c *Client) BranchExists(ctx context.Context, repoPath, branch string) (bool, error) {
	var exists bool
	err := c.pool.Run(ctx, func() error {
		_, err := run(ctx, repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
		exists = err == nil
		return nil
	})
	return exists, err
}

// AddWorktree attaches a working copy for branch at worktreePath.
func (c *Client) AddWorktree(ctx context.Context, repoPath, worktreePath, branch string) error {
	return c.pool.Run(ctx, func() error {
		if _, err := run(ctx, repoPath, "worktree", "add", worktreePath, branch); err != nil {
			return fmt.Errorf("gitcli: add worktree %s: %w", worktreePath, err)
		}
		return nil
	})
}

// RemoveWorktree detaches the working copy at worktreePath.
func (c *Client) RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error {
	return c.pool.Run(ctx, func() error {
		if _, err := run(ctx, repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
			return fmt.Errorf("gitcli: remove worktree %s: %w", worktreePath, err)
		}
		return nil
	})
}

// Commit stages all changes and commits with message. A clean tree returns
// ("", nil): nothing to commit is a no-op success, not an error.
func (c *Client) Commit(ctx context.Context, worktreePath, message string) (string, error) {
	var hash string
	err := c.pool.Run(ctx, func() error {
		if _, err := run(ctx, worktreePath, "add", "-A"); err != nil {
			return fmt.Errorf("gitcli: stage: %w", err)
		}

		porcelain, err := run(ctx, worktreePath, "status", "--porcelain")
		if err != nil {
			return fmt.Errorf("gitcli: status: %w", err)
		}
		if strings.TrimSpace(porcelain) == "" {
			return nil
		}

		if _, err := run(ctx, worktreePath, "commit", "-m", message); err != nil {
			return fmt.Errorf("gitcli: commit: %w", err)
		}
		h, err := run(ctx, worktreePath, "rev-parse", "HEAD")
		if err != nil {
			return fmt.Errorf("gitcli: rev-parse: %w", err)
		}
		hash = strings.TrimSpace(h)
		return nil
	})
	return hash, err
}

// Show returns the full commit message of rev.
func (c *Client) Show(ctx context.Context, worktreePath, rev string) (string, error) {
	var msg string
	err := c.pool.Run(ctx, func() error {
		out, err := run(ctx, worktreePath, "log", "-1", "--format=%B", rev)
		if err != nil {
			return fmt.Errorf("gitcli: show %s: %w", rev, err)
		}
		msg = out
		return nil
	})
	return msg, err
}

// History returns up to limit commits from HEAD, newest first.
func (c *Client) History(ctx context.Context, worktreePath string, limit int) ([]vcs.Commit, error) {
	if limit < 1 {
		limit = 1
	}
	var commits []vcs.Commit
	err := c.pool.Run(ctx, func() error {
		format := "%H" + fieldSep + "%B" + recordSep
		out, err := run(ctx, worktreePath, "log", fmt.Sprintf("-%d", limit), "--format="+format)
		if err != nil {
			return fmt.Errorf("gitcli: history: %w", err)
		}
		commits = parseLog(out)
		return nil
	})
	return commits, err
}

// parseLog splits record-separated `git log` output into commits.
func parseLog(out string) []vcs.Commit {
	var commits []vcs.Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		hash, message, ok := strings.Cut(record, fieldSep)
		if !ok {
			continue
		}
		commits = append(commits, vcs.Commit{
			Hash:    strings.TrimSpace(hash),
			Message: strings.TrimRight(message, "\n"),
		})
	}
	return commits
}

// Status returns the dirty-state summary of the working copy.
func (c *Client) Status(ctx context.Context, worktreePath string) (*vcs.Status, error) {
	var status *vcs.Status
	err := c.pool.Run(ctx, func() error {
		status = &vcs.Status{}

		branch, err := run(ctx, worktreePath, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return fmt.Errorf("gitcli: get branch: %w", err)
		}
		status.Branch = strings.TrimSpace(branch)

		porcelain, err := run(ctx, worktreePath, "status", "--porcelain")
		if err != nil {
			return fmt.Errorf("gitcli: porcelain status: %w", err)
		}
		parsePorcelain(porcelain, status)
		return nil
	})
	return status, err
}

// parsePorcelain fills Modified/Untracked/Dirty from `status --porcelain` output.
func parsePorcelain(out string, status *vcs.Status) {
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		file := strings.TrimSpace(line[3:])
		if strings.HasPrefix(line, "??") {
			status.Untracked = append(status.Untracked, file)
		} else {
			status.Modified = append(status.Modified, file)
		}
	}
	status.Dirty = len(status.Modified) > 0 || len(status.Untracked) > 0
}

// Diff summarizes the size of uncommitted changes via `diff --numstat`.
// Binary files count toward Files but not line totals.
func (c *Client) Diff(ctx context.Context, worktreePath string) (*vcs.DiffStat, error) {
	var stat *vcs.DiffStat
	err := c.pool.Run(ctx, func() error {
		out, err := run(ctx, worktreePath, "diff", "HEAD", "--numstat")
		if err != nil {
			return fmt.Errorf("gitcli: diff: %w", err)
		}
		stat = parseNumstat(out)
		return nil
	})
	return stat, err
}

// parseNumstat sums `diff --numstat` output lines. Binary files report "-"
// for both counts and contribute zero lines.
func parseNumstat(out string) *vcs.DiffStat {
	stat := &vcs.DiffStat{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		stat.Files++
		if n, err := strconv.Atoi(fields[0]); err == nil {
			stat.Additions += n
		}
		if n, err := strconv.Atoi(fields[1]); err == nil {
			stat.Deletions += n
		}
	}
	return stat
}

// Merge merges branch into the currently checked-out branch at repoPath.
func (c *Client) Merge(ctx context.Context, repoPath, branch, message string) error {
	return c.pool.Run(ctx, func() error {
		if _, err := run(ctx, repoPath, "merge", "--no-ff", "-m", message, branch); err != nil {
			return fmt.Errorf("gitcli: merge %s: %w", branch, err)
		}
		return nil
	})
}

// run executes a git command in the given directory.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
