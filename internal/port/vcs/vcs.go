// Package vcs defines the version-control port (interface).
//
// The factory consumes only primitive operations: branch create/delete,
// worktree add/remove, stage+commit, log/show, and dirty-state checks.
// No push is ever issued through this port.
package vcs

import "context"

// Commit is one commit as returned by History.
type Commit struct {
	Hash    string
	Message string
}

// Status is the dirty-state summary of a working copy.
type Status struct {
	Branch    string
	Dirty     bool
	Modified  []string
	Untracked []string
}

// DiffStat summarizes the size of uncommitted changes in a working copy.
type DiffStat struct {
	Files     int
	Additions int
	Deletions int
}

// Client is the port interface for version-control primitives.
type Client interface {
	// CreateBranch creates branch from base in the repository at repoPath.
	CreateBranch(ctx context.Context, repoPath, branch, base string) error

	// DeleteBranch force-deletes branch in the repository at repoPath.
	DeleteBranch(ctx context.Context, repoPath, branch string) error

	// BranchExists reports whether branch exists in the repository at repoPath.
	BranchExists(ctx context.Context, repoPath, branch string) (bool, error)

	// AddWorktree attaches a working copy for branch at worktreePath.
	AddWorktree(ctx context.Context, repoPath, worktreePath, branch string) error

	// RemoveWorktree detaches the working copy at worktreePath.
	RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error

	// Commit stages all changes in the working copy and commits with message.
	// A clean tree returns ("", nil): nothing to commit is not an error.
	Commit(ctx context.Context, worktreePath, message string) (hash string, err error)

	// Show returns the full commit message of rev.
	Show(ctx context.Context, worktreePath, rev string) (string, error)

	// History returns up to limit commits from HEAD, newest first.
	History(ctx context.Context, worktreePath string, limit int) ([]Commit, error)

	// Status returns the dirty-state summary of the working copy.
	Status(ctx context.Context, worktreePath string) (*Status, error)

	// Diff summarizes the size of uncommitted changes in the working copy.
	Diff(ctx context.Context, worktreePath string) (*DiffStat, error)

	// Merge merges branch into the currently checked-out branch at repoPath.
	Merge(ctx context.Context, repoPath, branch, message string) error
}
