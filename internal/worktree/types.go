// Package worktree implements the Git-worktree lifecycle manager: create
// at commit, cherry-pick back, cleanup, conflict surface.
package worktree

import "time"

// Worktree is a single isolated working copy tied to a task.
type Worktree struct {
	TaskID       string
	Path         string
	StartCommit  string
	Branch       string
	CreatedAt    time.Time
}

// IsolationCheck is the result of CanIsolate.
type IsolationCheck struct {
	CanUse bool
	Reason string
}

// CreateResult is the result of Create.
type CreateResult struct {
	Success bool
	Path    string
}

// MergeResult is the result of Merge. Exactly one of MergedCommit or
// ConflictingFiles is populated on success/conflict respectively.
type MergeResult struct {
	Success          bool
	MergedCommit     string
	ConflictingFiles []string
}

// CleanupResult is the result of Cleanup.
type CleanupResult struct {
	Removed        []string
	AlreadyRemoved bool
}

// ListResult is the result of List.
type ListResult struct {
	Worktrees []Worktree
	Count     int
}
