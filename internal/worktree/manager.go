package worktree

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"swarmcore/internal/logging"
	"swarmcore/internal/swarmerr"
)

// conventionDir is the fixed location of isolated worktrees inside a
// project, relative to the project root.
const conventionDir = ".swarm/worktrees"

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// sanitizeTaskID replaces every character outside [A-Za-z0-9.-] with an
// underscore so a task id is always safe to use as a directory name.
func sanitizeTaskID(taskID string) string {
	return sanitizeRe.ReplaceAllString(taskID, "_")
}

// Manager is the authoritative in-process Worktree Manager. It is
// authoritative over the (project_path, task_id) -> Worktree mapping it
// creates; git itself remains authoritative over commits and working tree
// state, following the same "in-memory index over an external source of
// truth" shape as internal/bus's inbox index over message state.
type Manager struct {
	mu        sync.Mutex
	git       *gitRunner
	worktrees map[string]*Worktree // key: projectPath + "\x00" + taskID
	watchers  map[string]*dirWatcher
}

// NewManager constructs a Worktree Manager.
func NewManager() *Manager {
	return &Manager{
		git:       newGitRunner(),
		worktrees: make(map[string]*Worktree),
		watchers:  make(map[string]*dirWatcher),
	}
}

func worktreeKey(projectPath, taskID string) string {
	return projectPath + "\x00" + taskID
}

// CanIsolate reports whether projectPath is a clean git repository.
func (m *Manager) CanIsolate(ctx context.Context, projectPath string) (IsolationCheck, error) {
	if _, err := m.git.run(ctx, projectPath, "rev-parse", "--is-inside-work-tree"); err != nil {
		return IsolationCheck{CanUse: false, Reason: "not a git repository"}, nil
	}
	status, err := m.git.run(ctx, projectPath, "status", "--porcelain")
	if err != nil {
		return IsolationCheck{CanUse: false, Reason: "unable to read git status"}, nil
	}
	if status != "" {
		return IsolationCheck{CanUse: false, Reason: "repository has uncommitted changes"}, nil
	}
	return IsolationCheck{CanUse: true}, nil
}

// StartCommit returns the current HEAD commit of projectPath, to be used
// as the basis for a later Create.
func (m *Manager) StartCommit(ctx context.Context, projectPath string) (string, error) {
	return m.git.run(ctx, projectPath, "rev-parse", "HEAD")
}

// Create materializes an isolated worktree for taskID at startCommit,
// detached HEAD, under .swarm/worktrees/{sanitized_task_id}.
func (m *Manager) Create(ctx context.Context, projectPath, taskID, startCommit string) (CreateResult, error) {
	sanitized := sanitizeTaskID(taskID)
	wtPath := filepath.Join(projectPath, conventionDir, sanitized)

	if _, err := os.Stat(wtPath); err == nil {
		return CreateResult{}, swarmerr.New(swarmerr.Conflict, "worktree.Create", taskID,
			"a worktree already exists for this task").WithRemedy("call Cleanup before recreating it")
	}

	if _, err := m.git.run(ctx, projectPath, "worktree", "add", "--detach", wtPath, startCommit); err != nil {
		return CreateResult{}, swarmerr.Wrap(swarmerr.SubsystemUnavailable, "worktree.Create", taskID, "git worktree add failed", err)
	}

	m.mu.Lock()
	m.worktrees[worktreeKey(projectPath, taskID)] = &Worktree{
		TaskID: taskID, Path: wtPath, StartCommit: startCommit, CreatedAt: time.Now(),
	}
	m.ensureWatcherLocked(projectPath)
	m.mu.Unlock()

	logging.Worktree("created worktree for task=%s at %s (start=%s)", taskID, wtPath, startCommit)
	return CreateResult{Success: true, Path: wtPath}, nil
}

func (m *Manager) ensureWatcherLocked(projectPath string) {
	if _, ok := m.watchers[projectPath]; ok {
		return
	}
	dw, err := newDirWatcher(filepath.Join(projectPath, conventionDir))
	if err != nil {
		logging.WorktreeWarn("could not start worktree watcher for %s: %v", projectPath, err)
		return
	}
	m.watchers[projectPath] = dw
}

// Merge cherry-picks the worktree's commits since startCommit, in
// chronological order, onto projectPath's current branch. On the first
// conflicting commit, the cherry-pick is aborted and the conflicting file
// set is returned; the main branch is left at the last successful pick.
func (m *Manager) Merge(ctx context.Context, projectPath, taskID, startCommit string) (MergeResult, error) {
	m.mu.Lock()
	wt, ok := m.worktrees[worktreeKey(projectPath, taskID)]
	m.mu.Unlock()
	if !ok {
		return MergeResult{}, swarmerr.New(swarmerr.NotFound, "worktree.Merge", taskID,
			"no worktree registered for this task").WithRemedy("call Create first")
	}
	if _, err := os.Stat(wt.Path); err != nil {
		return MergeResult{}, swarmerr.New(swarmerr.NotFound, "worktree.Merge", taskID,
			"worktree directory is missing on disk").WithRemedy("the worktree may have been removed externally; call Cleanup and recreate")
	}

	logOut, err := m.git.run(ctx, wt.Path, "log", "--reverse", "--format=%H", startCommit+"..HEAD")
	if err != nil {
		return MergeResult{}, swarmerr.Wrap(swarmerr.SubsystemUnavailable, "worktree.Merge", taskID, "git log failed", err)
	}
	if logOut == "" {
		head, _ := m.git.run(ctx, projectPath, "rev-parse", "HEAD")
		return MergeResult{Success: true, MergedCommit: head}, nil
	}
	commits := strings.Split(logOut, "\n")

	var lastGood string
	for _, commit := range commits {
		if _, err := m.git.run(ctx, projectPath, "cherry-pick", commit); err != nil {
			conflicts, _ := m.git.run(ctx, projectPath, "diff", "--name-only", "--diff-filter=U")
			_, _ = m.git.run(ctx, projectPath, "cherry-pick", "--abort")
			logging.WorktreeWarn("merge conflict for task=%s at commit %s", taskID, commit)
			return MergeResult{
				Success:          false,
				ConflictingFiles: splitNonEmpty(conflicts),
			}, nil
		}
		lastGood = commit
	}

	head, _ := m.git.run(ctx, projectPath, "rev-parse", "HEAD")
	logging.Worktree("merged worktree for task=%s, %d commit(s) picked, last=%s head=%s", taskID, len(commits), lastGood, head)
	return MergeResult{Success: true, MergedCommit: head}, nil
}

// Cleanup removes the worktree for taskID (or all worktrees under the
// convention directory if cleanupAll). Idempotent: a missing worktree is
// success with AlreadyRemoved=true.
func (m *Manager) Cleanup(ctx context.Context, projectPath, taskID string, cleanupAll bool) (CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cleanupAll {
		var removed []string
		anyMissing := false
		for key, wt := range m.worktrees {
			if !strings.HasPrefix(key, projectPath+"\x00") {
				continue
			}
			if err := m.removeWorktreeLocked(ctx, projectPath, wt); err != nil {
				anyMissing = true
				continue
			}
			removed = append(removed, wt.TaskID)
			delete(m.worktrees, key)
		}
		return CleanupResult{Removed: removed, AlreadyRemoved: anyMissing && len(removed) == 0}, nil
	}

	key := worktreeKey(projectPath, taskID)
	wt, ok := m.worktrees[key]
	if !ok {
		return CleanupResult{AlreadyRemoved: true}, nil
	}
	if err := m.removeWorktreeLocked(ctx, projectPath, wt); err != nil {
		delete(m.worktrees, key)
		return CleanupResult{AlreadyRemoved: true}, nil
	}
	delete(m.worktrees, key)
	return CleanupResult{Removed: []string{taskID}}, nil
}

func (m *Manager) removeWorktreeLocked(ctx context.Context, projectPath string, wt *Worktree) error {
	if _, err := os.Stat(wt.Path); err != nil {
		return err
	}
	if _, err := m.git.run(ctx, projectPath, "worktree", "remove", "--force", wt.Path); err != nil {
		logging.WorktreeWarn("worktree remove failed for %s, falling back to rm: %v", wt.Path, err)
		if rmErr := os.RemoveAll(wt.Path); rmErr != nil {
			return rmErr
		}
		_, _ = m.git.run(ctx, projectPath, "worktree", "prune")
	}
	logging.Worktree("removed worktree for task=%s", wt.TaskID)
	return nil
}

// List returns the worktrees known for projectPath, reconciled against
// externally-observed removals via the convention-directory watcher.
func (m *Manager) List(ctx context.Context, projectPath string) (ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dw := m.watchers[projectPath]

	var out []Worktree
	for key, wt := range m.worktrees {
		if !strings.HasPrefix(key, projectPath+"\x00") {
			continue
		}
		if dw != nil && dw.wasExternallyRemoved(wt.Path) {
			delete(m.worktrees, key)
			continue
		}
		out = append(out, *wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return ListResult{Worktrees: out, Count: len(out)}, nil
}

// ResetToStartCommit hard-resets projectPath's current branch back to
// startCommit, for orchestrator-level abort.
func (m *Manager) ResetToStartCommit(ctx context.Context, projectPath, startCommit string) error {
	if _, err := m.git.run(ctx, projectPath, "reset", "--hard", startCommit); err != nil {
		return swarmerr.Wrap(swarmerr.SubsystemUnavailable, "worktree.ResetToStartCommit", projectPath, "git reset --hard failed", err)
	}
	logging.Worktree("reset %s to start commit %s", projectPath, startCommit)
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
