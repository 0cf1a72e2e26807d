package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// initTestRepo creates a throwaway git repository with one commit and
// returns its path.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")
	return dir
}

func TestSanitizeTaskID(t *testing.T) {
	cases := map[string]string{
		"proj-abc.2":      "proj-abc.2",
		"weird id/slash":  "weird_id_slash",
		"has spaces!!":    "has_spaces__",
	}
	for in, want := range cases {
		if got := sanitizeTaskID(in); got != want {
			t.Errorf("sanitizeTaskID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanIsolate_CleanRepo(t *testing.T) {
	dir := initTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	check, err := m.CanIsolate(ctx, dir)
	if err != nil {
		t.Fatalf("CanIsolate() error = %v", err)
	}
	if !check.CanUse {
		t.Errorf("expected a clean repo to be isolatable, reason=%q", check.Reason)
	}
}

func TestCanIsolate_DirtyRepoRejected(t *testing.T) {
	dir := initTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager()
	check, err := m.CanIsolate(context.Background(), dir)
	if err != nil {
		t.Fatalf("CanIsolate() error = %v", err)
	}
	if check.CanUse {
		t.Error("expected a dirty repo to be rejected")
	}
}

func TestCreateAndList(t *testing.T) {
	dir := initTestRepo(t)
	m := NewManager()
	ctx := context.Background()

	start, err := m.StartCommit(ctx, dir)
	if err != nil {
		t.Fatalf("StartCommit() error = %v", err)
	}

	result, err := m.Create(ctx, dir, "task-1", start)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected Create to succeed")
	}
	if _, statErr := os.Stat(result.Path); statErr != nil {
		t.Fatalf("expected worktree path to exist: %v", statErr)
	}

	list, err := m.List(ctx, dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Count != 1 || list.Worktrees[0].TaskID != "task-1" {
		t.Errorf("expected 1 worktree for task-1, got %+v", list.Worktrees)
	}
}

func TestCreate_RejectsDuplicateTask(t *testing.T) {
	dir := initTestRepo(t)
	m := NewManager()
	ctx := context.Background()
	start, _ := m.StartCommit(ctx, dir)

	if _, err := m.Create(ctx, dir, "task-1", start); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := m.Create(ctx, dir, "task-1", start); err == nil {
		t.Error("expected second Create for the same task to fail")
	}
}

func TestMergeAndCleanup_NoConflict(t *testing.T) {
	dir := initTestRepo(t)
	m := NewManager()
	ctx := context.Background()
	start, _ := m.StartCommit(ctx, dir)

	result, err := m.Create(ctx, dir, "task-2", start)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// make a commit inside the worktree
	commitInWorktree(t, result.Path, "feature.txt", "new feature\n", "add feature")

	merge, err := m.Merge(ctx, dir, "task-2", start)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !merge.Success {
		t.Fatalf("expected merge to succeed, conflicts=%v", merge.ConflictingFiles)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "feature.txt")); statErr != nil {
		t.Error("expected feature.txt to be present in the main worktree after merge")
	}

	cleanup, err := m.Cleanup(ctx, dir, "task-2", false)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(cleanup.Removed) != 1 {
		t.Errorf("expected 1 removed worktree, got %+v", cleanup.Removed)
	}

	// idempotent
	cleanup2, err := m.Cleanup(ctx, dir, "task-2", false)
	if err != nil {
		t.Fatalf("second Cleanup() error = %v", err)
	}
	if !cleanup2.AlreadyRemoved {
		t.Error("expected second Cleanup call to report AlreadyRemoved")
	}
}

func TestMerge_ConflictAbortsAndReportsFiles(t *testing.T) {
	dir := initTestRepo(t)
	m := NewManager()
	ctx := context.Background()
	start, _ := m.StartCommit(ctx, dir)

	result, err := m.Create(ctx, dir, "task-3", start)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	commitInWorktree(t, result.Path, "README.md", "worktree change\n", "change readme in worktree")
	commitOnMain(t, dir, "README.md", "main change\n", "change readme on main")

	merge, err := m.Merge(ctx, dir, "task-3", start)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if merge.Success {
		t.Fatal("expected a merge conflict")
	}
	if len(merge.ConflictingFiles) == 0 {
		t.Error("expected conflicting files to be reported")
	}
}

func commitInWorktree(t *testing.T, path, file, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(path, file), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{{"add", "."}, {"commit", "-m", message}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = path
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
}

func commitOnMain(t *testing.T, path, file, content, message string) {
	t.Helper()
	commitInWorktree(t, path, file, content, message)
}
