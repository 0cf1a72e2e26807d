package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"swarmcore/internal/logging"
)

// defaultGitTimeout bounds any single git subprocess invocation, wrapping
// exec.Command in a context deadline rather than trusting the subprocess
// to exit.
const defaultGitTimeout = 2 * time.Minute

// gitRunner runs git as a bounded subprocess. It never imports a Go git
// library.
type gitRunner struct {
	timeout time.Duration
}

func newGitRunner() *gitRunner {
	return &gitRunner{timeout: defaultGitTimeout}
}

// run executes `git <args...>` with dir as the working directory,
// returning trimmed stdout. Non-zero exit is reported as an error
// including stderr for diagnosis.
func (g *gitRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	logging.WorktreeDebug("git %s (dir=%s)", strings.Join(args, " "), dir)

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())

	if runCtx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("git %s: timed out after %s", strings.Join(args, " "), g.timeout)
	}
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
