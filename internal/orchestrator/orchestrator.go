package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmcore/internal/cell"
	"swarmcore/internal/logging"
	"swarmcore/internal/policy"
	"swarmcore/internal/reservation"
	"swarmcore/internal/swarmerr"
	"swarmcore/internal/worktree"
)

// Orchestrator drives the subtask DAG for one or more jobs, acquiring
// reservations and (optionally) worktrees per subtask, invoking workers,
// and running each completion through the review gate: a mutex-guarded
// struct holding its collaborators plus per-job state.
type Orchestrator struct {
	mu sync.Mutex

	cells        cell.Adapter
	reservations *reservation.Registry
	worktrees    *worktree.Manager
	// mandates is not read by the DAG loop: mandate voting is a separate,
	// agent-submitted-content workflow (ideas/tips/feature requests),
	// orthogonal to a subtask's pass/fail outcome. It is held here only so
	// a caller wiring one Orchestrator also gets one consistent
	// MandateEngine instance to expose through its own mandate-submission
	// surface, instead of constructing a second one.
	mandates *policy.MandateEngine
	patterns *policy.PatternEngine
	invoker  WorkerInvoker
	reviewer Reviewer

	jobs   map[string]*Job
	jobTTL time.Duration
}

// New constructs an Orchestrator. reviewer may be nil if every WorkerResult
// is expected to bundle its own Review.
func New(cells cell.Adapter, reservations *reservation.Registry, worktrees *worktree.Manager,
	mandates *policy.MandateEngine, patterns *policy.PatternEngine, invoker WorkerInvoker, reviewer Reviewer) *Orchestrator {
	return &Orchestrator{
		cells: cells, reservations: reservations, worktrees: worktrees,
		mandates: mandates, patterns: patterns, invoker: invoker, reviewer: reviewer,
		jobs: make(map[string]*Job), jobTTL: time.Hour,
	}
}

// Start materializes opts.Plan as cells and launches the DAG walk in a
// background goroutine, returning an opaque job id immediately.
func (o *Orchestrator) Start(ctx context.Context, opts RunOptions) (string, error) {
	subtaskInputs := make([]cell.SubtaskInput, len(opts.Plan.Subtasks))
	for i, st := range opts.Plan.Subtasks {
		subtaskInputs[i] = cell.SubtaskInput{
			Title: st.Title, Description: st.Description, Files: st.Files,
			DependsOn: st.Dependencies,
		}
	}
	result, err := o.cells.CreateEpic(ctx, cell.Epic{
		Title: opts.Plan.Epic.Title, Description: opts.Plan.Epic.Description,
	}, subtaskInputs)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	job := &Job{
		ID: jobID, EpicID: result.EpicID, Status: JobRunning,
		Total: len(result.SubtaskIDs), StartedAt: time.Now(),
	}
	o.mu.Lock()
	o.jobs[jobID] = job
	o.mu.Unlock()

	logging.Orchestrator("started job=%s epic=%s subtasks=%d", jobID, result.EpicID, job.Total)

	go o.run(ctx, job, opts)
	return jobID, nil
}

// JobStatusOf returns a snapshot of job state.
func (o *Orchestrator) JobStatusOf(jobID string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// SweepExpiredJobs removes terminal jobs older than the job TTL, for
// periodic invocation alongside the reservation sweep.
func (o *Orchestrator) SweepExpiredJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	swept := 0
	now := time.Now()
	for id, j := range o.jobs {
		if j.Status == JobRunning {
			continue
		}
		if now.Sub(j.FinishedAt) > o.jobTTL {
			delete(o.jobs, id)
			swept++
		}
	}
	return swept
}

// run is the DAG-walking main loop for a single job.
func (o *Orchestrator) run(ctx context.Context, job *Job, opts RunOptions) {
	pool := newWorkerPool(4)
	var resultsMu sync.Mutex

	maxIterations := opts.Stop.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1000
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		o.mu.Lock()
		job.CurrentIteration = iteration
		o.mu.Unlock()

		ready, err := o.cells.Query(ctx, cell.Filter{ParentID: &job.EpicID, Status: statusPtr(cell.StatusOpen), Ready: true})
		if err != nil {
			logging.OrchestratorError("job %s: query ready subtasks failed: %v", job.ID, err)
			o.finish(job, JobFailed)
			return
		}
		if len(ready) == 0 {
			if status, done := o.tryResolveEpic(ctx, job); done {
				o.finish(job, status)
				return
			}
			// Nothing ready but subtasks aren't all terminal: either
			// in-flight work remains (pool.Wait will release us) or the
			// DAG is stuck.
			pool.Wait()
			if status, done := o.tryResolveEpic(ctx, job); done {
				o.finish(job, status)
				return
			}
			logging.OrchestratorWarn("job %s: no ready subtasks and epic unresolved, stopping", job.ID)
			o.finish(job, JobFailed)
			return
		}

		sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

		for _, c := range ready {
			c := c
			if err := ctx.Err(); err != nil {
				o.finish(job, JobCancelled)
				return
			}
			err := pool.Go(ctx, func() {
				result := o.runSubtask(ctx, job, opts, c)
				resultsMu.Lock()
				job.Results = append(job.Results, result)
				job.Completed++
				resultsMu.Unlock()
				if result.Status == "failed" && opts.Stop.StopOnFailure {
					logging.OrchestratorWarn("job %s: subtask %s failed, stop_on_failure set", job.ID, c.ID)
				}
			})
			if err != nil {
				o.finish(job, JobCancelled)
				return
			}
		}

		pool.Wait()
		pool.logMetrics(job.ID)

		if opts.Stop.StopOnFailure && anyFailed(job.Results) {
			o.finish(job, JobFailed)
			return
		}
	}

	logging.OrchestratorWarn("job %s: max_iterations reached", job.ID)
	o.finish(job, JobFailed)
}

func (o *Orchestrator) finish(job *Job, status JobStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job.Status = status
	job.FinishedAt = time.Now()
	logging.Orchestrator("job %s finished: status=%s completed=%d/%d", job.ID, status, job.Completed, job.Total)
}

// tryResolveEpic checks whether every cell under job.EpicID has reached a
// terminal status (closed or blocked). If not, it reports not-done so the
// caller keeps waiting. If so, it closes the epic when every child closed
// cleanly (JobCompleted), or reports JobFailed without closing the epic
// when any child is blocked — an epic invariant in internal/cell requires
// every child closed before the epic itself can close, so a blocked child
// leaves the epic open for a human or a later retry to resolve.
func (o *Orchestrator) tryResolveEpic(ctx context.Context, job *Job) (JobStatus, bool) {
	children, err := o.cells.Query(ctx, cell.Filter{ParentID: &job.EpicID})
	if err != nil {
		logging.OrchestratorError("job %s: query epic children failed: %v", job.ID, err)
		return "", false
	}

	anyBlocked := false
	for _, c := range children {
		switch c.Status {
		case cell.StatusClosed:
			continue
		case cell.StatusBlocked:
			anyBlocked = true
		default:
			return "", false // open or in_progress work remains
		}
	}

	if anyBlocked {
		return JobFailed, true
	}
	if err := o.cells.Close(ctx, job.EpicID, "all subtasks closed"); err != nil {
		logging.OrchestratorError("job %s: failed to close epic %s: %v", job.ID, job.EpicID, err)
		return JobFailed, true
	}
	return JobCompleted, true
}

// runSubtask drives a single subtask through reservation, optional
// worktree isolation, worker invocation, and the review gate.
func (o *Orchestrator) runSubtask(ctx context.Context, job *Job, opts RunOptions, c *cell.Cell) SubtaskResult {
	o.mu.Lock()
	job.CurrentSubtask = c.ID
	o.mu.Unlock()

	agent := "worker-" + c.ID
	if len(c.Files) > 0 {
		if _, err := o.reservations.Reserve(ctx, opts.ProjectKey, agent, c.Files, opts.ReservationTTL, true, "subtask "+c.ID); err != nil {
			logging.OrchestratorWarn("job %s subtask %s: reservation failed: %v", job.ID, c.ID, err)
		}
		defer func() { _, _ = o.reservations.Release(ctx, opts.ProjectKey, agent, c.Files) }()
	}

	var wtPath, wtStart string
	if opts.UseWorktrees && o.worktrees != nil {
		start, err := o.worktrees.StartCommit(ctx, opts.ProjectPath)
		if err == nil {
			if res, err := o.worktrees.Create(ctx, opts.ProjectPath, c.ID, start); err == nil {
				wtPath = res.Path
				wtStart = start
			}
		}
	}

	inProgress := cell.StatusInProgress
	if err := o.cells.Update(ctx, c.ID, cell.Patch{Status: &inProgress}); err != nil {
		logging.OrchestratorError("job %s subtask %s: transition to in_progress failed: %v", job.ID, c.ID, err)
		return SubtaskResult{SubtaskID: c.ID, Status: "failed"}
	}

	handoff := WorkerHandoff{
		Contract: Contract{TaskID: c.ID, FilesOwned: c.Files, DependenciesCompleted: c.Dependencies, SuccessCriteria: []string{"implementation matches subtask description"}},
		Context:  HandoffContext{EpicSummary: job.EpicID, YourRole: c.Title},
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	attempts := 0
	for attempts < MaxReviewAttempts {
		result, err := o.invokeWithRetry(ctx, handoff, maxRetries)
		if err != nil {
			logging.OrchestratorWarn("job %s subtask %s: worker invocation exhausted retries: %v", job.ID, c.ID, err)
			return o.failSubtask(ctx, job, wtPath, opts, c, attempts, false)
		}

		review, err := o.resolveReview(ctx, handoff, result)
		if err != nil {
			logging.OrchestratorWarn("job %s subtask %s: review failed: %v", job.ID, c.ID, err)
			return o.failSubtask(ctx, job, wtPath, opts, c, attempts, false)
		}
		attempts++

		if review.Verdict == VerdictApproved || review.Verdict == VerdictHallucinating {
			if wtPath != "" {
				if merge, err := o.worktrees.Merge(ctx, opts.ProjectPath, c.ID, wtStart); err != nil || !merge.Success {
					logging.OrchestratorWarn("job %s subtask %s: merge did not complete cleanly: %v", job.ID, c.ID, err)
				}
				_, _ = o.worktrees.Cleanup(ctx, opts.ProjectPath, c.ID, false)
			}
			if err := o.cells.Close(ctx, c.ID, "review approved"); err != nil {
				logging.OrchestratorError("job %s subtask %s: close failed: %v", job.ID, c.ID, err)
				return SubtaskResult{SubtaskID: c.ID, Status: "failed", Verdict: review.Verdict, Attempts: attempts}
			}
			o.recordPatternOutcome(ctx, job, opts, c, true)
			return SubtaskResult{SubtaskID: c.ID, Status: "closed", Verdict: review.Verdict, Attempts: attempts}
		}

		// NEEDS_CHANGES: re-invoke with the structured critique.
		handoff.Critique = review.Critiques
	}

	// Review-gate exhaustion (as opposed to an infrastructure error above)
	// is a genuine signal about the decomposition pattern's quality.
	return o.failSubtask(ctx, job, wtPath, opts, c, attempts, true)
}

func (o *Orchestrator) failSubtask(ctx context.Context, job *Job, wtPath string, opts RunOptions, c *cell.Cell, attempts int, reviewExhausted bool) SubtaskResult {
	if wtPath != "" && o.worktrees != nil {
		_, _ = o.worktrees.Cleanup(ctx, opts.ProjectPath, c.ID, false)
	}
	blocked := cell.StatusBlocked
	_ = o.cells.Update(ctx, c.ID, cell.Patch{Status: &blocked})
	logging.OrchestratorWarn("subtask %s exhausted review attempts (%d), marking failed and blocked", c.ID, attempts)
	if reviewExhausted {
		o.recordPatternOutcome(ctx, job, opts, c, false)
	}
	return SubtaskResult{SubtaskID: c.ID, Status: "failed", Attempts: attempts}
}

const defaultPatternID = "decomposition:default"

// patternIDFor derives the policy-engine pattern id that a subtask's
// outcome feeds back into: one pattern per decomposition strategy, or a
// shared default when the run didn't record one.
func patternIDFor(opts RunOptions) string {
	if opts.Strategy == "" {
		return defaultPatternID
	}
	return "decomposition:" + string(opts.Strategy)
}

// recordPatternOutcome feeds a subtask's review-gate outcome back into the
// policy engine's pattern maturity tracking: helpful on approval, harmful
// on review-gate exhaustion. The pattern engine is an optional collaborator
// (nil in tests and in deployments that don't wire C6); a nil patterns
// field makes this a no-op.
func (o *Orchestrator) recordPatternOutcome(ctx context.Context, job *Job, opts RunOptions, c *cell.Cell, helpful bool) {
	if o.patterns == nil {
		return
	}
	id := patternIDFor(opts)
	if _, err := o.patterns.EnsurePattern(ctx, id, "decomposition strategy: "+id); err != nil {
		logging.OrchestratorWarn("job %s subtask %s: ensure pattern %s failed: %v", job.ID, c.ID, id, err)
		return
	}
	_, inversion, err := o.patterns.RecordObservation(ctx, id, helpful, c.ID)
	if err != nil {
		logging.OrchestratorWarn("job %s subtask %s: record pattern observation failed: %v", job.ID, c.ID, err)
		return
	}
	if inversion != nil {
		logging.OrchestratorWarn("job %s: pattern %s inverted to anti-pattern %s", job.ID, id, inversion.Inverted.ID)
	}
}

func (o *Orchestrator) invokeWithRetry(ctx context.Context, handoff WorkerHandoff, maxRetries int) (WorkerResult, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := o.invoker.Invoke(ctx, handoff)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logging.OrchestratorDebug("worker invocation for %s failed (attempt %d/%d): %v", handoff.Contract.TaskID, attempt+1, maxRetries+1, err)
	}
	return WorkerResult{}, lastErr
}

func (o *Orchestrator) resolveReview(ctx context.Context, handoff WorkerHandoff, result WorkerResult) (ReviewResponse, error) {
	if result.Review != nil {
		return *result.Review, nil
	}
	if o.reviewer == nil {
		return ReviewResponse{}, swarmerr.New(swarmerr.SubsystemUnavailable, "orchestrator.resolveReview", handoff.Contract.TaskID,
			"worker produced no review verdict and no Reviewer is configured")
	}
	return o.reviewer.Review(ctx, handoff, result.Output)
}

// Abort cancels job (caller's ctx cancellation stops the scheduler loop
// and in-flight Go calls); Abort additionally resets the repository and
// removes all worktrees when requested.
func (o *Orchestrator) Abort(ctx context.Context, jobID string, projectPath, startCommit string, cleanupWorktrees bool) error {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}

	o.finish(job, JobCancelled)

	if cleanupWorktrees && o.worktrees != nil {
		if _, err := o.worktrees.Cleanup(ctx, projectPath, "", true); err != nil {
			return err
		}
		if startCommit != "" {
			return o.worktrees.ResetToStartCommit(ctx, projectPath, startCommit)
		}
	}
	return nil
}

func statusPtr(s cell.Status) *cell.Status { return &s }

func anyFailed(results []SubtaskResult) bool {
	for _, r := range results {
		if r.Status == "failed" {
			return true
		}
	}
	return false
}
