// Package orchestrator implements the DAG scheduler: it materializes a
// validated plan as cells, walks the subtask DAG spawning ready work,
// drives each subtask through the review gate, and retires completed or
// failed subtasks while recording outcomes into the policy engine.
package orchestrator

import (
	"context"
	"time"

	"swarmcore/internal/planner"
)

// JobStatus is the lifecycle state of a running orchestration job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// ReviewVerdict is the outcome of a single review cycle.
type ReviewVerdict string

const (
	VerdictApproved      ReviewVerdict = "APPROVED"
	VerdictNeedsChanges  ReviewVerdict = "NEEDS_CHANGES"
	VerdictHallucinating ReviewVerdict = "HALLUCINATING"
)

// MaxReviewAttempts bounds review cycles per subtask.
const MaxReviewAttempts = 3

// Critique is one reviewer finding.
type Critique struct {
	File       string
	Line       *int
	Issue      string
	Suggestion string
	Severity   string // error, warning, info
}

// ReviewResponse is a reviewer's structured verdict.
type ReviewResponse struct {
	Critiques []Critique
	Verdict   ReviewVerdict
}

// Contract describes what a worker owns, what is read-only, and what
// already-completed dependency output it can rely on.
type Contract struct {
	TaskID                string
	FilesOwned            []string
	FilesReadonly         []string
	DependenciesCompleted []string
	SuccessCriteria       []string
}

// HandoffContext gives a worker situational awareness of the larger epic.
type HandoffContext struct {
	EpicSummary   string
	YourRole      string
	WhatOthersDid string
	WhatComesNext string
}

// Escalation tells a worker how to report being stuck.
type Escalation struct {
	BlockedContact     string
	ScopeChangeProtocol string
}

// WorkerHandoff is the three-part structured handoff passed to a worker
// invocation.
type WorkerHandoff struct {
	Contract Contract
	Context  HandoffContext
	Escalation Escalation
	// Critique is populated on a NEEDS_CHANGES re-invocation.
	Critique []Critique
}

// WorkerResult is what a worker invocation returns. Review is optional:
// some workers bundle their own review verdict; when absent, the
// orchestrator invokes the injected Reviewer separately.
type WorkerResult struct {
	Output string
	Review *ReviewResponse
}

// WorkerInvoker is the out-of-scope agent collaborator: the LLM provider
// is deliberately external, and the orchestrator depends only on this
// injected interface.
type WorkerInvoker interface {
	Invoke(ctx context.Context, handoff WorkerHandoff) (WorkerResult, error)
}

// Reviewer produces a review verdict for a completed worker invocation
// when the worker itself didn't already bundle one.
type Reviewer interface {
	Review(ctx context.Context, handoff WorkerHandoff, output string) (ReviewResponse, error)
}

// SubtaskResult records the terminal outcome of one subtask.
type SubtaskResult struct {
	SubtaskID string
	Status    string // closed, failed
	Verdict   ReviewVerdict
	Attempts  int
}

// Job is the observable state of a long-running orchestration run,
// addressed by an opaque job id.
type Job struct {
	ID               string
	EpicID           string
	Status           JobStatus
	CurrentIteration int
	CurrentSubtask   string
	Completed        int
	Total            int
	Results          []SubtaskResult
	StartedAt        time.Time
	FinishedAt       time.Time
}

// StopConditions bound a job's execution.
type StopConditions struct {
	MaxIterations  int
	StopOnFailure  bool
}

// RunOptions parameterize a single orchestration run.
type RunOptions struct {
	Plan             planner.BeadTree
	ProjectPath      string
	ProjectKey       string
	UseWorktrees     bool
	Stop             StopConditions
	MaxRetries       int
	ReservationTTL   time.Duration
	// Strategy identifies the decomposition approach used to produce Plan,
	// so its outcomes can be fed back into the policy engine's pattern
	// maturity tracking. Optional; an empty value falls back to a single
	// shared "default" pattern.
	Strategy planner.Strategy
}
