package planner

import "context"

// PlanProvider produces a BeadTree from a task and selected strategy. The
// LLM call that actually generates a plan is out of scope for this
// package; the provider is an injected collaborator.
type PlanProvider interface {
	GeneratePlan(ctx context.Context, task string, strategy Strategy) (BeadTree, error)
}
