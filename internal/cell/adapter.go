package cell

import "context"

// Epic bundles an epic cell with its ordered subtasks for CreateEpic.
type Epic struct {
	Title       string
	Description string
	Priority    int
	Files       []string
	Labels      []string
}

// SubtaskInput is one subtask supplied to CreateEpic, prior to id assignment.
type SubtaskInput struct {
	Title       string
	Description string
	Priority    int
	Files       []string
	Labels      []string
	// DependsOn holds indices into the same subtasks slice (each must be <
	// this subtask's own index); CreateEpic resolves them to assigned ids.
	DependsOn []int
}

// CreateEpicResult reports the ids assigned by CreateEpic.
type CreateEpicResult struct {
	EpicID      string
	SubtaskIDs  []string // same order as the input subtasks
}

// Adapter is the Cell Store interface the core consumes. Implementations
// MUST be durable, MUST preserve id stability once assigned, and MUST
// enforce status-transition and dependency-existence invariants on
// Create/CreateEpic/Update/Close.
type Adapter interface {
	// Create persists a new cell and returns its assigned id.
	Create(ctx context.Context, c *Cell) (string, error)

	// CreateEpic persists an epic and its subtasks atomically, assigning
	// subtask ids of the form "{epic_id}.{i}" in input order (i 0-based).
	CreateEpic(ctx context.Context, epic Epic, subtasks []SubtaskInput) (CreateEpicResult, error)

	// Get retrieves a cell by id. Returns a NotFound swarmerr on miss.
	Get(ctx context.Context, id string) (*Cell, error)

	// Query returns cells matching filter.
	Query(ctx context.Context, filter Filter) ([]*Cell, error)

	// Update applies patch to the cell, enforcing transition invariants.
	Update(ctx context.Context, id string, patch Patch) error

	// Close transitions a cell to closed, recording reason in its description.
	Close(ctx context.Context, id string, reason string) error

	// LinkThread appends a thread-id marker to a cell's description.
	// Idempotent: re-linking the same thread id is a no-op; linking a
	// different thread id appends another marker, preserving prior content.
	LinkThread(ctx context.Context, id string, threadID string) error
}
