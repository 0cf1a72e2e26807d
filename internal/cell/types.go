// Package cell implements the Cell Store adapter: durable persistence for
// issues ("cells") behind a narrow interface. The authoritative backing
// store is external (an issue tracker); this package defines the adapter
// surface and an in-memory reference implementation.
package cell

import "time"

// Type is the closed sum type of cell kinds.
type Type string

const (
	TypeBug     Type = "bug"
	TypeFeature Type = "feature"
	TypeTask    Type = "task"
	TypeEpic    Type = "epic"
	TypeChore   Type = "chore"
)

// Status is the closed sum type of cell lifecycle states.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// Cell is a persistent issue-tracker record: the unit of work and
// coordination. Identity is immutable; state is mutable.
type Cell struct {
	ID           string
	Type         Type
	Status       Status
	Priority     int // 0 (highest) .. 3
	Title        string
	Description  string
	ParentID     string
	Dependencies []string // ordered list of cell ids
	Files        []string // path globs this cell's work touches
	Labels       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Patch describes a partial update to a Cell. Nil fields are left unchanged.
type Patch struct {
	Status      *Status
	Priority    *int
	Title       *string
	Description *string
	Files       *[]string
	Labels      *[]string
}

// Filter selects cells for Query.
type Filter struct {
	Status   *Status
	Type     *Type
	ParentID *string
	// Ready selects open cells whose dependencies are all closed.
	Ready bool
}
