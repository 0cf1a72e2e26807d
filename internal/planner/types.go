// Package planner implements decomposition strategy selection from a
// natural-language task description, and BeadTree plan validation
// (file-exclusivity, forward-reference, instruction-conflict detection).
package planner

// Strategy is one of the four decomposition approaches the planner can
// recommend.
type Strategy string

const (
	FileBased     Strategy = "file-based"
	FeatureBased  Strategy = "feature-based"
	RiskBased     Strategy = "risk-based"
	ResearchBased Strategy = "research-based"
)

// StrategyScore is one candidate's score in a selection result.
type StrategyScore struct {
	Strategy Strategy
	Score    int
}

// SelectionResult is the output of SelectStrategy.
type SelectionResult struct {
	Strategy     Strategy
	Confidence   float64
	Reasoning    string
	Alternatives []StrategyScore
}

// Subtask is one entry in a proposed BeadTree, referencing dependencies by
// index into the subtask list.
type Subtask struct {
	Title                string
	Description          string
	Files                []string
	Dependencies         []int
	EstimatedComplexity  int
}

// Epic is the top-level unit of a proposed plan.
type Epic struct {
	Title       string
	Description string
}

// BeadTree is the transient pre-persistence plan structure.
type BeadTree struct {
	Epic     Epic
	Subtasks []Subtask
}

// InstructionConflict is a non-blocking warning surfaced during validation.
type InstructionConflict struct {
	SubtaskA int
	SubtaskB int
	TokenA   string
	TokenB   string
	Detail   string
}

// Stats summarizes an accepted plan.
type Stats struct {
	SubtaskCount    int
	TotalFiles      int
	TotalComplexity int
}

// ValidationResult is the output of ValidatePlan.
type ValidationResult struct {
	Valid     bool
	Error     string
	Details   string
	BeadTree  *BeadTree
	Stats     Stats
	Warnings  []InstructionConflict
}
