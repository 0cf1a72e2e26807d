// Package compaction implements the host-invoked hook that fires when the
// surrounding session's memory is about to be summarized. It detects
// whether a swarm is still active and, if so, appends a fixed resumption
// instruction block so the coordinator can pick up where it left off.
package compaction

import (
	"context"
	"strings"

	"swarmcore/internal/cell"
)

// resumptionBlock is the fixed instruction block appended to the
// compaction context when a swarm is active.
const resumptionBlock = `// =============================================================================
// SWARM RESUMPTION PROTOCOL
// =============================================================================
A multi-agent swarm was active when this session was compacted. To resume:

1. Query epic status: list open epics and their subtasks' states.
2. Read the inbox: drain pending messages addressed to the coordinator.
3. Spawn ready subtasks: any subtask with status open and all dependencies
   closed is eligible for immediate dispatch.
4. Handle blocked subtasks: a subtask left blocked exhausted its review
   attempts; decide whether to retry, reassign, or close the loop as failed.
5. Close the loop: once every subtask under an epic is closed or failed,
   close the epic and report the outcome.
`

// Detect reports whether a swarm is active in the given cell store: any cell
// in_progress, any open cell with a parent_id set, or any epic not closed.
func Detect(ctx context.Context, cells cell.Adapter) (bool, error) {
	inProgress := cell.StatusInProgress
	running, err := cells.Query(ctx, cell.Filter{Status: &inProgress})
	if err != nil {
		return false, err
	}
	if len(running) > 0 {
		return true, nil
	}

	open := cell.StatusOpen
	openCells, err := cells.Query(ctx, cell.Filter{Status: &open})
	if err != nil {
		return false, err
	}
	for _, c := range openCells {
		if c.ParentID != "" {
			return true, nil
		}
	}

	epics, err := cells.Query(ctx, cell.Filter{Type: typePtr(cell.TypeEpic)})
	if err != nil {
		return false, err
	}
	for _, e := range epics {
		if e.Status != cell.StatusClosed {
			return true, nil
		}
	}

	return false, nil
}

// Hook runs the compaction hook: when a swarm is active it appends the
// fixed resumption block to contextBlocks and returns the updated slice;
// when inactive it is a no-op and returns contextBlocks unchanged.
func Hook(ctx context.Context, cells cell.Adapter, contextBlocks []string) ([]string, error) {
	active, err := Detect(ctx, cells)
	if err != nil {
		return contextBlocks, err
	}
	if !active {
		return contextBlocks, nil
	}
	return append(contextBlocks, resumptionBlock), nil
}

// ResumptionBlockContains reports whether block is the fixed resumption
// instruction block, for callers that need to detect it was already
// appended (e.g. to avoid duplicating it across repeated compactions).
func ResumptionBlockContains(blocks []string) bool {
	for _, b := range blocks {
		if strings.TrimSpace(b) == strings.TrimSpace(resumptionBlock) {
			return true
		}
	}
	return false
}

func typePtr(t cell.Type) *cell.Type { return &t }
