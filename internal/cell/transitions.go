package cell

import (
	"fmt"

	"swarmcore/internal/swarmerr"
)

// allowedTransitions lists the statuses a cell may move to from a given
// status, keyed as a from->[]to table for the single Cell type's four
// statuses.
var allowedTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusBlocked, StatusClosed},
	StatusInProgress: {StatusBlocked, StatusClosed, StatusOpen},
	StatusBlocked:    {StatusOpen, StatusInProgress, StatusClosed},
	StatusClosed:     {}, // terminal; no transitions out
}

// validateTransition requires that a cell transitioning to in_progress
// have all dependencies closed. All other status transitions in
// allowedTransitions are permitted without a dependency check.
func validateTransition(c *Cell, to Status, deps []*Cell) error {
	if c.Status == to {
		return nil // no-op transition, not an error
	}

	allowed := allowedTransitions[c.Status]
	ok := false
	for _, s := range allowed {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		return swarmerr.New(swarmerr.InvalidTransition, "cell.Update", c.ID,
			fmt.Sprintf("cannot transition from %q to %q", c.Status, to)).
			WithRemedy("valid transitions from this status: " + formatStatuses(allowed))
	}

	if to == StatusInProgress {
		for _, d := range deps {
			if d.Status != StatusClosed {
				return swarmerr.New(swarmerr.InvalidTransition, "cell.Update", c.ID,
					fmt.Sprintf("dependency %q is not closed (status=%s)", d.ID, d.Status)).
					WithRemedy("wait for all dependencies to close before starting this cell")
			}
		}
	}

	return nil
}

// validateEpicClose requires that an epic close only when every child is
// closed. There is no separate "abandoned" status; abandonment is
// represented as closing with an abandonment reason.
func validateEpicClose(epic *Cell, children []*Cell) error {
	for _, child := range children {
		if child.Status != StatusClosed {
			return swarmerr.New(swarmerr.InvalidTransition, "cell.Close", epic.ID,
				fmt.Sprintf("child %q is not closed (status=%s)", child.ID, child.Status)).
				WithRemedy("close or abandon all child cells before closing the epic")
		}
	}
	return nil
}

// validateDependenciesExist requires that dependencies reference existing
// cells. The caller supplies the resolved set it found; missing ids are
// reported by id.
func validateDependenciesExist(cellID string, deps []string, found map[string]*Cell) error {
	for _, depID := range deps {
		if _, ok := found[depID]; !ok {
			return swarmerr.New(swarmerr.NotFound, "cell.Create", cellID,
				fmt.Sprintf("dependency %q does not exist", depID)).
				WithRemedy("create dependency cells before referencing them")
		}
	}
	return nil
}

func formatStatuses(statuses []Status) string {
	if len(statuses) == 0 {
		return "(none - terminal status)"
	}
	out := ""
	for i, s := range statuses {
		if i > 0 {
			out += ", "
		}
		out += string(s)
	}
	return out
}
