package cell

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmcore/internal/logging"
	"swarmcore/internal/swarmerr"
)

// MemoryAdapter is the authoritative in-memory Adapter implementation.
// Durable adapters (issue-tracker backed) must reproduce its semantics.
type MemoryAdapter struct {
	mu    sync.Mutex
	cells map[string]*Cell
}

// NewMemoryAdapter constructs an empty in-memory Cell Store.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{cells: make(map[string]*Cell)}
}

func (a *MemoryAdapter) Create(ctx context.Context, c *Cell) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := validateDependenciesExist(c.ID, c.Dependencies, a.cells); err != nil {
		return "", err
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = StatusOpen
	}

	cp := *c
	a.cells[c.ID] = &cp
	logging.OrchestratorDebug("cell created id=%s type=%s", c.ID, c.Type)
	return c.ID, nil
}

func (a *MemoryAdapter) CreateEpic(ctx context.Context, epic Epic, subtasks []SubtaskInput) (CreateEpicResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	epicID := uuid.NewString()
	now := time.Now()

	ec := &Cell{
		ID: epicID, Type: TypeEpic, Status: StatusOpen,
		Priority: epic.Priority, Title: epic.Title, Description: epic.Description,
		Files: epic.Files, Labels: epic.Labels, CreatedAt: now, UpdatedAt: now,
	}

	subtaskIDs := make([]string, len(subtasks))
	for i := range subtasks {
		subtaskIDs[i] = fmt.Sprintf("%s.%d", epicID, i)
	}

	subtaskCells := make([]*Cell, len(subtasks))
	for i, st := range subtasks {
		deps := make([]string, 0, len(st.DependsOn))
		for _, depIdx := range st.DependsOn {
			if depIdx < 0 || depIdx >= i {
				return CreateEpicResult{}, swarmerr.New(swarmerr.ValidationError, "cell.CreateEpic", subtaskIDs[i],
					fmt.Sprintf("dependency index %d is out of bounds or not a prior sibling", depIdx))
			}
			deps = append(deps, subtaskIDs[depIdx])
		}

		sc := &Cell{
			ID: subtaskIDs[i], Type: TypeTask, Status: StatusOpen,
			Priority: st.Priority, Title: st.Title, Description: st.Description,
			ParentID: epicID, Dependencies: deps, Files: st.Files, Labels: st.Labels,
			CreatedAt: now, UpdatedAt: now,
		}
		subtaskCells[i] = sc
	}

	a.cells[epicID] = ec
	for _, sc := range subtaskCells {
		a.cells[sc.ID] = sc
	}

	logging.Orchestrator("epic created id=%s subtasks=%d", epicID, len(subtasks))
	return CreateEpicResult{EpicID: epicID, SubtaskIDs: subtaskIDs}, nil
}

func (a *MemoryAdapter) Get(ctx context.Context, id string) (*Cell, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cells[id]
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "cell.Get", id, "cell does not exist").
			WithRemedy("use query() to list valid ids")
	}
	cp := *c
	return &cp, nil
}

func (a *MemoryAdapter) Query(ctx context.Context, filter Filter) ([]*Cell, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*Cell
	for _, c := range a.cells {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && c.Type != *filter.Type {
			continue
		}
		if filter.ParentID != nil && c.ParentID != *filter.ParentID {
			continue
		}
		if filter.Ready {
			if c.Status != StatusOpen || !a.allDepsClosedLocked(c) {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (a *MemoryAdapter) allDepsClosedLocked(c *Cell) bool {
	for _, depID := range c.Dependencies {
		dep, ok := a.cells[depID]
		if !ok || dep.Status != StatusClosed {
			return false
		}
	}
	return true
}

func (a *MemoryAdapter) Update(ctx context.Context, id string, patch Patch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cells[id]
	if !ok {
		return swarmerr.New(swarmerr.NotFound, "cell.Update", id, "cell does not exist").
			WithRemedy("use query() to list valid ids")
	}

	if patch.Status != nil && *patch.Status != c.Status {
		deps := make([]*Cell, 0, len(c.Dependencies))
		for _, depID := range c.Dependencies {
			if dep, ok := a.cells[depID]; ok {
				deps = append(deps, dep)
			}
		}
		if err := validateTransition(c, *patch.Status, deps); err != nil {
			return err
		}
		c.Status = *patch.Status
	}
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Files != nil {
		c.Files = *patch.Files
	}
	if patch.Labels != nil {
		c.Labels = *patch.Labels
	}
	c.UpdatedAt = time.Now()

	logging.OrchestratorDebug("cell updated id=%s status=%s", id, c.Status)
	return nil
}

func (a *MemoryAdapter) Close(ctx context.Context, id string, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cells[id]
	if !ok {
		return swarmerr.New(swarmerr.NotFound, "cell.Close", id, "cell does not exist").
			WithRemedy("use query() to list valid ids")
	}

	if c.Type == TypeEpic {
		var children []*Cell
		for _, other := range a.cells {
			if other.ParentID == id {
				children = append(children, other)
			}
		}
		if err := validateEpicClose(c, children); err != nil {
			return err
		}
	}

	deps := make([]*Cell, 0, len(c.Dependencies))
	for _, depID := range c.Dependencies {
		if dep, ok := a.cells[depID]; ok {
			deps = append(deps, dep)
		}
	}
	if err := validateTransition(c, StatusClosed, deps); err != nil {
		return err
	}

	c.Status = StatusClosed
	if reason != "" {
		c.Description = strings.TrimSpace(c.Description + "\n\nclosed: " + reason)
	}
	c.UpdatedAt = time.Now()

	logging.Orchestrator("cell closed id=%s reason=%q", id, reason)
	return nil
}

func (a *MemoryAdapter) LinkThread(ctx context.Context, id string, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cells[id]
	if !ok {
		return swarmerr.New(swarmerr.NotFound, "cell.LinkThread", id, "cell does not exist").
			WithRemedy("use query() to list valid ids")
	}

	marker := fmt.Sprintf("[thread:%s]", threadID)
	if strings.Contains(c.Description, marker) {
		return nil // idempotent
	}

	c.Description = strings.TrimSpace(c.Description + "\n" + marker)
	c.UpdatedAt = time.Now()
	return nil
}
