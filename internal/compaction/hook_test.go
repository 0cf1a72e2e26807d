package compaction

import (
	"context"
	"testing"

	"swarmcore/internal/cell"
)

func TestDetect_InactiveWhenNoCells(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	active, err := Detect(context.Background(), cells)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if active {
		t.Error("expected inactive swarm on an empty store")
	}
}

func TestDetect_ActiveWhenEpicOpen(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	ctx := context.Background()
	result, err := cells.CreateEpic(ctx, cell.Epic{Title: "epic"}, []cell.SubtaskInput{{Title: "sub0"}})
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}

	active, err := Detect(ctx, cells)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !active {
		t.Fatal("expected active swarm: epic is not closed")
	}
	_ = result
}

func TestDetect_ActiveWhenSubtaskInProgress(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	ctx := context.Background()
	result, err := cells.CreateEpic(ctx, cell.Epic{Title: "epic"}, []cell.SubtaskInput{{Title: "sub0"}})
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}
	inProgress := cell.StatusInProgress
	if err := cells.Update(ctx, result.SubtaskIDs[0], cell.Patch{Status: &inProgress}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	active, err := Detect(ctx, cells)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !active {
		t.Fatal("expected active swarm: subtask is in_progress")
	}
}

func TestDetect_InactiveWhenEpicFullyClosed(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	ctx := context.Background()
	result, err := cells.CreateEpic(ctx, cell.Epic{Title: "epic"}, []cell.SubtaskInput{{Title: "sub0"}})
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}
	if err := cells.Close(ctx, result.SubtaskIDs[0], "done"); err != nil {
		t.Fatalf("Close(subtask) error = %v", err)
	}
	if err := cells.Close(ctx, result.EpicID, "done"); err != nil {
		t.Fatalf("Close(epic) error = %v", err)
	}

	active, err := Detect(ctx, cells)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if active {
		t.Error("expected inactive swarm once epic and all subtasks are closed")
	}
}

func TestHook_AppendsResumptionBlockWhenActive(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	ctx := context.Background()
	if _, err := cells.CreateEpic(ctx, cell.Epic{Title: "epic"}, []cell.SubtaskInput{{Title: "sub0"}}); err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}

	blocks, err := Hook(ctx, cells, []string{"existing context"})
	if err != nil {
		t.Fatalf("Hook() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2 (existing + resumption)", len(blocks))
	}
	if !ResumptionBlockContains(blocks) {
		t.Error("expected the resumption block to be present")
	}
}

func TestHook_NoOpWhenInactive(t *testing.T) {
	cells := cell.NewMemoryAdapter()
	blocks, err := Hook(context.Background(), cells, []string{"existing context"})
	if err != nil {
		t.Fatalf("Hook() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1 (no-op)", len(blocks))
	}
}
