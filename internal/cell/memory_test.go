package cell

import (
	"context"
	"strings"
	"testing"

	"swarmcore/internal/swarmerr"
)

func TestCreate_AssignsID(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	id, err := a.Create(ctx, &Cell{Type: TypeTask, Title: "do the thing"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	got, err := a.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusOpen {
		t.Errorf("expected default status open, got %s", got.Status)
	}
}

func TestCreate_RejectsMissingDependency(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	_, err := a.Create(ctx, &Cell{Type: TypeTask, Title: "x", Dependencies: []string{"missing-id"}})
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if !swarmerr.IsKind(err, swarmerr.NotFound) {
		t.Errorf("expected NotFound kind, got %v", err)
	}
}

func TestCreateEpic_AssignsHierarchicalIDs(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	result, err := a.CreateEpic(ctx, Epic{Title: "ship feature"}, []SubtaskInput{
		{Title: "subtask 0"},
		{Title: "subtask 1", DependsOn: nil},
	})
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}

	if len(result.SubtaskIDs) != 2 {
		t.Fatalf("expected 2 subtask ids, got %d", len(result.SubtaskIDs))
	}
	wantFirst := result.EpicID + ".0"
	wantSecond := result.EpicID + ".1"
	if result.SubtaskIDs[0] != wantFirst || result.SubtaskIDs[1] != wantSecond {
		t.Errorf("expected ids %s, %s, got %v", wantFirst, wantSecond, result.SubtaskIDs)
	}

	epic, err := a.Get(ctx, result.EpicID)
	if err != nil {
		t.Fatalf("Get(epic) error = %v", err)
	}
	if epic.Type != TypeEpic {
		t.Errorf("expected epic type, got %s", epic.Type)
	}
}

func TestUpdate_InProgressRequiresDependenciesClosed(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	depID, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "dep"})
	id, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "dependent", Dependencies: []string{depID}})

	inProgress := StatusInProgress
	err := a.Update(ctx, id, Patch{Status: &inProgress})
	if err == nil {
		t.Fatal("expected invalid transition error while dependency is open")
	}
	if !swarmerr.IsKind(err, swarmerr.InvalidTransition) {
		t.Errorf("expected InvalidTransition kind, got %v", err)
	}

	if err := a.Close(ctx, depID, "done"); err != nil {
		t.Fatalf("Close(dep) error = %v", err)
	}

	if err := a.Update(ctx, id, Patch{Status: &inProgress}); err != nil {
		t.Fatalf("Update() after dependency closed, error = %v", err)
	}
}

func TestClose_EpicRequiresAllChildrenClosed(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	result, err := a.CreateEpic(ctx, Epic{Title: "epic"}, []SubtaskInput{
		{Title: "sub0"},
		{Title: "sub1"},
	})
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}

	if err := a.Close(ctx, result.EpicID, "all done"); err == nil {
		t.Fatal("expected error closing epic with open children")
	}

	for _, sid := range result.SubtaskIDs {
		if err := a.Close(ctx, sid, "done"); err != nil {
			t.Fatalf("Close(subtask) error = %v", err)
		}
	}

	if err := a.Close(ctx, result.EpicID, "all done"); err != nil {
		t.Fatalf("Close(epic) after children closed, error = %v", err)
	}
}

func TestQuery_ReadyFilter(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	depID, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "dep"})
	readyID, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "no deps"})
	blockedID, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "blocked", Dependencies: []string{depID}})

	results, err := a.Query(ctx, Filter{Ready: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	ids := map[string]bool{}
	for _, c := range results {
		ids[c.ID] = true
	}
	if !ids[depID] || !ids[readyID] {
		t.Errorf("expected dep and readyID to be ready, got %v", ids)
	}
	if ids[blockedID] {
		t.Errorf("expected blockedID to not be ready")
	}
}

func TestLinkThread_Idempotent(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()

	id, _ := a.Create(ctx, &Cell{Type: TypeTask, Title: "x", Description: "original description"})

	if err := a.LinkThread(ctx, id, "thread-1"); err != nil {
		t.Fatalf("LinkThread() error = %v", err)
	}
	first, _ := a.Get(ctx, id)

	if err := a.LinkThread(ctx, id, "thread-1"); err != nil {
		t.Fatalf("LinkThread() repeat error = %v", err)
	}
	second, _ := a.Get(ctx, id)

	if first.Description != second.Description {
		t.Errorf("expected idempotent LinkThread, description changed: %q vs %q", first.Description, second.Description)
	}
	if !strings.Contains(second.Description, "original description") {
		t.Error("expected prior description content preserved")
	}
	if !strings.Contains(second.Description, "thread-1") {
		t.Error("expected thread marker appended")
	}
}
