package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"datapipe/internal/models"
)

func seededRecords(t *testing.T) *memRecords {
	t.Helper()
	return &memRecords{records: []*models.PromptRecord{{
		SessionUID: "sess",
		UserID:     "user-1",
		ProjectID:  42,
		UserName:   "ann",
		CreatedAt:  time.Now().Add(-time.Hour),
		UpdatedAt:  time.Now().Add(-time.Hour),
	}}}
}

func TestResolver_CreatesThenReuses(t *testing.T) {
	records := seededRecords(t)
	tasks := &fakeTasks{}
	r := NewResolver(records, tasks)
	ctx := context.Background()

	id1, isNew, err := r.Resolve(ctx, "sess", "Summarise {doc}")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew || id1 != "task-1" {
		t.Errorf("Expected new task-1, got %s new=%v", id1, isNew)
	}
	if records.inserts != 1 {
		t.Fatalf("Expected one inserted record, got %d", records.inserts)
	}

	derived := records.records[len(records.records)-1]
	if derived.UserName != "ann" || derived.ProjectID != 42 {
		t.Errorf("Derived record did not copy base fields: %+v", derived)
	}
	if derived.PromptString == nil || *derived.PromptString != "Summarise {doc}" {
		t.Errorf("Derived record has wrong prompt: %v", derived.PromptString)
	}

	id2, isNew, err := r.Resolve(ctx, "sess", "Summarise {doc}")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if isNew || id2 != id1 {
		t.Errorf("Expected reuse of %s, got %s new=%v", id1, id2, isNew)
	}
	if tasks.calls != 1 {
		t.Errorf("Expected no additional remote calls, got %d", tasks.calls)
	}

	id3, isNew, err := r.Resolve(ctx, "sess", "A different prompt")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !isNew || id3 == id1 {
		t.Errorf("Expected a new task for a new prompt, got %s new=%v", id3, isNew)
	}
	if records.inserts != 2 {
		t.Errorf("Expected two inserted records, got %d", records.inserts)
	}
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()
	prompt := "p"

	t.Run("record without task id", func(t *testing.T) {
		records := seededRecords(t)
		records.records = append(records.records, &models.PromptRecord{SessionUID: "sess", PromptString: &prompt})
		_, _, err := NewResolver(records, &fakeTasks{}).Resolve(ctx, "sess", prompt)
		if KindOf(err) != KindConflict {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		tasks := &fakeTasks{}
		_, _, err := NewResolver(&memRecords{}, tasks).Resolve(ctx, "nobody", prompt)
		if KindOf(err) != KindNotFound {
			t.Errorf("Expected not found, got %v", err)
		}
		if tasks.calls != 0 {
			t.Error("Expected no remote calls")
		}
	})

	t.Run("base record missing project", func(t *testing.T) {
		records := &memRecords{records: []*models.PromptRecord{{SessionUID: "sess", UserID: "u"}}}
		_, _, err := NewResolver(records, &fakeTasks{}).Resolve(ctx, "sess", prompt)
		if KindOf(err) != KindValidation {
			t.Errorf("Expected validation, got %v", err)
		}
	})

	t.Run("remote failure", func(t *testing.T) {
		records := seededRecords(t)
		boom := errors.New("Failed to create task: 500 - boom")
		_, _, err := NewResolver(records, &fakeTasks{err: boom}).Resolve(ctx, "sess", prompt)
		if KindOf(err) != KindUpstream {
			t.Errorf("Expected upstream failure, got %v", err)
		}
		if !errors.Is(err, boom) {
			t.Error("Expected cause to be preserved")
		}
		if records.inserts != 0 {
			t.Error("Expected no record on failure")
		}
	})
}
