package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"datapipe/internal/models"
)

type stubResolver struct {
	taskID string
	err    error
}

func (s stubResolver) Resolve(ctx context.Context, sessionID, prompt string) (string, bool, error) {
	return s.taskID, false, s.err
}

func newTestOrchestrator(objects *memObjects, completer *fakeCompleter) *Orchestrator {
	o := NewOrchestrator(objects, stubResolver{taskID: "task-7"}, completer, NewSummarizer(completer))
	n := 0
	o.newKey = func() string {
		n++
		return fmt.Sprintf("fresh-%d", n)
	}
	return o
}

func TestApply_EndToEnd(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	for i, v := range []string{"alpha", "beta", "gamma"} {
		objects.AppendEntries(ctx, "tok", "words", entry(v, fmt.Sprintf("origin-%d", i)))
	}
	completer := &fakeCompleter{}
	o := newTestOrchestrator(objects, completer)

	result, err := o.Apply(ctx, ApplyRequest{
		Scope:              "tok",
		SessionID:          "tok",
		PromptString:       "Describe {words}",
		CreatedObjectNames: []string{"descriptions"},
		Inputs:             []models.InputSpec{{InputObjectName: "words", Mode: models.ModeUseIndividually}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.CombinationsProcessed != 3 || result.TaskID != "task-7" {
		t.Errorf("Unexpected result: %+v", result)
	}

	out, err := objects.GetObject(ctx, "tok", "descriptions")
	if err != nil {
		t.Fatalf("Expected derived object: %v", err)
	}
	if len(out.Data) != 3 {
		t.Fatalf("Expected 3 derived entries, got %d", len(out.Data))
	}
	for i, e := range out.Data {
		origin := fmt.Sprintf("origin-%d", i)
		fresh := fmt.Sprintf("fresh-%d", i+1)
		if len(e.KeyList) != 2 || e.KeyList[0] != origin || e.KeyList[1] != fresh {
			t.Errorf("entry %d: expected keys [%s %s], got %v", i, origin, fresh, e.KeyList)
		}
	}
	if completer.prompts[1] != "Describe beta" {
		t.Errorf("Unexpected filled prompt: %q", completer.prompts[1])
	}
	if !strings.HasPrefix(out.Data[0].Value, "result for Describe alpha") {
		t.Errorf("Unexpected derived value: %q", out.Data[0].Value)
	}
}

func TestApply_SharedKeyAcrossTargets(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	objects.AppendEntries(ctx, "tok", "src", entry("text", "k0"))
	completer := &fakeCompleter{respond: func(prompt string, keys []string) (map[string]any, error) {
		return map[string]any{"title": "T", "tags": []any{"a", "b"}}, nil
	}}
	o := newTestOrchestrator(objects, completer)

	_, err := o.Apply(ctx, ApplyRequest{
		Scope:              "tok",
		SessionID:          "tok",
		PromptString:       "{src}",
		CreatedObjectNames: []string{"title", "tags", "missing"},
		Inputs:             []models.InputSpec{{InputObjectName: "src", Mode: models.ModeUseIndividually}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	title, _ := objects.GetObject(ctx, "tok", "title")
	tags, _ := objects.GetObject(ctx, "tok", "tags")
	if title == nil || tags == nil {
		t.Fatal("Expected both targets to exist")
	}
	if title.Data[0].KeyList[1] != tags.Data[0].KeyList[1] {
		t.Error("Targets of one combination must share the fresh key")
	}
	if tags.Data[0].Value != `["a","b"]` {
		t.Errorf("Unexpected list rendering: %q", tags.Data[0].Value)
	}
	if _, err := objects.GetObject(ctx, "tok", "missing"); err == nil {
		t.Error("Names absent from the completion must not be created")
	}
}

func TestApply_SummaryFallback(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	summary := "concise"
	objects.AppendEntries(ctx, "tok", "big", models.DataEntry{
		KeyList: []string{"k"}, Value: strings.Repeat("w", 3000), SummaryValue: &summary,
	})
	completer := &fakeCompleter{respond: func(prompt string, keys []string) (map[string]any, error) {
		return map[string]any{"out": "ok"}, nil
	}}
	o := newTestOrchestrator(objects, completer)

	if _, err := o.Apply(ctx, ApplyRequest{
		Scope: "tok", SessionID: "tok", PromptString: "Read: {big}",
		CreatedObjectNames: []string{"out"},
		Inputs:             []models.InputSpec{{InputObjectName: "big", Mode: models.ModeUseIndividually}},
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if completer.prompts[0] != "Read: concise" {
		t.Errorf("Expected summary substitution, got %d-char prompt", len(completer.prompts[0]))
	}
}

func TestApply_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("resolver failure aborts before reading inputs", func(t *testing.T) {
		completer := &fakeCompleter{}
		o := NewOrchestrator(newMemObjects(), stubResolver{err: NotFound("No project found for this session_uid")}, completer, nil)
		_, err := o.Apply(ctx, ApplyRequest{
			Scope: "tok", SessionID: "tok", PromptString: "{x}", CreatedObjectNames: []string{"y"},
			Inputs: []models.InputSpec{{InputObjectName: "x", Mode: models.ModeUseIndividually}},
		})
		if KindOf(err) != KindNotFound {
			t.Errorf("Expected not found, got %v", err)
		}
		if len(completer.prompts) != 0 {
			t.Error("Expected no completions")
		}
	})

	t.Run("missing input", func(t *testing.T) {
		o := newTestOrchestrator(newMemObjects(), &fakeCompleter{})
		_, err := o.Apply(ctx, ApplyRequest{
			Scope: "tok", SessionID: "tok", PromptString: "{x}", CreatedObjectNames: []string{"y"},
			Inputs: []models.InputSpec{{InputObjectName: "x", Mode: models.ModeUseIndividually}},
		})
		if KindOf(err) != KindNotFound {
			t.Errorf("Expected not found, got %v", err)
		}
	})

	t.Run("inputs are scoped", func(t *testing.T) {
		objects := newMemObjects()
		objects.AppendEntries(ctx, "alice", "x", entry("v", "k"))
		o := newTestOrchestrator(objects, &fakeCompleter{})
		_, err := o.Apply(ctx, ApplyRequest{
			Scope: "bob", SessionID: "bob", PromptString: "{x}", CreatedObjectNames: []string{"y"},
			Inputs: []models.InputSpec{{InputObjectName: "x", Mode: models.ModeUseIndividually}},
		})
		if KindOf(err) != KindNotFound {
			t.Errorf("Expected not found across scopes, got %v", err)
		}
	})

	t.Run("completion failure keeps earlier results", func(t *testing.T) {
		objects := newMemObjects()
		objects.AppendEntries(ctx, "tok", "x", entry("one", "k1"), entry("two", "k2"))
		calls := 0
		completer := &fakeCompleter{respond: func(prompt string, keys []string) (map[string]any, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("completion service returned 500")
			}
			return map[string]any{"y": "ok"}, nil
		}}
		o := newTestOrchestrator(objects, completer)
		result, err := o.Apply(ctx, ApplyRequest{
			Scope: "tok", SessionID: "tok", PromptString: "{x}", CreatedObjectNames: []string{"y"},
			Inputs: []models.InputSpec{{InputObjectName: "x", Mode: models.ModeUseIndividually}},
		})
		if KindOf(err) != KindUpstream {
			t.Errorf("Expected upstream failure, got %v", err)
		}
		if result == nil || result.CombinationsProcessed != 1 {
			t.Errorf("Expected one processed combination, got %+v", result)
		}
		out, _ := objects.GetObject(ctx, "tok", "y")
		if out == nil || len(out.Data) != 1 {
			t.Error("Expected the first result to be kept")
		}
	})

	t.Run("validation", func(t *testing.T) {
		o := newTestOrchestrator(newMemObjects(), &fakeCompleter{})
		_, err := o.Apply(ctx, ApplyRequest{Scope: "tok", SessionID: "tok", PromptString: "p"})
		if KindOf(err) != KindValidation {
			t.Errorf("Expected validation error, got %v", err)
		}
	})
}

func TestSummarizer(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{respond: func(prompt string, keys []string) (map[string]any, error) {
		return map[string]any{"summary": "tiny"}, nil
	}}
	s := NewSummarizer(completer)

	if got, err := s.Summarize(ctx, strings.Repeat("a", SummaryMinLength-1)); err != nil || got != nil {
		t.Errorf("Expected no summary below threshold, got %v, %v", got, err)
	}
	if len(completer.prompts) != 0 {
		t.Error("Expected no completion call for short text")
	}

	got, err := s.Summarize(ctx, strings.Repeat("a", SummaryMinLength))
	if err != nil || got == nil || *got != "tiny" {
		t.Errorf("Expected summary at threshold, got %v, %v", got, err)
	}
	if !strings.HasPrefix(completer.prompts[0], summaryPrompt) {
		t.Error("Expected the summary instruction to lead the prompt")
	}

	noKey := NewSummarizer(&fakeCompleter{respond: func(string, []string) (map[string]any, error) {
		return map[string]any{"other": "x"}, nil
	}})
	if got, err := noKey.Summarize(ctx, strings.Repeat("a", 1500)); err != nil || got != nil {
		t.Errorf("Expected nil summary without error for a missing key, got %v, %v", got, err)
	}

	failing := NewSummarizer(&fakeCompleter{respond: func(string, []string) (map[string]any, error) {
		return nil, errors.New("down")
	}})
	if _, err := failing.NewEntry(ctx, []string{"k"}, strings.Repeat("a", 1500)); err == nil {
		t.Error("Expected completion failure to surface from NewEntry")
	}
}

func TestApply_SummaryFailure(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	objects.AppendEntries(ctx, "tok", "src", entry("text", "k0"))

	// the main completion succeeds with a long value, the summary call fails
	completer := &fakeCompleter{respond: func(prompt string, keys []string) (map[string]any, error) {
		if len(keys) == 1 && keys[0] == "summary" {
			return nil, errors.New("completion service down")
		}
		return map[string]any{"out": strings.Repeat("o", 1500)}, nil
	}}
	o := newTestOrchestrator(objects, completer)

	result, err := o.Apply(ctx, ApplyRequest{
		Scope:              "tok",
		SessionID:          "tok",
		PromptString:       "Expand {src}",
		CreatedObjectNames: []string{"out"},
		Inputs:             []models.InputSpec{{InputObjectName: "src", Mode: models.ModeUseIndividually}},
	})
	if KindOf(err) != KindUpstream {
		t.Fatalf("Expected upstream error, got %v", err)
	}
	if result == nil || result.CombinationsProcessed != 0 {
		t.Errorf("Expected no processed combinations, got %+v", result)
	}
	if out, _ := objects.GetObject(ctx, "tok", "out"); out != nil && len(out.Data) != 0 {
		t.Errorf("Expected no entry stored without its summary, got %d", len(out.Data))
	}
}
