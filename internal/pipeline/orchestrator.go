package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"

	"datapipe/internal/logging"
	"datapipe/internal/models"
	"datapipe/internal/store"

	"github.com/google/uuid"
)

// TaskResolver maps a session and prompt to a remote task id
type TaskResolver interface {
	Resolve(ctx context.Context, sessionID, prompt string) (taskID string, isNew bool, err error)
}

// ApplyRequest is a validated prompt application scoped to one caller
type ApplyRequest struct {
	Scope              string
	SessionID          string
	PromptString       string
	CreatedObjectNames []string
	Inputs             []models.InputSpec
}

// ApplyResult summarises a prompt application
type ApplyResult struct {
	CombinationsProcessed int      `json:"combinations_processed"`
	CreatedObjects        []string `json:"created_objects"`
	TaskID                string   `json:"task_id"`
	NewTask               bool     `json:"new_task"`
}

// Orchestrator applies prompts over combinations of stored objects and writes derived entries
type Orchestrator struct {
	objects    store.ObjectStore
	resolver   TaskResolver
	completer  Completer
	summarizer *Summarizer
	newKey     func() string
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(objects store.ObjectStore, resolver TaskResolver, completer Completer, summarizer *Summarizer) *Orchestrator {
	return &Orchestrator{
		objects:    objects,
		resolver:   resolver,
		completer:  completer,
		summarizer: summarizer,
		newKey:     uuid.NewString,
	}
}

func validateApply(req ApplyRequest) error {
	if strings.TrimSpace(req.PromptString) == "" {
		return Validation("prompt_string is required")
	}
	if len(req.CreatedObjectNames) == 0 {
		return Validation("created_object_names must not be empty")
	}
	for _, name := range req.CreatedObjectNames {
		if strings.TrimSpace(name) == "" {
			return Validation("created_object_names must not contain empty names")
		}
	}
	return ValidateInputs(req.Inputs)
}

// LoadInputs fetches every input object in the caller's scope, keyed by input name
func (o *Orchestrator) LoadInputs(ctx context.Context, scope string, inputs []models.InputSpec) (map[string]*models.DataObject, error) {
	objects := make(map[string]*models.DataObject, len(inputs))
	for _, in := range inputs {
		obj, err := o.objects.GetObject(ctx, scope, in.InputObjectName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, NotFound("Input object '%s' not found", in.InputObjectName)
			}
			return nil, Internal(err, "failed to load input '%s'", in.InputObjectName)
		}
		objects[in.InputObjectName] = obj
	}
	return objects, nil
}

// Apply resolves the prompt's task, builds combinations and runs one completion per combination.
// A failure part-way leaves already written combinations in place; the returned result
// reports how many were processed.
func (o *Orchestrator) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if err := validateApply(req); err != nil {
		return nil, err
	}

	logger := logging.WithApply(req.Scope, req.SessionID, req.PromptString)

	taskID, isNew, err := o.resolver.Resolve(ctx, req.SessionID, req.PromptString)
	if err != nil {
		logger.Warn("task resolution failed", "error", err)
		return nil, err
	}

	objects, err := o.LoadInputs(ctx, req.Scope, req.Inputs)
	if err != nil {
		return nil, err
	}

	combos, err := BuildCombinations(req.Inputs, objects)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		CreatedObjects: req.CreatedObjectNames,
		TaskID:         taskID,
		NewTask:        isNew,
	}
	logger.Info("applying prompt", "task_id", taskID, "new_task", isNew, "combinations", len(combos))

	for i, combo := range combos {
		if err := ctx.Err(); err != nil {
			return result, Internal(err, "apply cancelled after %d of %d combinations", i, len(combos))
		}
		if err := o.applyOne(ctx, req, combo); err != nil {
			logger.Error("combination failed", "index", i, "error", err)
			return result, err
		}
		result.CombinationsProcessed++
	}

	log.Printf("✅ [PIPELINE] Applied prompt to %d combinations (task %s)", result.CombinationsProcessed, taskID)
	return result, nil
}

func (o *Orchestrator) applyOne(ctx context.Context, req ApplyRequest, combo Combination) error {
	filled := FillTemplate(req.PromptString, combo)

	output, err := o.completer.Complete(ctx, filled, req.CreatedObjectNames)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return err
		}
		return Upstream(err, "completion failed")
	}

	keys := append(combo.Keys(), o.newKey())
	for _, name := range req.CreatedObjectNames {
		raw, ok := output[name]
		if !ok {
			continue
		}
		entryKeys := make([]string, len(keys))
		copy(entryKeys, keys)
		entry, err := o.summarizer.NewEntry(ctx, entryKeys, Stringify(raw))
		if err != nil {
			return Upstream(err, "summary failed for '%s'", name)
		}
		if err := o.objects.AppendEntries(ctx, req.Scope, name, entry); err != nil {
			return Internal(err, "failed to store result in '%s'", name)
		}
	}
	return nil
}
