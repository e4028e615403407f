package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"datapipe/internal/store"
)

// TaskCreator registers a prompt as a task in the remote analytics service
type TaskCreator interface {
	// CreateTask creates the task, attaches the prompt and activates its evaluation, returning the task id
	CreateTask(ctx context.Context, userID string, projectID int64, prompt string) (string, error)
}

// Resolver maps (session, prompt) pairs to remote analytics tasks, creating tasks on first use
type Resolver struct {
	records store.RecordStore
	tasks   TaskCreator
	now     func() time.Time
}

// NewResolver creates a resolver
func NewResolver(records store.RecordStore, tasks TaskCreator) *Resolver {
	return &Resolver{
		records: records,
		tasks:   tasks,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the task id for the session and prompt, and whether it was created by this call.
// Concurrent first calls for the same pair may both create tasks; the later record is never reconciled.
func (r *Resolver) Resolve(ctx context.Context, sessionID, prompt string) (string, bool, error) {
	if sessionID == "" {
		return "", false, Validation("session id is required")
	}

	existing, err := r.records.FindByPrompt(ctx, sessionID, prompt)
	switch {
	case err == nil:
		if !existing.HasTaskID() {
			return "", false, Conflict("Found matching record but it has no task_id")
		}
		log.Printf("♻️  [RESOLVER] Reusing task %s for session %s", *existing.TaskID, sessionID)
		return *existing.TaskID, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", false, Internal(err, "failed to look up prompt record")
	}

	base, err := r.records.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, NotFound("No project found for this session_uid")
		}
		return "", false, Internal(err, "failed to look up session record")
	}
	if base.UserID == "" || base.ProjectID == 0 {
		return "", false, Validation("Missing user_id or project_id in base record")
	}

	taskID, err := r.tasks.CreateTask(ctx, base.UserID, base.ProjectID, prompt)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return "", false, err
		}
		return "", false, Upstream(err, "failed to create analytics task")
	}
	if taskID == "" {
		return "", false, Upstream(nil, "analytics service returned no task id")
	}

	record := base.DeriveForPrompt(taskID, prompt, r.now())
	if _, err := r.records.InsertRecord(ctx, record); err != nil {
		return "", false, Internal(err, "failed to store prompt record for task %s", taskID)
	}

	log.Printf("🆕 [RESOLVER] Created task %s for session %s", taskID, sessionID)
	return taskID, true, nil
}
