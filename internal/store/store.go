// Package store defines the persistence boundaries used by the pipeline and services.
// mongostore and sqlstore provide the concrete backends.
package store

import (
	"context"
	"errors"
	"time"

	"datapipe/internal/models"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ObjectStore persists scoped data objects and their entries
type ObjectStore interface {
	// GetObject returns the object or ErrNotFound
	GetObject(ctx context.Context, scope, name string) (*models.DataObject, error)
	// EnsureObject creates an empty object when absent; existing objects are left untouched
	EnsureObject(ctx context.Context, scope, name string) error
	// AppendEntries appends entries in order, creating the object if needed
	AppendEntries(ctx context.Context, scope, name string, entries ...models.DataEntry) error
	// DeleteObject reports whether an object was removed
	DeleteObject(ctx context.Context, scope, name string) (bool, error)
	// ListObjects returns every object in the scope ordered by name
	ListObjects(ctx context.Context, scope string) ([]*models.DataObject, error)
}

// RecordStore persists prompt/task association records
type RecordStore interface {
	// FindByPrompt returns the record for an exact (session, prompt) pair or ErrNotFound
	FindByPrompt(ctx context.Context, sessionUID, prompt string) (*models.PromptRecord, error)
	// FindBySession returns the most recently updated record of the session or ErrNotFound
	FindBySession(ctx context.Context, sessionUID string) (*models.PromptRecord, error)
	// InsertRecord stores a new record and returns its id
	InsertRecord(ctx context.Context, record *models.PromptRecord) (string, error)
	// UpsertProject writes the session base record keyed by (project_id, user_id)
	UpsertProject(ctx context.Context, record *models.PromptRecord) (*models.UpsertResult, error)
}

// AgentStore persists agent metadata and conversation history
type AgentStore interface {
	SaveAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, scope, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context, scope string) ([]*models.Agent, error)
	DeleteAgent(ctx context.Context, scope, agentID string) (bool, error)
}

// ResearchStore persists research tasks
type ResearchStore interface {
	CreateTask(ctx context.Context, task *models.ResearchTask) error
	// GetTask looks a task up by id regardless of scope (webhooks carry no caller token)
	GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error)
	UpdateTask(ctx context.Context, task *models.ResearchTask) error
	ListTasks(ctx context.Context, scope string, statuses ...models.ResearchTaskStatus) ([]*models.ResearchTask, error)
	DeleteTask(ctx context.Context, scope, taskID string) (bool, error)
	// DeleteExpired removes terminal tasks completed before completedBefore and
	// pending tasks created before pendingBefore
	DeleteExpired(ctx context.Context, completedBefore, pendingBefore time.Time) (int64, error)
}

// Store bundles every persistence boundary of the service
type Store interface {
	ObjectStore
	RecordStore
	AgentStore
	ResearchStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
