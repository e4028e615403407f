package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PromptRecord binds a session (and optionally a prompt string) to a remote analytics task.
// A record without PromptString is the session base record written by record_project;
// records with PromptString are derived from it on the first apply of that prompt.
type PromptRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SessionUID   string             `bson:"session_uid" json:"session_uid"`
	UserAPIKey   string             `bson:"user_api_key,omitempty" json:"user_api_key,omitempty"`
	UserName     string             `bson:"user_name,omitempty" json:"user_name,omitempty"`
	UserID       string             `bson:"user_id" json:"user_id"`
	ProjectID    int64              `bson:"project_id" json:"project_id"`
	UserToken    string             `bson:"user_token,omitempty" json:"user_token,omitempty"`
	TaskID       *string            `bson:"task_id,omitempty" json:"task_id,omitempty"`
	PromptString *string            `bson:"prompt_string,omitempty" json:"prompt_string,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasTaskID reports whether the record carries a usable task id
func (r *PromptRecord) HasTaskID() bool {
	return r.TaskID != nil && *r.TaskID != ""
}

// DeriveForPrompt copies the record without its storage identity and binds it to a task and prompt
func (r *PromptRecord) DeriveForPrompt(taskID, prompt string, now time.Time) *PromptRecord {
	derived := *r
	derived.ID = primitive.NilObjectID
	derived.TaskID = &taskID
	derived.PromptString = &prompt
	derived.CreatedAt = now
	derived.UpdatedAt = now
	return &derived
}

// RecordProjectRequest is the body of POST /record_project
type RecordProjectRequest struct {
	SessionUID   string  `json:"session_uid"`
	UserAPIKey   string  `json:"user_api_key"`
	UserName     string  `json:"user_name"`
	UserID       string  `json:"user_id"`
	ProjectID    int64   `json:"project_id"`
	TaskID       *string `json:"task_id,omitempty"`
	PromptString *string `json:"prompt_string,omitempty"`
}

// UpsertResult reports whether an upsert created or updated a document
type UpsertResult struct {
	Created    bool
	DocumentID string
}
