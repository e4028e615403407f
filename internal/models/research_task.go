package models

import "time"

// ResearchTaskStatus represents the lifecycle state of a research task
type ResearchTaskStatus string

const (
	ResearchTaskStatusPending   ResearchTaskStatus = "pending"
	ResearchTaskStatusCompleted ResearchTaskStatus = "completed"
	ResearchTaskStatusFailed    ResearchTaskStatus = "failed"
	ResearchTaskStatusTimeout   ResearchTaskStatus = "timeout"
)

// IsTerminal reports whether no further transitions are allowed
func (s ResearchTaskStatus) IsTerminal() bool {
	return s != ResearchTaskStatusPending
}

// ResearchTask is a browser-automation research job delegated to the research provider
type ResearchTask struct {
	TaskID         string             `bson:"task_id" json:"task_id"`
	Scope          string             `bson:"scope" json:"-"`
	Goal           string             `bson:"goal" json:"goal"`
	ReturnData     []string           `bson:"return_data" json:"return_data"`
	Prompt         string             `bson:"prompt" json:"-"`
	ProviderTaskID string             `bson:"provider_task_id,omitempty" json:"provider_task_id,omitempty"`
	Status         ResearchTaskStatus `bson:"status" json:"status"`
	OutputData     *string            `bson:"output_data,omitempty" json:"output_data,omitempty"`
	Error          string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	CompletedAt    *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// ResearchTopicRequest is the body of POST /research_topic
type ResearchTopicRequest struct {
	Goal       string   `json:"goal"`
	ReturnData []string `json:"return_data"`
}

// ResearchTopicResponse is returned by research start and status calls
type ResearchTopicResponse struct {
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status"`
	OutputData  *string `json:"output_data,omitempty"`
	Message     string  `json:"message"`
	CreatedAt   string  `json:"created_at,omitempty"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

// ResearchWebhookPayload is posted by the research provider on completion
type ResearchWebhookPayload struct {
	TaskID string         `json:"task_id"`
	Status string         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  *string        `json:"error,omitempty"`
}
