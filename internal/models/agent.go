package models

import "time"

// Agent is a caller-scoped conversational agent with its own instructions and memory.
// The public AgentID is the caller-chosen name; identity is (Scope, AgentID).
type Agent struct {
	AgentID      string         `bson:"agent_id" json:"agent_id"`
	Scope        string         `bson:"scope" json:"-"`
	AgentName    string         `bson:"agent_name" json:"agent_name"`
	Instructions string         `bson:"instructions" json:"instructions"`
	History      []AgentMessage `bson:"history,omitempty" json:"-"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at" json:"updated_at"`
}

// AgentMessage is one turn in an agent conversation, in OpenAI chat format
type AgentMessage struct {
	Role       string          `bson:"role" json:"role"` // system, user, assistant, tool
	Content    string          `bson:"content" json:"content"`
	Name       string          `bson:"name,omitempty" json:"name,omitempty"`
	ToolCallID string          `bson:"tool_call_id,omitempty" json:"tool_call_id,omitempty"`
	ToolCalls  []AgentToolCall `bson:"tool_calls,omitempty" json:"tool_calls,omitempty"`
}

// AgentToolCall is a function call requested by the model
type AgentToolCall struct {
	ID       string `bson:"id" json:"id"`
	Type     string `bson:"type" json:"type"`
	Function struct {
		Name      string `bson:"name" json:"name"`
		Arguments string `bson:"arguments" json:"arguments"`
	} `bson:"function" json:"function"`
}

// ToolDefinition exposes an HTTP endpoint of this service to agents
type ToolDefinition struct {
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	EndpointPath string         `yaml:"endpoint_path" json:"endpoint_path"`
	Method       string         `yaml:"method" json:"method"`
	Parameters   map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Type         string         `yaml:"-" json:"type"` // default, api_endpoint
}

// CreateAgentRequest is the body of POST /create-agent
type CreateAgentRequest struct {
	AgentName    string `json:"agent_name"`
	Instructions string `json:"instructions"`
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// ChatResponse is returned by POST /chat
type ChatResponse struct {
	AgentID        string  `json:"agent_id"`
	Response       string  `json:"response"`
	ConversationID *string `json:"conversation_id"`
}

// RegisterToolRequest is the body of POST /register-tool
type RegisterToolRequest struct {
	EndpointPath string         `json:"endpoint_path"`
	Method       string         `json:"method"`
	Description  string         `json:"description"`
	ToolName     string         `json:"tool_name,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}
