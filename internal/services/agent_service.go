package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"datapipe/internal/config"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/store"
)

const (
	agentSystemSuffix = "\nAlways be helpful, accurate, and use tools when needed."
	agentStopMessage  = "Agent stopped due to iteration limit or time limit."
	agentTemperature  = 0.3
)

// ChatCompleter performs a single chat completion round trip
type ChatCompleter interface {
	Chat(ctx context.Context, req ChatRequest) (*models.AgentMessage, error)
}

// AgentService runs caller-scoped agents that answer with the help of HTTP endpoint tools
type AgentService struct {
	agents        store.AgentStore
	llm           ChatCompleter
	tools         *ToolRegistry
	executor      *ToolExecutor
	metrics       *Metrics
	maxIterations int
	maxExecution  time.Duration
	memoryTokens  int
	now           func() time.Time
}

// NewAgentService creates an agent service
func NewAgentService(cfg *config.Config, agents store.AgentStore, llm ChatCompleter, tools *ToolRegistry, executor *ToolExecutor, metrics *Metrics) *AgentService {
	return &AgentService{
		agents:        agents,
		llm:           llm,
		tools:         tools,
		executor:      executor,
		metrics:       metrics,
		maxIterations: cfg.AgentMaxIterations,
		maxExecution:  cfg.AgentMaxExecution,
		memoryTokens:  cfg.AgentMemoryTokens,
		now:           time.Now,
	}
}

// Create stores a new agent. The agent id is the requested name, or a generated id when none is given.
// Creating an agent under an existing id replaces it.
func (s *AgentService) Create(ctx context.Context, scope string, req models.CreateAgentRequest) (*models.Agent, error) {
	if req.Instructions == "" {
		return nil, pipeline.Validation("instructions are required")
	}

	agentID := req.AgentName
	if agentID == "" {
		agentID = uuid.NewString()
	}

	now := s.now()
	agent := &models.Agent{
		AgentID:      agentID,
		Scope:        scope,
		AgentName:    agentID,
		Instructions: req.Instructions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.agents.SaveAgent(ctx, agent); err != nil {
		return nil, pipeline.Internal(err, "Failed to create agent")
	}

	log.Printf("🤖 [AGENT] Created agent %s", agentID)
	return agent, nil
}

// Get returns one agent
func (s *AgentService) Get(ctx context.Context, scope, agentID string) (*models.Agent, error) {
	agent, err := s.agents.GetAgent(ctx, scope, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pipeline.NotFound("Agent not found")
	}
	if err != nil {
		return nil, pipeline.Internal(err, "failed to load agent")
	}
	return agent, nil
}

// List returns the caller's agents
func (s *AgentService) List(ctx context.Context, scope string) ([]*models.Agent, error) {
	agents, err := s.agents.ListAgents(ctx, scope)
	if err != nil {
		return nil, pipeline.Internal(err, "failed to list agents")
	}
	return agents, nil
}

// Delete removes an agent and its memory
func (s *AgentService) Delete(ctx context.Context, scope, agentID string) error {
	deleted, err := s.agents.DeleteAgent(ctx, scope, agentID)
	if err != nil {
		return pipeline.Internal(err, "failed to delete agent")
	}
	if !deleted {
		return pipeline.NotFound("Agent not found")
	}
	return nil
}

// Chat sends a message to an agent and returns its final answer.
// Tool calls are made with the caller's token so they see the caller's objects.
func (s *AgentService) Chat(ctx context.Context, scope, token string, req models.ChatRequest) (*models.ChatResponse, error) {
	agent, err := s.Get(ctx, scope, req.AgentID)
	if err != nil {
		return nil, err
	}

	answer, err := s.run(ctx, agent, token, req.Message)
	if err != nil {
		return nil, err
	}

	agent.History = trimMemory(append(agent.History,
		models.AgentMessage{Role: "user", Content: req.Message},
		models.AgentMessage{Role: "assistant", Content: answer},
	), s.memoryTokens)
	agent.UpdatedAt = s.now()
	if err := s.agents.SaveAgent(ctx, agent); err != nil {
		log.Printf("⚠️  [AGENT] Failed to save memory for agent %s: %v", agent.AgentID, err)
	}

	return &models.ChatResponse{AgentID: agent.AgentID, Response: answer}, nil
}

// run drives the tool-calling loop until the model answers without tool calls
// or the iteration or time budget runs out
func (s *AgentService) run(ctx context.Context, agent *models.Agent, token, message string) (string, error) {
	loopCtx, cancel := context.WithTimeout(ctx, s.maxExecution)
	defer cancel()

	messages := make([]models.AgentMessage, 0, len(agent.History)+2)
	messages = append(messages, models.AgentMessage{Role: "system", Content: agent.Instructions + agentSystemSuffix})
	messages = append(messages, agent.History...)
	messages = append(messages, models.AgentMessage{Role: "user", Content: message})

	specs := s.tools.Specs()
	log.Printf("🤖 [AGENT] Agent %s turn: ~%d context tokens, ~%d tool tokens",
		agent.AgentID, EstimateMessagesTokens(messages), EstimateToolSpecTokens(specs))

	for iteration := 0; iteration < s.maxIterations; iteration++ {
		reply, err := s.llm.Chat(loopCtx, ChatRequest{
			Messages:    messages,
			Tools:       specs,
			Temperature: agentTemperature,
		})
		if err != nil {
			if ctx.Err() == nil && loopCtx.Err() != nil {
				log.Printf("⏱️  [AGENT] Agent %s hit the %s execution budget", agent.AgentID, s.maxExecution)
				return agentStopMessage, nil
			}
			return "", pipeline.Upstream(err, "Failed to process message")
		}

		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		messages = append(messages, *reply)
		for _, call := range reply.ToolCalls {
			messages = append(messages, models.AgentMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    s.callTool(loopCtx, call, token),
			})
		}
	}

	log.Printf("⚠️  [AGENT] Agent %s reached %d iterations", agent.AgentID, s.maxIterations)
	return agentStopMessage, nil
}

func (s *AgentService) callTool(ctx context.Context, call models.AgentToolCall, token string) string {
	tool, ok := s.tools.Get(call.Function.Name)
	if !ok {
		s.metrics.RecordToolCall(call.Function.Name, errors.New("unknown tool"))
		return "Unknown tool: " + call.Function.Name
	}

	result, err := s.executor.Execute(ctx, tool, call.Function.Arguments, token)
	s.metrics.RecordToolCall(tool.Name, err)
	if err != nil {
		log.Printf("⚠️  [AGENT] Tool %s failed: %v", tool.Name, err)
	}
	return result
}

// trimMemory drops the oldest exchanges until the estimated token count fits the limit
func trimMemory(history []models.AgentMessage, maxTokens int) []models.AgentMessage {
	if maxTokens <= 0 {
		return history
	}
	for len(history) > 2 && EstimateMessagesTokens(history) > maxTokens {
		history = history[2:]
	}
	return history
}
