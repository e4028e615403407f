package handlers

import (
	"github.com/gofiber/fiber/v2"

	"datapipe/internal/middleware"
	"datapipe/internal/models"
	"datapipe/internal/services"
)

// AgentHandler serves agent management, chat and the tool registry
type AgentHandler struct {
	agents *services.AgentService
	tools  *services.ToolRegistry
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agents *services.AgentService, tools *services.ToolRegistry) *AgentHandler {
	return &AgentHandler{agents: agents, tools: tools}
}

// CreateAgent creates an agent for the caller
// POST /create-agent
func (h *AgentHandler) CreateAgent(c *fiber.Ctx) error {
	var req models.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	agent, err := h.agents.Create(c.UserContext(), middleware.Scope(c), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"agent_id":     agent.AgentID,
		"agent_name":   agent.AgentName,
		"message":      "Agent created successfully",
		"instructions": agent.Instructions,
	})
}

// Chat sends a message to one of the caller's agents
// POST /chat
func (h *AgentHandler) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	scope := middleware.Scope(c)
	resp, err := h.agents.Chat(c.UserContext(), scope, scope, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// ListAgents returns the caller's agents
// GET /agents
func (h *AgentHandler) ListAgents(c *fiber.Ctx) error {
	agents, err := h.agents.List(c.UserContext(), middleware.Scope(c))
	if err != nil {
		return respondError(c, err)
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	return c.JSON(agents)
}

// GetAgent returns one agent
// GET /agents/:id
func (h *AgentHandler) GetAgent(c *fiber.Ctx) error {
	agent, err := h.agents.Get(c.UserContext(), middleware.Scope(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(agent)
}

// DeleteAgent removes an agent
// DELETE /agents/:id
func (h *AgentHandler) DeleteAgent(c *fiber.Ctx) error {
	if err := h.agents.Delete(c.UserContext(), middleware.Scope(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Agent deleted successfully"})
}

// ListTools returns every tool agents can call
// GET /tools
func (h *AgentHandler) ListTools(c *fiber.Ctx) error {
	tools := h.tools.List()

	info := make([]fiber.Map, 0, len(tools))
	for _, tool := range tools {
		info = append(info, fiber.Map{
			"name":        tool.Name,
			"description": tool.Description,
			"type":        tool.Type,
		})
	}
	return c.JSON(fiber.Map{
		"total_tools": len(info),
		"tools":       info,
	})
}

// RegisterTool exposes another endpoint of this service to agents
// POST /register-tool
func (h *AgentHandler) RegisterTool(c *fiber.Ctx) error {
	var req models.RegisterToolRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	tool, err := h.tools.Register(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":   "Tool registered successfully",
		"tool_name": tool.Name,
	})
}
