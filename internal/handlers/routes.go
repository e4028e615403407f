package handlers

import (
	"github.com/gofiber/fiber/v2"

	"datapipe/internal/middleware"
)

// Router groups every handler of the service
type Router struct {
	Objects  *ObjectHandler
	Prompts  *PromptHandler
	Agents   *AgentHandler
	Research *ResearchHandler
	Health   *HealthHandler

	RateLimits   *middleware.RateLimitConfig
	ApplyCounter middleware.WindowCounter // nil disables the per-scope apply limit
}

// Register mounts the routes. Health and the provider webhook are public; everything else
// requires a caller token.
func (r *Router) Register(app *fiber.App) {
	limits := r.RateLimits
	if limits == nil {
		limits = middleware.DefaultRateLimitConfig()
	}

	app.Get("/health", r.Health.Handle)
	app.Post("/webhook/skyvern/:id", middleware.WebhookRateLimiter(limits), r.Research.Webhook)

	api := app.Group("", middleware.ScopeMiddleware())

	api.Post("/input_data", r.Objects.InputData)
	api.Get("/objects", r.Objects.List)
	api.Get("/objects/:name", r.Objects.Get)
	api.Delete("/objects/:name", r.Objects.Delete)
	api.Get("/return_data/:name", r.Objects.ReturnData)

	api.Post("/apply_prompt", middleware.ApplyRateLimiter(r.ApplyCounter, limits), r.Prompts.ApplyPrompt)
	api.Post("/record_project", r.Prompts.RecordProject)

	api.Post("/create-agent", r.Agents.CreateAgent)
	api.Post("/chat", r.Agents.Chat)
	api.Get("/agents", r.Agents.ListAgents)
	api.Get("/agents/:id", r.Agents.GetAgent)
	api.Delete("/agents/:id", r.Agents.DeleteAgent)
	api.Get("/tools", r.Agents.ListTools)
	api.Post("/register-tool", r.Agents.RegisterTool)

	api.Post("/research_topic", r.Research.ResearchTopic)
	api.Get("/research_status/:id", r.Research.Status)
	api.Get("/tasks/pending", r.Research.ListPending)
	api.Get("/tasks/completed", r.Research.ListCompleted)
	api.Delete("/tasks/:id", r.Research.Delete)
}
