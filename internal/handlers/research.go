package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"datapipe/internal/middleware"
	"datapipe/internal/models"
	"datapipe/internal/services"
)

// ResearchHandler serves research tasks and the provider webhook
type ResearchHandler struct {
	research *services.ResearchService
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(research *services.ResearchService) *ResearchHandler {
	return &ResearchHandler{research: research}
}

// ResearchTopic starts a research task
// POST /research_topic
func (h *ResearchHandler) ResearchTopic(c *fiber.Ctx) error {
	var req models.ResearchTopicRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	resp, err := h.research.Start(c.UserContext(), middleware.Scope(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Status polls a research task
// GET /research_status/:id
func (h *ResearchHandler) Status(c *fiber.Ctx) error {
	resp, err := h.research.Status(c.UserContext(), middleware.Scope(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Webhook receives the provider's result for a task. Unknown tasks are acknowledged
// with a 200 so the provider stops retrying.
// POST /webhook/skyvern/:id
func (h *ResearchHandler) Webhook(c *fiber.Ctx) error {
	taskID := c.Params("id")

	var payload models.ResearchWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("❌ [RESEARCH] Webhook payload for task %s rejected: %v", taskID, err)
		return badRequest(c, err)
	}

	accepted, err := h.research.HandleWebhook(c.UserContext(), taskID, c.Query("token"), payload)
	if errors.Is(err, services.ErrInvalidWebhookToken) {
		log.Printf("❌ [RESEARCH] Webhook verification failed for task %s: %v", taskID, err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":  "unauthorized",
			"detail": "Invalid webhook token",
		})
	}
	if err != nil {
		return respondError(c, err)
	}

	if !accepted {
		return c.JSON(fiber.Map{
			"status":  "unknown_task",
			"message": "Task ID not found in pending tasks",
		})
	}
	return c.JSON(fiber.Map{
		"status":      "received",
		"message":     fmt.Sprintf("Webhook received for task %s", taskID),
		"task_status": payload.Status,
	})
}

// ListPending returns the caller's pending tasks
// GET /tasks/pending
func (h *ResearchHandler) ListPending(c *fiber.Ctx) error {
	tasks, err := h.research.ListPending(c.UserContext(), middleware.Scope(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(taskListing("pending_tasks", tasks))
}

// ListCompleted returns the caller's finished tasks
// GET /tasks/completed
func (h *ResearchHandler) ListCompleted(c *fiber.Ctx) error {
	tasks, err := h.research.ListCompleted(c.UserContext(), middleware.Scope(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(taskListing("completed_tasks", tasks))
}

// Delete removes a task
// DELETE /tasks/:id
func (h *ResearchHandler) Delete(c *fiber.Ctx) error {
	taskID := c.Params("id")
	list, err := h.research.Delete(c.UserContext(), middleware.Scope(c), taskID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Task %s removed from %s tasks", taskID, list),
		"task_id": taskID,
	})
}

func taskListing(countKey string, tasks []*models.ResearchTask) fiber.Map {
	ids := make([]string, 0, len(tasks))
	byID := make(map[string]fiber.Map, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.TaskID)
		entry := fiber.Map{
			"created_at": task.CreatedAt,
			"goal":       task.Goal,
			"status":     task.Status,
		}
		if task.CompletedAt != nil {
			entry["completed_at"] = *task.CompletedAt
		}
		byID[task.TaskID] = entry
	}
	return fiber.Map{
		countKey:   len(tasks),
		"task_ids": ids,
		"tasks":    byID,
	}
}
