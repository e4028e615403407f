package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"datapipe/internal/middleware"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
	"datapipe/internal/services"
)

// PromptHandler serves prompt application and project recording
type PromptHandler struct {
	orchestrator *pipeline.Orchestrator
	projects     *services.ProjectService
	metrics      *services.Metrics
}

// NewPromptHandler creates a new prompt handler
func NewPromptHandler(orchestrator *pipeline.Orchestrator, projects *services.ProjectService, metrics *services.Metrics) *PromptHandler {
	return &PromptHandler{orchestrator: orchestrator, projects: projects, metrics: metrics}
}

// ApplyPrompt runs a prompt over every combination of the input objects.
// The caller token doubles as the session id.
// POST /apply_prompt
func (h *PromptHandler) ApplyPrompt(c *fiber.Ctx) error {
	var req models.ApplyPromptRequest
	if err := c.BodyParser(&req); err != nil {
		h.metrics.RecordApply("invalid", 0)
		return badRequest(c, err)
	}

	scope := middleware.Scope(c)
	result, err := h.orchestrator.Apply(c.UserContext(), pipeline.ApplyRequest{
		Scope:              scope,
		SessionID:          scope,
		PromptString:       req.PromptString,
		CreatedObjectNames: req.CreatedObjectNames,
		Inputs:             req.Inputs,
	})
	if err != nil {
		processed := 0
		if result != nil {
			processed = result.CombinationsProcessed
		}
		h.metrics.RecordApply(pipeline.KindOf(err).String(), processed)
		return respondError(c, err)
	}
	h.metrics.RecordApply("success", result.CombinationsProcessed)

	return c.JSON(fiber.Map{
		"message":                fmt.Sprintf("Successfully processed %d combinations", result.CombinationsProcessed),
		"created_objects":        result.CreatedObjects,
		"combinations_processed": result.CombinationsProcessed,
		"task_id":                result.TaskID,
	})
}

// RecordProject upserts the session base record
// POST /record_project
func (h *PromptHandler) RecordProject(c *fiber.Ctx) error {
	var req models.RecordProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	result, err := h.projects.Record(c.UserContext(), middleware.Scope(c), req)
	if err != nil {
		return respondError(c, err)
	}

	if result.Created {
		return c.JSON(fiber.Map{
			"message":     "Project record created successfully",
			"project_id":  req.ProjectID,
			"document_id": result.DocumentID,
			"action":      "created",
		})
	}
	return c.JSON(fiber.Map{
		"message":    "Project record updated successfully",
		"project_id": req.ProjectID,
		"action":     "updated",
	})
}
