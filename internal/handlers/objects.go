package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"datapipe/internal/middleware"
	"datapipe/internal/models"
	"datapipe/internal/services"
)

// ObjectHandler serves ingest and object lookups
type ObjectHandler struct {
	ingest  *services.IngestService
	objects *services.ObjectService
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(ingest *services.IngestService, objects *services.ObjectService) *ObjectHandler {
	return &ObjectHandler{ingest: ingest, objects: objects}
}

// InputData ingests strings, files or URLs into an object
// POST /input_data
func (h *ObjectHandler) InputData(c *fiber.Ctx) error {
	var req models.InputDataRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	processed, err := h.ingest.Ingest(c.UserContext(), middleware.Scope(c), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":         fmt.Sprintf("Successfully processed %d items", processed),
		"object_name":     req.CreatedObjectName,
		"processed_count": processed,
	})
}

// Get returns one object
// GET /objects/:name
func (h *ObjectHandler) Get(c *fiber.Ctx) error {
	obj, err := h.objects.Get(c.UserContext(), middleware.Scope(c), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(obj)
}

// List returns the caller's object names
// GET /objects
func (h *ObjectHandler) List(c *fiber.Ctx) error {
	objects, err := h.objects.List(c.UserContext(), middleware.Scope(c))
	if err != nil {
		return respondError(c, err)
	}

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	return c.JSON(fiber.Map{"objects": names})
}

// ReturnData returns an object with every object that shares a key with it
// GET /return_data/:name
func (h *ObjectHandler) ReturnData(c *fiber.Ctx) error {
	related, err := h.objects.Related(c.UserContext(), middleware.Scope(c), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(related)
}

// Delete removes an object
// DELETE /objects/:name
func (h *ObjectHandler) Delete(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.objects.Delete(c.UserContext(), middleware.Scope(c), name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Object %s deleted successfully", name)})
}
