package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"datapipe/internal/pipeline"
)

// respondError writes a classified error as {"error": kind, "detail": message}
func respondError(c *fiber.Ctx, err error) error {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		pe = pipeline.Internal(err, "internal error")
	}

	if pe.Kind == pipeline.KindInternal || pe.Kind == pipeline.KindUpstream {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(pe.StatusCode()).JSON(fiber.Map{
		"error":  pe.Kind.String(),
		"detail": pe.Message,
	})
}

// badRequest reports a malformed body
func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  pipeline.KindValidation.String(),
		"detail": "Invalid request body: " + err.Error(),
	})
}
