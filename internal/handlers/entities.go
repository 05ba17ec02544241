package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rapprochement/rapprochement-api/internal/utils"
)

// EntityHandler lists the legal entities
type EntityHandler struct {
	coordinator Coordinator
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(coordinator Coordinator) *EntityHandler {
	return &EntityHandler{coordinator: coordinator}
}

// GetEntities handles GET /v1/entities
func (h *EntityHandler) GetEntities(c fiber.Ctx) error {
	entities, err := h.coordinator.Entities(c.Context())
	if err != nil {
		return err
	}
	return utils.ListResponse(c, "entities", entities, len(entities))
}
