package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/service"
)

// SlaHandler exposes SLA monitoring endpoints.
type SlaHandler struct {
	sla *service.SlaService
}

// NewSlaHandler constructs the handler.
func NewSlaHandler(sla *service.SlaService) *SlaHandler {
	return &SlaHandler{sla: sla}
}

// Summary GET /api/sla/summary.
func (h *SlaHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.sla.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// Refresh POST /api/sla/refresh recomputes deadlines against the live policy.
func (h *SlaHandler) Refresh(c *fiber.Ctx) error {
	updated, err := h.sla.RefreshAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": updated}})
}
