package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/pkg/util"
)

// SettingsHandler exposes SLA policy and scheduler configuration.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSlaPolicy GET /api/settings/sla.
func (h *SettingsHandler) GetSlaPolicy(c *fiber.Ctx) error {
	policy, err := h.settings.SlaPolicy(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SlaPolicyResponse{
		HighHours:   policy.HighHours,
		MediumHours: policy.MediumHours,
		LowHours:    policy.LowHours,
	}})
}

// SetSlaPolicy PUT /api/settings/sla.
func (h *SettingsHandler) SetSlaPolicy(c *fiber.Ctx) error {
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	policy := domain.SlaPolicy{
		HighHours:   req.HighHours,
		MediumHours: req.MediumHours,
		LowHours:    req.LowHours,
	}
	if err := h.settings.SetSlaPolicy(c.UserContext(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SlaPolicyResponse{
		HighHours:   policy.HighHours,
		MediumHours: policy.MediumHours,
		LowHours:    policy.LowHours,
	}})
}

// GetScheduler GET /api/settings/scheduler.
func (h *SettingsHandler) GetScheduler(c *fiber.Ctx) error {
	settings, err := h.settings.Scheduler(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": settings})
}

// SetScheduler PUT /api/settings/scheduler.
func (h *SettingsHandler) SetScheduler(c *fiber.Ctx) error {
	var req dto.SchedulerRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	settings, err := h.settings.SetScheduler(c.UserContext(), req.Enabled, req.IntervalMinutes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": settings})
}
