package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/pkg/util"
)

// TeamHandler manages the support team roster endpoints.
type TeamHandler struct {
	team *service.TeamService
}

// NewTeamHandler constructs the handler.
func NewTeamHandler(team *service.TeamService) *TeamHandler {
	return &TeamHandler{team: team}
}

// Create POST /api/team.
func (h *TeamHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTeamMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	member, err := h.team.Create(c.UserContext(), req.Name, req.Email, req.Role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": teamMemberResponse(member)})
}

// List GET /api/team.
func (h *TeamHandler) List(c *fiber.Ctx) error {
	members, err := h.team.List(c.UserContext(), c.Query("active") == "true")
	if err != nil {
		return err
	}
	items := make([]dto.TeamMemberResponse, 0, len(members))
	for i := range members {
		items = append(items, teamMemberResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/team/:id.
func (h *TeamHandler) Get(c *fiber.Ctx) error {
	member, err := h.team.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": teamMemberResponse(member)})
}

func teamMemberResponse(member *domain.TeamMember) dto.TeamMemberResponse {
	return dto.TeamMemberResponse{
		ID:        member.ID,
		Name:      member.Name,
		Email:     member.Email,
		Role:      member.Role,
		Active:    member.Active,
		CreatedAt: member.CreatedAt,
	}
}
