package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/pkg/util"
)

// TicketsHandler exposes ticket lifecycle and queue endpoints.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
	queue     *service.QueueService
	bulk      *service.BulkService
	ingest    *service.IngestService
}

// NewTicketsHandler constructs the handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, queue *service.QueueService, bulk *service.BulkService, ingest *service.IngestService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, queue: queue, bulk: bulk, ingest: ingest}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.lifecycle.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	messages, err := h.lifecycle.Messages(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, messages)})
}

// Approve POST /api/tickets/:id/approve.
func (h *TicketsHandler) Approve(c *fiber.Ctx) error {
	var req dto.ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Approver) == "" {
		return util.NewValidationError("approver required", nil)
	}
	ticket, err := h.lifecycle.Approve(c.UserContext(), c.Params("id"), req.Approver)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Reject POST /api/tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	var req dto.ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Approver) == "" {
		return util.NewValidationError("approver required", nil)
	}
	ticket, err := h.lifecycle.Reject(c.UserContext(), c.Params("id"), req.Approver)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Send POST /api/tickets/:id/send.
func (h *TicketsHandler) Send(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Send(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Assign(c.UserContext(), c.Params("id"), req.MemberID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// UpdateDraft PUT /api/tickets/:id/draft.
func (h *TicketsHandler) UpdateDraft(c *fiber.Ctx) error {
	var req dto.UpdateDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.UpdateDraft(c.UserContext(), c.Params("id"), req.DraftResponse)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Bulk POST /api/tickets/bulk.
func (h *TicketsHandler) Bulk(c *fiber.Ctx) error {
	var req dto.BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	result, err := h.bulk.Apply(c.UserContext(), req.IDs, service.BulkAction(req.Action), req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// PriorityQueue GET /api/tickets/priority-queue.
func (h *TicketsHandler) PriorityQueue(c *fiber.Ctx) error {
	limit := parseIntQuery(c.Query("limit"), 0)
	tickets, err := h.queue.Next(c.UserContext(), limit)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CustomerHistory GET /api/tickets/customers/:email/history.
func (h *TicketsHandler) CustomerHistory(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Params("email"))
	if email == "" {
		return util.NewValidationError("email required", nil)
	}
	tickets, err := h.lifecycle.History(c.UserContext(), email)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Fetch POST /api/tickets/fetch triggers an ingestion pass.
func (h *TicketsHandler) Fetch(c *fiber.Ctx) error {
	report, err := h.ingest.FetchAndProcess(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if sender := c.Query("sender"); sender != "" {
		filter.SenderEmail = &sender
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.ApprovalStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.Category(strings.TrimSpace(part)))
		}
	}
	if urgencyStr := c.Query("urgency"); urgencyStr != "" {
		for _, part := range strings.Split(urgencyStr, ",") {
			filter.Urgencies = append(filter.Urgencies, domain.Urgency(strings.TrimSpace(part)))
		}
	}
	if breachedStr := c.Query("breached"); breachedStr != "" {
		breached := breachedStr == "true"
		filter.Breached = &breached
	}
	if assigned := c.Query("assigned_to"); assigned != "" {
		filter.AssignedTo = &assigned
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	filter.OpenOnly = c.Query("open") == "true"
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseIntQuery(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		SenderEmail:    ticket.SenderEmail,
		Subject:        ticket.Subject,
		ReceivedAt:     ticket.ReceivedAt,
		Category:       categoryString(ticket.Category),
		Urgency:        urgencyString(ticket.Urgency),
		AIProcessed:    ticket.AIProcessed,
		ApprovalStatus: string(ticket.ApprovalStatus),
		AssignedTo:     ticket.AssignedTo,
		SlaDeadline:    ticket.SlaDeadline,
		SlaBreached:    ticket.SlaBreached,
		SentAt:         ticket.SentAt,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, messages []domain.TicketMessage) dto.TicketDetailResponse {
	msgs := make([]dto.TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		msgs = append(msgs, dto.TicketMessageResponse{
			ID:          msg.ID,
			SenderEmail: msg.SenderEmail,
			Subject:     msg.Subject,
			Body:        msg.Body,
			IsIncoming:  msg.IsIncoming,
			CreatedAt:   msg.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		ThreadID:      ticket.ThreadID,
		MessageID:     ticket.MessageID,
		Summary:       ticket.Summary,
		FixSteps:      ticket.FixSteps,
		DraftResponse: ticket.DraftResponse,
		ApprovedBy:    ticket.ApprovedBy,
		ApprovedAt:    ticket.ApprovedAt,
		AssignedAt:    ticket.AssignedAt,
		Messages:      msgs,
	}
}

func categoryString(c *domain.Category) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func urgencyString(u *domain.Urgency) *string {
	if u == nil {
		return nil
	}
	s := string(*u)
	return &s
}
