package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketProcessed EventType = "ticket_processed"
	EventTicketApproved  EventType = "ticket_approved"
	EventTicketRejected  EventType = "ticket_rejected"
	EventResponseSent    EventType = "response_sent"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventSlaBreached     EventType = "sla_breached"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"received_at"`
}

// TicketProcessedPayload payload.
type TicketProcessedPayload struct {
	Category domain.Category `json:"category"`
	Urgency  domain.Urgency  `json:"urgency"`
	Deadline *time.Time      `json:"sla_deadline,omitempty"`
}

// ApprovalPayload covers approve/reject events.
type ApprovalPayload struct {
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ResponseSentPayload payload.
type ResponseSentPayload struct {
	SentAt      time.Time `json:"sent_at"`
	Recipient   string    `json:"recipient"`
	SlaBreached bool      `json:"sla_breached"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	MemberID *string `json:"member_id,omitempty"`
}

// SlaBreachedPayload payload.
type SlaBreachedPayload struct {
	Deadline time.Time      `json:"deadline"`
	Urgency  domain.Urgency `json:"urgency"`
}
