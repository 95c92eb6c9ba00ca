package domain

import "time"

// InboundEmail is an already-decoded message handed to the correlator by the
// mailbox collaborator. Protocol and MIME concerns end at this boundary.
type InboundEmail struct {
	SenderEmail string
	Subject     string
	Body        string
	MessageID   string
	InReplyTo   *string
	References  []string
	ReceivedAt  time.Time
}

// AiResult carries the classifier collaborator's analysis of a ticket.
type AiResult struct {
	Category      Category
	Urgency       Urgency
	Summary       string
	FixSteps      string
	DraftResponse string
}
