package events

import (
	"time"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Actor identifies who triggered an event.
type Actor struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// Event represents a domain event emitted by the ticket service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject string `json:"subject"`
	OwnerID string `json:"owner_id"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	Sender      string `json:"sender"`
	FromSupport bool   `json:"from_support"`
	Preview     string `json:"preview"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
