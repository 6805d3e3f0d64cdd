package domain

import "time"

// TicketStatus enumerates lifecycle states for support tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// Valid reports whether the status is a known value.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusOpen || s == TicketStatusClosed
}

// Message is a single entry in a ticket conversation. The timestamp is
// captured by the client that authored the message; only the ticket-level
// LastUpdate carries the server clock.
type Message struct {
	Sender    string
	Content   string
	Timestamp time.Time
	IsAdmin   bool
}

// Ticket is the aggregate for a support conversation. Messages are
// append-only and never empty after creation.
type Ticket struct {
	ID         string
	Subject    string
	Status     TicketStatus
	UserID     string
	Messages   []Message
	CreatedAt  time.Time
	LastUpdate time.Time
}

// CanTransition reports whether the status change is one of the two
// permitted transitions (open to closed, closed to open).
func (t *Ticket) CanTransition(next TicketStatus) bool {
	switch t.Status {
	case TicketStatusOpen:
		return next == TicketStatusClosed
	case TicketStatusClosed:
		return next == TicketStatusOpen
	}
	return false
}
