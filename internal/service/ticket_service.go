package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/events"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/observability"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

// TicketService holds the mutation rules shared by the REST portal and the
// live ticket feed: ownership checks, the closed-ticket append guard, and
// event publication.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
	}
}

// ScopeFor returns the subscription scope for a viewer: admins watch every
// ticket, customers only their own.
func ScopeFor(viewer domain.Viewer) string {
	if viewer.IsAdmin() {
		return repository.ScopeAll
	}
	return viewer.Email
}

// Create opens a new ticket owned by the viewer, seeded with exactly one
// message. Admins do not open tickets; the admin console only answers them.
func (s *TicketService) Create(ctx context.Context, viewer domain.Viewer, subject, content string) error {
	if viewer.IsAdmin() {
		return errorutil.NewForbidden("tickets are opened by customers")
	}

	subject = strings.TrimSpace(subject)
	content = strings.TrimSpace(content)
	details := map[string]any{}
	if subject == "" {
		details["subject"] = "required"
	}
	if content == "" {
		details["message"] = "required"
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("subject and message are required", details)
	}

	seed := domain.Message{
		Sender:    viewer.Email,
		Content:   content,
		Timestamp: time.Now(),
		IsAdmin:   false,
	}
	err := s.tickets.CreateTicket(ctx, viewer.Email, subject, seed)
	observability.RecordTicketOp("create", err)
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:  events.EventTicketCreated,
		Actor: actorFor(viewer),
		Payload: events.TicketCreatedPayload{
			Subject: subject,
			OwnerID: viewer.Email,
		},
	})
	return nil
}

// ListForViewer returns the viewer's ticket collection, most recently
// active first.
func (s *TicketService) ListForViewer(ctx context.Context, viewer domain.Viewer) ([]domain.Ticket, error) {
	return s.tickets.ListTickets(ctx, ScopeFor(viewer))
}

// GetForViewer fetches one ticket, enforcing ownership for customers.
func (s *TicketService) GetForViewer(ctx context.Context, viewer domain.Viewer, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() && ticket.UserID != viewer.Email {
		return nil, errorutil.NewForbidden("access denied")
	}
	return ticket, nil
}

// Append adds a message to an open ticket. The base slice is the caller's
// latest view of the message array; passing nil uses the freshly loaded
// state. The write overwrites the whole array, so a stale base loses
// concurrent appends — the accepted trade-off of the embedded-array design.
func (s *TicketService) Append(ctx context.Context, viewer domain.Viewer, ticketID string, base []domain.Message, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errorutil.NewValidationError("message content is required", map[string]any{"content": "required"})
	}

	ticket, err := s.GetForViewer(ctx, viewer, ticketID)
	if err != nil {
		return domain.Message{}, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return domain.Message{}, errorutil.NewConflict("ticket is closed", nil)
	}
	if base == nil {
		base = ticket.Messages
	}

	msg := domain.Message{
		Sender:    viewer.Email,
		Content:   content,
		Timestamp: time.Now(),
		IsAdmin:   viewer.IsAdmin(),
	}
	err = s.tickets.AppendMessage(ctx, ticketID, base, msg)
	observability.RecordTicketOp("append", err)
	if err != nil {
		return domain.Message{}, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticketID,
		Actor:    actorFor(viewer),
		Payload: events.TicketMessageAddedPayload{
			Sender:      msg.Sender,
			FromSupport: msg.IsAdmin,
			Preview:     preview(msg.Content, 120),
		},
	})
	return msg, nil
}

// SetStatus writes the requested status. Setting the current status again
// is idempotent: the write still lands (refreshing the last-update stamp)
// but no status change event is published.
func (s *TicketService) SetStatus(ctx context.Context, viewer domain.Viewer, ticketID string, status domain.TicketStatus) error {
	if !status.Valid() {
		return errorutil.NewValidationError("unknown status", map[string]any{"status": string(status)})
	}

	ticket, err := s.GetForViewer(ctx, viewer, ticketID)
	if err != nil {
		return err
	}

	err = s.tickets.SetStatus(ctx, ticketID, status)
	observability.RecordTicketOp("set_status", err)
	if err != nil {
		return err
	}

	if ticket.Status != status {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticketID,
			Actor:    actorFor(viewer),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: ticket.Status,
				NewStatus: status,
			},
		})
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorFor(viewer domain.Viewer) events.Actor {
	return events.Actor{Email: viewer.Email, Role: viewer.Role}
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
