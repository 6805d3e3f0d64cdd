package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/docstore"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

const ticketsCollection = "tickets"

// ScopeAll subscribes to every ticket regardless of owner. Used by admin
// viewers; customers pass their own email as the scope.
const ScopeAll = "ALL"

// TicketRepository translates ticket operations into document store calls
// and shields the rest of the system from the raw document shape.
type TicketRepository interface {
	// SubscribeTickets opens a live query scoped to one owner email, or to
	// all tickets when scope is ScopeAll, ordered by last update descending.
	// Every change re-delivers the entire current result set.
	SubscribeTickets(ctx context.Context, scope string, onSnapshot func([]domain.Ticket), onError func(error)) (func(), error)
	// ListTickets runs the same query once.
	ListTickets(ctx context.Context, scope string) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	// CreateTicket writes a new open ticket seeded with exactly one message.
	// No local ticket object is fabricated; the next snapshot is the source
	// of truth for the caller.
	CreateTicket(ctx context.Context, ownerEmail, subject string, firstMessage domain.Message) error
	// AppendMessage overwrites the whole messages array with current plus
	// the new message. There is no server-side atomic append: concurrent
	// writers working from the same base last-write-win on the full array.
	AppendMessage(ctx context.Context, ticketID string, current []domain.Message, msg domain.Message) error
	SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error
}

// Stored document shape. Message timestamps are kept as second/nanosecond
// pairs because they originate from the authoring client, not the server.
type ticketDocument struct {
	Subject  string            `json:"subject"`
	Status   string            `json:"status"`
	UserID   string            `json:"userId"`
	Messages []messageDocument `json:"messages"`
}

type messageDocument struct {
	Sender    string            `json:"sender"`
	Content   string            `json:"content"`
	IsAdmin   bool              `json:"isAdmin"`
	Timestamp timestampDocument `json:"timestamp"`
}

type timestampDocument struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

type ticketRepository struct {
	store docstore.Store
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(store docstore.Store) TicketRepository {
	return &ticketRepository{store: store}
}

func (r *ticketRepository) SubscribeTickets(ctx context.Context, scope string, onSnapshot func([]domain.Ticket), onError func(error)) (func(), error) {
	cancel, err := r.store.Subscribe(ctx, scopeQuery(scope),
		func(docs []docstore.Document) {
			tickets, err := decodeTickets(docs)
			if err != nil {
				onError(errorutil.NewSubscriptionError(err))
				return
			}
			onSnapshot(tickets)
		},
		func(err error) {
			onError(errorutil.NewSubscriptionError(err))
		},
	)
	if err != nil {
		return nil, errorutil.NewSubscriptionError(err)
	}
	return cancel, nil
}

func (r *ticketRepository) ListTickets(ctx context.Context, scope string) ([]domain.Ticket, error) {
	docs, err := r.store.Find(ctx, scopeQuery(scope))
	if err != nil {
		return nil, errorutil.NewPersistenceError(err)
	}
	return decodeTickets(docs)
}

func (r *ticketRepository) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	doc, err := r.store.Get(ctx, ticketsCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, errorutil.NewPersistenceError(err)
	}
	ticket, err := decodeTicket(doc)
	if err != nil {
		return nil, errorutil.NewPersistenceError(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) CreateTicket(ctx context.Context, ownerEmail, subject string, firstMessage domain.Message) error {
	doc := ticketDocument{
		Subject:  subject,
		Status:   string(domain.TicketStatusOpen),
		UserID:   ownerEmail,
		Messages: []messageDocument{encodeMessage(firstMessage)},
	}
	if _, err := r.store.Insert(ctx, ticketsCollection, doc); err != nil {
		return errorutil.NewPersistenceError(err)
	}
	return nil
}

func (r *ticketRepository) AppendMessage(ctx context.Context, ticketID string, current []domain.Message, msg domain.Message) error {
	messages := make([]messageDocument, 0, len(current)+1)
	for _, m := range current {
		messages = append(messages, encodeMessage(m))
	}
	messages = append(messages, encodeMessage(msg))

	err := r.store.Overwrite(ctx, ticketsCollection, ticketID, map[string]any{
		"messages": messages,
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return errorutil.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return errorutil.NewPersistenceError(err)
	}
	return nil
}

func (r *ticketRepository) SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	err := r.store.Overwrite(ctx, ticketsCollection, ticketID, map[string]any{
		"status": string(status),
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return errorutil.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return errorutil.NewPersistenceError(err)
	}
	return nil
}

func scopeQuery(scope string) docstore.Query {
	q := docstore.Query{Collection: ticketsCollection}
	if scope != ScopeAll {
		q.FilterField = "userId"
		q.FilterValue = scope
	}
	return q
}

func decodeTickets(docs []docstore.Document) ([]domain.Ticket, error) {
	tickets := make([]domain.Ticket, 0, len(docs))
	for _, doc := range docs {
		ticket, err := decodeTicket(doc)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

func decodeTicket(doc docstore.Document) (domain.Ticket, error) {
	var raw ticketDocument
	if err := json.Unmarshal(doc.Data, &raw); err != nil {
		return domain.Ticket{}, err
	}

	messages := make([]domain.Message, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		messages = append(messages, domain.Message{
			Sender:    m.Sender,
			Content:   m.Content,
			IsAdmin:   m.IsAdmin,
			Timestamp: time.Unix(m.Timestamp.Seconds, m.Timestamp.Nanoseconds).UTC(),
		})
	}

	return domain.Ticket{
		ID:         doc.ID,
		Subject:    raw.Subject,
		Status:     domain.TicketStatus(raw.Status),
		UserID:     raw.UserID,
		Messages:   messages,
		CreatedAt:  doc.CreatedAt,
		LastUpdate: doc.UpdatedAt,
	}, nil
}

func encodeMessage(m domain.Message) messageDocument {
	return messageDocument{
		Sender:  m.Sender,
		Content: m.Content,
		IsAdmin: m.IsAdmin,
		Timestamp: timestampDocument{
			Seconds:     m.Timestamp.Unix(),
			Nanoseconds: int64(m.Timestamp.Nanosecond()),
		},
	}
}
