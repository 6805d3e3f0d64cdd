package ticketfeed

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/notify"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

// ViewState is what a viewer currently sees: the latest authoritative
// ticket list and the selected conversation, if any.
type ViewState struct {
	Tickets  []domain.Ticket
	Selected *domain.Ticket
}

// Feed owns the live ticket state for one viewer. It bridges subscription
// deliveries to view state: every delivery replaces the ticket list
// wholesale and the selected ticket is re-derived by id, so an open
// conversation keeps updating as the other party writes. Mutations carry
// no optimistic local update; the next snapshot is the single source of
// truth for what the viewer sees.
type Feed struct {
	repo     repository.TicketRepository
	service  *service.TicketService
	notifier notify.Notifier
	viewer   domain.Viewer
	logger   *zap.Logger

	mu         sync.Mutex
	tickets    []domain.Ticket
	selectedID string
	submitting bool
	cancel     func()

	updates chan ViewState
}

// New builds a feed for the viewer. Start must be called before the feed
// delivers anything.
func New(viewer domain.Viewer, repo repository.TicketRepository, svc *service.TicketService, notifier notify.Notifier, logger *zap.Logger) *Feed {
	return &Feed{
		repo:     repo,
		service:  svc,
		notifier: notifier,
		viewer:   viewer,
		logger:   logger,
		updates:  make(chan ViewState, 1),
	}
}

// Start opens the live subscription scoped by the viewer's role. The first
// snapshot arrives through Updates.
func (f *Feed) Start(ctx context.Context) error {
	cancel, err := f.repo.SubscribeTickets(ctx, service.ScopeFor(f.viewer), f.applySnapshot, f.subscriptionFailed)
	if err != nil {
		f.notifier.Error("Live ticket updates are unavailable")
		return err
	}
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	return nil
}

// Stop cancels the subscription. No further deliveries arrive after Stop
// returns; a stopped feed cannot be restarted.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Updates delivers view states. Only the latest state is retained: a slow
// consumer skips intermediate snapshots, never sees stale ones.
func (f *Feed) Updates() <-chan ViewState {
	return f.updates
}

// Snapshot returns the current view state.
func (f *Feed) Snapshot() ViewState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

// Select stores the viewer's chosen ticket id. Only the id is kept, never
// a detached copy, so the selection always reflects the freshest snapshot.
func (f *Feed) Select(id string) {
	f.mu.Lock()
	f.selectedID = id
	f.publishLocked()
	f.mu.Unlock()
}

// ClearSelection drops the selection.
func (f *Feed) ClearSelection() {
	f.Select("")
}

// Create validates and submits a new ticket. Validation failures are
// returned as field-level errors without any toast; store failures toast
// and leave the caller's form state untouched for retry. The created
// ticket appears in the list via the next subscription delivery.
func (f *Feed) Create(ctx context.Context, subject, message string) error {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	details := map[string]any{}
	if subject == "" {
		details["subject"] = "required"
	}
	if message == "" {
		details["message"] = "required"
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("subject and message are required", details)
	}

	if !f.beginSubmit() {
		return errorutil.NewConflict("a submission is already in progress", nil)
	}
	defer f.endSubmit()

	f.notifier.Progress("Creating your ticket")
	if err := f.service.Create(ctx, f.viewer, subject, message); err != nil {
		f.notifier.Error("Could not create the ticket")
		return err
	}
	f.notifier.Success("Ticket created")
	return nil
}

// Send appends a message to the selected ticket. Blank content is a silent
// no-op. A closed ticket rejects the send locally; the store is never
// invoked. The base for the append is the feed's current view of the
// selected messages, and the sent message shows up only once the store
// round-trips it back through the subscription.
func (f *Feed) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	f.mu.Lock()
	selected := f.lookupLocked(f.selectedID)
	if selected == nil {
		f.mu.Unlock()
		return errorutil.NewNotFound("ticket", nil)
	}
	if selected.Status == domain.TicketStatusClosed {
		f.mu.Unlock()
		f.notifier.Error("This ticket is closed")
		return errorutil.NewConflict("ticket is closed", nil)
	}
	ticketID := selected.ID
	base := append([]domain.Message(nil), selected.Messages...)
	f.mu.Unlock()

	if !f.beginSubmit() {
		return errorutil.NewConflict("a submission is already in progress", nil)
	}
	defer f.endSubmit()

	f.notifier.Progress("Sending message")
	if _, err := f.service.Append(ctx, f.viewer, ticketID, base, content); err != nil {
		f.notifier.Error("Could not send the message")
		return err
	}
	f.notifier.Success("Message sent")
	return nil
}

// Close sets the selected ticket's status to closed.
func (f *Feed) Close(ctx context.Context) error {
	return f.setStatus(ctx, domain.TicketStatusClosed, "Closing ticket", "Ticket closed", "Could not close the ticket")
}

// Reopen sets the selected ticket's status back to open.
func (f *Feed) Reopen(ctx context.Context) error {
	return f.setStatus(ctx, domain.TicketStatusOpen, "Reopening ticket", "Ticket reopened", "Could not reopen the ticket")
}

func (f *Feed) setStatus(ctx context.Context, status domain.TicketStatus, progress, success, failure string) error {
	f.mu.Lock()
	selected := f.lookupLocked(f.selectedID)
	if selected == nil {
		f.mu.Unlock()
		return errorutil.NewNotFound("ticket", nil)
	}
	ticketID := selected.ID
	f.mu.Unlock()

	f.notifier.Progress(progress)
	if err := f.service.SetStatus(ctx, f.viewer, ticketID, status); err != nil {
		f.notifier.Error(failure)
		return err
	}
	f.notifier.Success(success)
	return nil
}

// applySnapshot is the subscription callback: wholesale replacement of the
// list, then selection reconciliation by id — gone means unselected.
func (f *Feed) applySnapshot(tickets []domain.Ticket) {
	f.mu.Lock()
	f.tickets = tickets
	if f.selectedID != "" && f.lookupLocked(f.selectedID) == nil {
		f.selectedID = ""
	}
	f.publishLocked()
	f.mu.Unlock()
}

// subscriptionFailed surfaces the failure once. The feed is dead until the
// consumer builds a fresh one; there is no automatic reconnect.
func (f *Feed) subscriptionFailed(err error) {
	f.logger.Warn("ticket subscription failed", zap.String("viewer", f.viewer.Email), zap.Error(err))
	f.notifier.Error("Live ticket updates were interrupted")
}

func (f *Feed) lookupLocked(id string) *domain.Ticket {
	if id == "" {
		return nil
	}
	for i := range f.tickets {
		if f.tickets[i].ID == id {
			return &f.tickets[i]
		}
	}
	return nil
}

func (f *Feed) stateLocked() ViewState {
	state := ViewState{Tickets: f.tickets}
	if selected := f.lookupLocked(f.selectedID); selected != nil {
		copied := *selected
		state.Selected = &copied
	}
	return state
}

func (f *Feed) publishLocked() {
	state := f.stateLocked()
	for {
		select {
		case f.updates <- state:
			return
		default:
		}
		select {
		case <-f.updates:
		default:
		}
	}
}

func (f *Feed) beginSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return false
	}
	f.submitting = true
	return true
}

func (f *Feed) endSubmit() {
	f.mu.Lock()
	f.submitting = false
	f.mu.Unlock()
}
