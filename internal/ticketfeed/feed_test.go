package ticketfeed

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

var (
	customerAlice = domain.Viewer{Email: "alice@example.com", Role: domain.RoleCustomer}
	customerBob   = domain.Viewer{Email: "bob@example.com", Role: domain.RoleCustomer}
	adminCarol    = domain.Viewer{Email: "carol@support.example.com", Role: domain.RoleAdmin}
)

// memoryTicketStore is an in-memory TicketRepository shared by every feed in
// a test. Writes re-deliver the full scoped result set to all subscribers,
// and AppendMessage keeps the overwrite-the-whole-array semantics of the
// real store so stale-base races behave the same way.
type memoryTicketStore struct {
	mu          sync.Mutex
	seq         int
	clock       time.Time
	tickets     map[string]*domain.Ticket
	subs        map[int]*storeSub
	nextSub     int
	muted       bool
	appendErr   error
	appendCalls int
}

type storeSub struct {
	scope      string
	onSnapshot func([]domain.Ticket)
	onError    func(error)
}

func newMemoryTicketStore() *memoryTicketStore {
	return &memoryTicketStore{
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		tickets: make(map[string]*domain.Ticket),
		subs:    make(map[int]*storeSub),
	}
}

func (s *memoryTicketStore) SubscribeTickets(ctx context.Context, scope string, onSnapshot func([]domain.Ticket), onError func(error)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &storeSub{scope: scope, onSnapshot: onSnapshot, onError: onError}
	s.subs[id] = sub
	snapshot := s.snapshotLocked(scope)
	s.mu.Unlock()

	onSnapshot(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *memoryTicketStore) ListTickets(ctx context.Context, scope string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(scope), nil
}

func (s *memoryTicketStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, errorutil.NewNotFound("ticket", map[string]any{"id": id})
	}
	copied := *ticket
	copied.Messages = append([]domain.Message(nil), ticket.Messages...)
	return &copied, nil
}

func (s *memoryTicketStore) CreateTicket(ctx context.Context, ownerEmail, subject string, firstMessage domain.Message) error {
	s.mu.Lock()
	s.seq++
	now := s.tickLocked()
	id := "T-" + strconv.Itoa(s.seq)
	s.tickets[id] = &domain.Ticket{
		ID:         id,
		Subject:    subject,
		Status:     domain.TicketStatusOpen,
		UserID:     ownerEmail,
		Messages:   []domain.Message{firstMessage},
		CreatedAt:  now,
		LastUpdate: now,
	}
	s.mu.Unlock()
	s.broadcast()
	return nil
}

func (s *memoryTicketStore) AppendMessage(ctx context.Context, ticketID string, current []domain.Message, msg domain.Message) error {
	s.mu.Lock()
	s.appendCalls++
	if s.appendErr != nil {
		err := s.appendErr
		s.mu.Unlock()
		return err
	}
	ticket, ok := s.tickets[ticketID]
	if !ok {
		s.mu.Unlock()
		return errorutil.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	ticket.Messages = append(append([]domain.Message(nil), current...), msg)
	ticket.LastUpdate = s.tickLocked()
	s.mu.Unlock()
	s.broadcast()
	return nil
}

func (s *memoryTicketStore) SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	s.mu.Lock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		s.mu.Unlock()
		return errorutil.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	ticket.Status = status
	ticket.LastUpdate = s.tickLocked()
	s.mu.Unlock()
	s.broadcast()
	return nil
}

func (s *memoryTicketStore) remove(id string) {
	s.mu.Lock()
	delete(s.tickets, id)
	s.mu.Unlock()
	s.broadcast()
}

func (s *memoryTicketStore) setMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	if !muted {
		s.broadcast()
	}
}

func (s *memoryTicketStore) failSubscriptions(err error) {
	s.mu.Lock()
	subs := make([]*storeSub, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.onError(err)
	}
}

func (s *memoryTicketStore) broadcast() {
	s.mu.Lock()
	if s.muted {
		s.mu.Unlock()
		return
	}
	type delivery struct {
		fn      func([]domain.Ticket)
		tickets []domain.Ticket
	}
	deliveries := make([]delivery, 0, len(s.subs))
	for _, sub := range s.subs {
		deliveries = append(deliveries, delivery{fn: sub.onSnapshot, tickets: s.snapshotLocked(sub.scope)})
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.fn(d.tickets)
	}
}

func (s *memoryTicketStore) snapshotLocked(scope string) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if scope != repository.ScopeAll && ticket.UserID != scope {
			continue
		}
		copied := *ticket
		copied.Messages = append([]domain.Message(nil), ticket.Messages...)
		out = append(out, copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdate.After(out[j].LastUpdate)
	})
	return out
}

func (s *memoryTicketStore) tickLocked() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type toast struct {
	level string
	label string
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (n *recordingNotifier) Progress(label string) { n.record("progress", label) }
func (n *recordingNotifier) Success(label string)  { n.record("success", label) }
func (n *recordingNotifier) Error(label string)    { n.record("error", label) }

func (n *recordingNotifier) record(level, label string) {
	n.mu.Lock()
	n.toasts = append(n.toasts, toast{level: level, label: label})
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]toast(nil), n.toasts...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.toasts = nil
	n.mu.Unlock()
}

func startFeed(t *testing.T, store *memoryTicketStore, viewer domain.Viewer) (*Feed, *recordingNotifier) {
	t.Helper()
	svc := service.NewTicketService(service.TicketDependencies{TicketRepo: store})
	notifier := &recordingNotifier{}
	feed := New(viewer, store, svc, notifier, zap.NewNop())
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(feed.Stop)
	return feed, notifier
}

func seedTicket(t *testing.T, store *memoryTicketStore, owner domain.Viewer, subject, content string) string {
	t.Helper()
	msg := domain.Message{Sender: owner.Email, Content: content, Timestamp: time.Now()}
	if err := store.CreateTicket(context.Background(), owner.Email, subject, msg); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	tickets, _ := store.ListTickets(context.Background(), repository.ScopeAll)
	return tickets[0].ID
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !errorutil.HasCode(err, code) {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestFeedScopesSnapshotsByViewer(t *testing.T) {
	store := newMemoryTicketStore()
	seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	seedTicket(t, store, customerBob, "login loop", "stuck on the sign-in page")

	aliceFeed, _ := startFeed(t, store, customerAlice)
	adminFeed, _ := startFeed(t, store, adminCarol)

	aliceState := aliceFeed.Snapshot()
	if len(aliceState.Tickets) != 1 {
		t.Fatalf("customer sees %d tickets, want 1", len(aliceState.Tickets))
	}
	if aliceState.Tickets[0].UserID != customerAlice.Email {
		t.Fatalf("customer sees ticket owned by %s", aliceState.Tickets[0].UserID)
	}

	adminState := adminFeed.Snapshot()
	if len(adminState.Tickets) != 2 {
		t.Fatalf("admin sees %d tickets, want 2", len(adminState.Tickets))
	}
}

func TestFeedCreateArrivesThroughSnapshot(t *testing.T) {
	store := newMemoryTicketStore()
	feed, notifier := startFeed(t, store, customerAlice)
	adminFeed, _ := startFeed(t, store, adminCarol)

	if err := feed.Create(context.Background(), "billing question", "was I charged twice?"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	state := feed.Snapshot()
	if len(state.Tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(state.Tickets))
	}
	ticket := state.Tickets[0]
	if ticket.Subject != "billing question" || ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if len(ticket.Messages) != 1 || ticket.Messages[0].Content != "was I charged twice?" {
		t.Fatalf("seed message missing: %+v", ticket.Messages)
	}
	if ticket.Messages[0].IsAdmin {
		t.Fatal("customer seed message flagged as support")
	}

	if got := len(adminFeed.Snapshot().Tickets); got != 1 {
		t.Fatalf("admin feed has %d tickets, want 1", got)
	}

	toasts := notifier.all()
	if len(toasts) != 2 || toasts[0].level != "progress" || toasts[1].level != "success" {
		t.Fatalf("unexpected toasts %+v", toasts)
	}
}

func TestFeedCreateValidation(t *testing.T) {
	store := newMemoryTicketStore()
	feed, notifier := startFeed(t, store, customerAlice)

	err := feed.Create(context.Background(), "   ", "")
	assertDomainCode(t, err, "VALIDATION_FAILED")

	domainErr := errorutil.ToDomainError(err)
	if domainErr.Details["subject"] != "required" || domainErr.Details["message"] != "required" {
		t.Fatalf("missing field details: %+v", domainErr.Details)
	}
	// Validation feedback is inline on the form, never a toast.
	if toasts := notifier.all(); len(toasts) != 0 {
		t.Fatalf("validation raised toasts: %+v", toasts)
	}
	if got := len(feed.Snapshot().Tickets); got != 0 {
		t.Fatalf("invalid create produced %d tickets", got)
	}
}

func TestFeedAdminCannotCreate(t *testing.T) {
	store := newMemoryTicketStore()
	feed, _ := startFeed(t, store, adminCarol)

	err := feed.Create(context.Background(), "subject", "message")
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestFeedSendAppendsToSelected(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, notifier := startFeed(t, store, customerAlice)
	feed.Select(id)
	notifier.reset()

	if err := feed.Send(context.Background(), "still happening today"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	state := feed.Snapshot()
	if state.Selected == nil {
		t.Fatal("selection lost after send")
	}
	msgs := state.Selected.Messages
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "it chews every page" {
		t.Fatalf("existing message disturbed: %+v", msgs[0])
	}
	last := msgs[1]
	if last.Content != "still happening today" || last.Sender != customerAlice.Email || last.IsAdmin {
		t.Fatalf("unexpected appended message %+v", last)
	}

	toasts := notifier.all()
	if len(toasts) != 2 || toasts[0] != (toast{"progress", "Sending message"}) || toasts[1] != (toast{"success", "Message sent"}) {
		t.Fatalf("unexpected toasts %+v", toasts)
	}
}

func TestFeedAdminReplyReachesCustomer(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")

	customerFeed, _ := startFeed(t, store, customerAlice)
	adminFeed, _ := startFeed(t, store, adminCarol)
	customerFeed.Select(id)
	adminFeed.Select(id)

	if err := adminFeed.Send(context.Background(), "try the rear tray"); err != nil {
		t.Fatalf("admin Send: %v", err)
	}

	state := customerFeed.Snapshot()
	if state.Selected == nil || len(state.Selected.Messages) != 2 {
		t.Fatalf("customer view not updated: %+v", state.Selected)
	}
	reply := state.Selected.Messages[1]
	if !reply.IsAdmin || reply.Sender != adminCarol.Email {
		t.Fatalf("reply not marked as support: %+v", reply)
	}
}

func TestFeedSendBlankIsSilentNoOp(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, notifier := startFeed(t, store, customerAlice)
	feed.Select(id)
	notifier.reset()

	if err := feed.Send(context.Background(), "   \n\t"); err != nil {
		t.Fatalf("blank send returned %v", err)
	}
	if store.appendCalls != 0 {
		t.Fatalf("blank send reached the store %d times", store.appendCalls)
	}
	if toasts := notifier.all(); len(toasts) != 0 {
		t.Fatalf("blank send raised toasts: %+v", toasts)
	}
}

func TestFeedSendWithoutSelection(t *testing.T) {
	store := newMemoryTicketStore()
	seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, _ := startFeed(t, store, customerAlice)

	err := feed.Send(context.Background(), "hello?")
	assertDomainCode(t, err, "NOT_FOUND")
	if store.appendCalls != 0 {
		t.Fatal("send without selection reached the store")
	}
}

func TestFeedSendOnClosedTicketNeverReachesStore(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	if err := store.SetStatus(context.Background(), id, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close ticket: %v", err)
	}

	feed, notifier := startFeed(t, store, customerAlice)
	feed.Select(id)
	notifier.reset()

	err := feed.Send(context.Background(), "one more thing")
	assertDomainCode(t, err, "CONFLICT")
	if store.appendCalls != 0 {
		t.Fatalf("closed send reached the store %d times", store.appendCalls)
	}

	toasts := notifier.all()
	if len(toasts) != 1 || toasts[0] != (toast{"error", "This ticket is closed"}) {
		t.Fatalf("unexpected toasts %+v", toasts)
	}
}

func TestFeedSendStoreFailure(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, notifier := startFeed(t, store, customerAlice)
	feed.Select(id)
	notifier.reset()
	store.appendErr = errorutil.NewPersistenceError(context.DeadlineExceeded)

	err := feed.Send(context.Background(), "is anyone there")
	assertDomainCode(t, err, "PERSISTENCE_FAILURE")

	toasts := notifier.all()
	if len(toasts) != 2 || toasts[1] != (toast{"error", "Could not send the message"}) {
		t.Fatalf("unexpected toasts %+v", toasts)
	}
	// No optimistic update: the failed message never shows up.
	state := feed.Snapshot()
	if len(state.Selected.Messages) != 1 {
		t.Fatalf("failed send altered the view: %+v", state.Selected.Messages)
	}
}

func TestFeedSelectionClearedWhenTicketDisappears(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, _ := startFeed(t, store, customerAlice)
	feed.Select(id)

	if feed.Snapshot().Selected == nil {
		t.Fatal("selection did not take")
	}

	store.remove(id)

	state := feed.Snapshot()
	if state.Selected != nil {
		t.Fatalf("selection survived removal: %+v", state.Selected)
	}
	if len(state.Tickets) != 0 {
		t.Fatalf("removed ticket still listed: %+v", state.Tickets)
	}
}

func TestFeedSelectionTracksLatestSnapshot(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, _ := startFeed(t, store, customerAlice)
	feed.Select(id)

	// A write from elsewhere must flow into the open conversation.
	err := store.AppendMessage(context.Background(), id,
		feed.Snapshot().Selected.Messages,
		domain.Message{Sender: adminCarol.Email, Content: "on it", Timestamp: time.Now(), IsAdmin: true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	state := feed.Snapshot()
	if len(state.Selected.Messages) != 2 {
		t.Fatalf("selection shows stale messages: %+v", state.Selected.Messages)
	}
}

func TestFeedStaleBaseLosesConcurrentAppend(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")

	customerFeed, _ := startFeed(t, store, customerAlice)
	adminFeed, _ := startFeed(t, store, adminCarol)
	customerFeed.Select(id)
	adminFeed.Select(id)

	// Suppress deliveries so both feeds keep the same one-message base.
	store.setMuted(true)
	if err := customerFeed.Send(context.Background(), "from the customer"); err != nil {
		t.Fatalf("customer Send: %v", err)
	}
	if err := adminFeed.Send(context.Background(), "from the agent"); err != nil {
		t.Fatalf("admin Send: %v", err)
	}
	store.setMuted(false)

	// Whole-array overwrite from a stale base: the second write wins and the
	// first append is silently gone.
	ticket, err := store.GetTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if len(ticket.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(ticket.Messages))
	}
	if ticket.Messages[1].Content != "from the agent" {
		t.Fatalf("unexpected surviving message %q", ticket.Messages[1].Content)
	}
	for _, msg := range ticket.Messages {
		if msg.Content == "from the customer" {
			t.Fatal("stale-base overwrite kept both appends")
		}
	}

	// Both viewers converge on the store's version of events.
	if got := customerFeed.Snapshot().Selected.Messages; len(got) != 2 {
		t.Fatalf("customer did not converge: %+v", got)
	}
}

func TestFeedCloseAndReopen(t *testing.T) {
	store := newMemoryTicketStore()
	id := seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, notifier := startFeed(t, store, customerAlice)
	feed.Select(id)
	notifier.reset()

	if err := feed.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := feed.Snapshot().Selected.Status; got != domain.TicketStatusClosed {
		t.Fatalf("status after close = %s", got)
	}

	if err := feed.Reopen(context.Background()); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if got := feed.Snapshot().Selected.Status; got != domain.TicketStatusOpen {
		t.Fatalf("status after reopen = %s", got)
	}

	toasts := notifier.all()
	want := []toast{
		{"progress", "Closing ticket"},
		{"success", "Ticket closed"},
		{"progress", "Reopening ticket"},
		{"success", "Ticket reopened"},
	}
	if len(toasts) != len(want) {
		t.Fatalf("got toasts %+v", toasts)
	}
	for i := range want {
		if toasts[i] != want[i] {
			t.Fatalf("toast %d = %+v, want %+v", i, toasts[i], want[i])
		}
	}
}

func TestFeedStopDetachesFromStore(t *testing.T) {
	store := newMemoryTicketStore()
	seedTicket(t, store, customerAlice, "printer jam", "it chews every page")
	feed, _ := startFeed(t, store, customerAlice)
	feed.Stop()

	seedTicket(t, store, customerAlice, "second issue", "another one")

	if got := len(feed.Snapshot().Tickets); got != 1 {
		t.Fatalf("stopped feed saw %d tickets, want 1", got)
	}
}

func TestFeedSubscriptionFailureRaisesOneToast(t *testing.T) {
	store := newMemoryTicketStore()
	_, notifier := startFeed(t, store, customerAlice)
	notifier.reset()

	store.failSubscriptions(errorutil.NewSubscriptionError(context.Canceled))

	toasts := notifier.all()
	if len(toasts) != 1 || toasts[0] != (toast{"error", "Live ticket updates were interrupted"}) {
		t.Fatalf("unexpected toasts %+v", toasts)
	}
}

func TestFeedUpdatesKeepOnlyLatestState(t *testing.T) {
	store := newMemoryTicketStore()
	feed, _ := startFeed(t, store, customerAlice)

	seedTicket(t, store, customerAlice, "first", "one")
	seedTicket(t, store, customerAlice, "second", "two")
	seedTicket(t, store, customerAlice, "third", "three")

	select {
	case state := <-feed.Updates():
		if len(state.Tickets) != 3 {
			t.Fatalf("drained state has %d tickets, want the latest 3", len(state.Tickets))
		}
	default:
		t.Fatal("no pending update")
	}
}
