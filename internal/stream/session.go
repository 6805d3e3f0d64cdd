package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/ticketfeed"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	maxCommand    = 64 * 1024
)

// Session is one live portal connection: it pumps feed view states and
// toast notifications out and viewer commands in. The session implements
// notify.Notifier so the feed's progress/success/error feedback reaches
// the viewer as toast frames.
type Session struct {
	id     string
	conn   *websocket.Conn
	feed   *ticketfeed.Feed
	logger *zap.Logger

	out  chan any
	done chan struct{}

	mu       sync.Mutex
	isClosed bool
}

func newSession(id string, conn *websocket.Conn, logger *zap.Logger) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		logger: logger,
		out:    make(chan any, 16),
		done:   make(chan struct{}),
	}
}

// Progress implements notify.Notifier.
func (s *Session) Progress(label string) {
	s.enqueue(ToastFrame{Type: "toast", Level: "progress", Label: label})
}

// Success implements notify.Notifier.
func (s *Session) Success(label string) {
	s.enqueue(ToastFrame{Type: "toast", Level: "success", Label: label})
}

// Error implements notify.Notifier.
func (s *Session) Error(label string) {
	s.enqueue(ToastFrame{Type: "toast", Level: "error", Label: label})
}

func (s *Session) enqueue(frame any) {
	select {
	case s.out <- frame:
	case <-s.done:
	default:
		s.logger.Warn("stream send buffer full, dropping frame", zap.String("session", s.id))
	}
}

func (s *Session) run(ctx context.Context) {
	incConnections()
	defer decConnections()

	go s.forwardUpdates(ctx)
	go s.writePump(ctx)
	s.readPump(ctx)
}

func (s *Session) forwardUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case state := <-s.feed.Updates():
			s.enqueue(snapshotFrame(state))
			addSnapshotDelivered()
		}
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.closeConn()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame := <-s.out:
			payload, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("marshal frame", zap.Error(err))
				continue
			}
			if err := s.write(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered in stream read", zap.Any("panic", r))
		}
		close(s.done)
		s.feed.Stop()
		s.closeConn()
		s.logger.Info("stream session closed", zap.String("session", s.id))
	}()

	s.conn.SetReadLimit(maxCommand)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					return
				}
			}
			s.logger.Warn("stream read failed", zap.String("session", s.id), zap.Error(err))
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.enqueue(FormErrorFrame{Type: "form_error", Message: "malformed command"})
			continue
		}
		s.handleCommand(ctx, cmd)
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd Command) {
	recordCommand(cmd.Action)

	var err error
	switch cmd.Action {
	case "select":
		if cmd.ID == "" {
			s.feed.ClearSelection()
		} else {
			s.feed.Select(cmd.ID)
		}
	case "create":
		err = s.feed.Create(ctx, cmd.Subject, cmd.Message)
	case "send":
		err = s.feed.Send(ctx, cmd.Content)
	case "close":
		err = s.feed.Close(ctx)
	case "reopen":
		err = s.feed.Reopen(ctx)
	default:
		s.enqueue(FormErrorFrame{Type: "form_error", Message: "unknown action"})
		return
	}

	if err != nil && errorutil.HasCode(err, "VALIDATION_FAILED") {
		domainErr := errorutil.ToDomainError(err)
		s.enqueue(FormErrorFrame{Type: "form_error", Message: domainErr.Message, Fields: domainErr.Details})
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := s.conn.WriteMessage(messageType, payload); err != nil {
		s.logger.Warn("stream write failed", zap.String("session", s.id), zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isClosed {
		s.isClosed = true
		_ = s.conn.Close()
	}
}
