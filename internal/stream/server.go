package stream

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/auth"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/config"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/ticketfeed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server runs the websocket stream listener alongside the REST API. Each
// accepted connection gets its own ticket feed scoped by the token's role;
// the connection closing tears the feed down.
type Server struct {
	tokens  *auth.TokenManager
	tickets repository.TicketRepository
	svc     *service.TicketService
	logger  *zap.Logger
	httpSrv *http.Server
}

// NewServer builds the stream server.
func NewServer(cfg config.StreamConfig, tokens *auth.TokenManager, tickets repository.TicketRepository, svc *service.TicketService, logger *zap.Logger) *Server {
	s := &Server{
		tokens:  tokens,
		tickets: tickets,
		svc:     svc,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.Handler())
	s.httpSrv = &http.Server{Addr: cfg.Addr(), Handler: mux}
	return s
}

// Run blocks serving connections until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("stream listener started", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	viewer := claims.Viewer()
	session := newSession(uuid.NewString(), conn, s.logger)
	session.feed = ticketfeed.New(viewer, s.tickets, s.svc, session, s.logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := session.feed.Start(ctx); err != nil {
		s.logger.Warn("feed start failed", zap.String("viewer", viewer.Email), zap.Error(err))
		_ = conn.Close()
		return
	}

	s.logger.Info("stream session opened",
		zap.String("session", session.id),
		zap.String("viewer", viewer.Email),
		zap.String("role", string(viewer.Role)))
	session.run(ctx)
}
