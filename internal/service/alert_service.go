package service

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/config"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/events"
)

// AlertService forwards customer ticket activity to the support staff over
// Telegram so agents hear about new work without watching the console.
// Admin-originated events are skipped; agents caused those themselves.
type AlertService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.AlertsConfig
	bot        *tgbotapi.BotAPI
}

// NewAlertService creates the service. The Telegram bot is optional; when
// no token is configured alerts only reach the log.
func NewAlertService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.AlertsConfig) *AlertService {
	svc := &AlertService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
	if cfg.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			logger.Warn("telegram bot unavailable", zap.Error(err))
		} else {
			svc.bot = bot
			logger.Info("telegram staff alerts enabled", zap.String("bot", bot.Self.UserName))
		}
	}
	return svc
}

// RegisterHandlers subscribes to ticket events.
func (a *AlertService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketMessageAdded, a.handleTicketMessageAdded)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handleTicketStatusChanged)
}

func (a *AlertService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	a.logger.Info("TicketCreated", zap.String("owner", payload.OwnerID), zap.String("subject", payload.Subject))
	a.send(fmt.Sprintf("New ticket from %s: %s", payload.OwnerID, payload.Subject))
	return nil
}

func (a *AlertService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok || payload.FromSupport {
		return nil
	}
	a.logger.Info("TicketMessageAdded", zap.String("ticket_id", event.TicketID), zap.String("sender", payload.Sender))
	a.send(fmt.Sprintf("Reply from %s on ticket %s: %s", payload.Sender, event.TicketID, payload.Preview))
	return nil
}

func (a *AlertService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || event.Actor.Role == domain.RoleAdmin {
		return nil
	}
	a.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old", string(payload.OldStatus)),
		zap.String("new", string(payload.NewStatus)))
	if payload.NewStatus == domain.TicketStatusOpen {
		a.send(fmt.Sprintf("Ticket %s reopened by %s", event.TicketID, event.Actor.Email))
	}
	return nil
}

func (a *AlertService) send(text string) {
	if a.bot == nil || a.cfg.TelegramChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(a.cfg.TelegramChatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Warn("telegram alert failed", zap.Error(err))
	}
}
