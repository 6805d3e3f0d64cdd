package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/api/dto"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/auth"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/view"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

// TicketsHandler serves the ticket portal for both viewer kinds. The same
// engine backs the customer dashboard and the admin console; only the
// viewer scope differs, derived from the authenticated role.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService}
}

// List GET /tickets. Query params: status (all|open|closed), q (free text).
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}

	tickets, err := h.tickets.ListForViewer(c.UserContext(), viewer)
	if err != nil {
		return err
	}

	items := view.BuildList(tickets, view.ParseStatusFilter(c.Query("status")), c.Query("q"), c.Query("selected"))
	resp := make([]dto.TicketListItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, listItemResponse(item))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}

	ticket, err := h.tickets.GetForViewer(c.UserContext(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detailResponse(view.BuildDetail(ticket))})
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	if err := h.tickets.Create(c.UserContext(), viewer, req.Subject, req.Message); err != nil {
		return err
	}
	return c.SendStatus(http.StatusCreated)
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	msg, err := h.tickets.Append(c.UserContext(), viewer, c.Params("id"), nil, req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	return h.setStatus(c, domain.TicketStatusClosed)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	return h.setStatus(c, domain.TicketStatusOpen)
}

func (h *TicketsHandler) setStatus(c *fiber.Ctx, status domain.TicketStatus) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.tickets.SetStatus(c.UserContext(), viewer, c.Params("id"), status); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func viewerFromContext(c *fiber.Ctx) (domain.Viewer, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Viewer{}, errorutil.NewUnauthorized("authentication required")
	}
	return principal.Viewer(), nil
}

func listItemResponse(item view.ListItem) dto.TicketListItem {
	return dto.TicketListItem{
		ID:           item.ID,
		Subject:      item.Subject,
		Status:       string(item.Status),
		Owner:        item.Owner,
		Preview:      item.Preview,
		MessageCount: item.MessageCount,
		LastUpdate:   item.LastUpdate,
		Selected:     item.Selected,
	}
}

func detailResponse(detail *view.Detail) *dto.TicketDetailResponse {
	if detail == nil {
		return nil
	}
	messages := make([]dto.MessageResponse, 0, len(detail.Messages))
	for _, msg := range detail.Messages {
		messages = append(messages, dto.MessageResponse{
			Sender:      msg.Sender,
			Content:     msg.Content,
			SentAt:      msg.SentAt,
			FromSupport: msg.FromSupport,
		})
	}
	return &dto.TicketDetailResponse{
		ID:                 detail.ID,
		Subject:            detail.Subject,
		Status:             string(detail.Status),
		Owner:              detail.Owner,
		CreatedAt:          detail.CreatedAt,
		LastUpdate:         detail.LastUpdate,
		Messages:           messages,
		ComposerEnabled:    detail.ComposerEnabled,
		CanClose:           detail.CanClose,
		CanReopen:          detail.CanReopen,
		LatestMessageIndex: detail.LatestMessageIndex,
	}
}

func messageResponse(msg domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		Sender:      msg.Sender,
		Content:     msg.Content,
		SentAt:      msg.Timestamp,
		FromSupport: msg.IsAdmin,
	}
}
