package stream

import (
	"github.com/WhiteRose021/fieldx-website-sub000/internal/api/dto"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/ticketfeed"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/view"
)

// Command is a viewer action received over the stream.
type Command struct {
	Action  string `json:"action"` // select | create | send | close | reopen
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// SnapshotFrame pushes the full current view state. Always a complete
// replacement, never a diff.
type SnapshotFrame struct {
	Type     string                    `json:"type"`
	Tickets  []dto.TicketListItem      `json:"tickets"`
	Selected *dto.TicketDetailResponse `json:"selected"`
}

// ToastFrame is a transient notification.
type ToastFrame struct {
	Type  string `json:"type"`
	Level string `json:"level"` // progress | success | error
	Label string `json:"label"`
}

// FormErrorFrame reports field-level validation failures for a submitted
// form, distinct from toast notifications.
type FormErrorFrame struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func snapshotFrame(state ticketfeed.ViewState) SnapshotFrame {
	selectedID := ""
	if state.Selected != nil {
		selectedID = state.Selected.ID
	}

	items := view.BuildList(state.Tickets, view.FilterAll, "", selectedID)
	tickets := make([]dto.TicketListItem, 0, len(items))
	for _, item := range items {
		tickets = append(tickets, dto.TicketListItem{
			ID:           item.ID,
			Subject:      item.Subject,
			Status:       string(item.Status),
			Owner:        item.Owner,
			Preview:      item.Preview,
			MessageCount: item.MessageCount,
			LastUpdate:   item.LastUpdate,
			Selected:     item.Selected,
		})
	}

	frame := SnapshotFrame{Type: "snapshot", Tickets: tickets}
	if detail := view.BuildDetail(state.Selected); detail != nil {
		messages := make([]dto.MessageResponse, 0, len(detail.Messages))
		for _, msg := range detail.Messages {
			messages = append(messages, dto.MessageResponse{
				Sender:      msg.Sender,
				Content:     msg.Content,
				SentAt:      msg.SentAt,
				FromSupport: msg.FromSupport,
			})
		}
		frame.Selected = &dto.TicketDetailResponse{
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
	return frame
}
