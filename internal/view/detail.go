package view

import (
	"time"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
)

// MessageItem is one rendered entry of a conversation timeline.
type MessageItem struct {
	Sender      string
	Content     string
	SentAt      time.Time
	FromSupport bool
}

// Detail is the rendered state of one open conversation. ComposerEnabled
// drives whether an input is shown at all; a closed ticket shows a static
// notice instead. LatestMessageIndex lets the client scroll to the newest
// message whenever the count changes.
type Detail struct {
	ID                 string
	Subject            string
	Status             domain.TicketStatus
	Owner              string
	CreatedAt          time.Time
	LastUpdate         time.Time
	Messages           []MessageItem
	ComposerEnabled    bool
	CanClose           bool
	CanReopen          bool
	LatestMessageIndex int
}

// BuildDetail renders the selected ticket. A nil ticket yields nil, the
// empty-state placeholder.
func BuildDetail(ticket *domain.Ticket) *Detail {
	if ticket == nil {
		return nil
	}

	messages := make([]MessageItem, 0, len(ticket.Messages))
	for _, msg := range ticket.Messages {
		messages = append(messages, MessageItem{
			Sender:      msg.Sender,
			Content:     msg.Content,
			SentAt:      msg.Timestamp,
			FromSupport: msg.IsAdmin,
		})
	}

	open := ticket.Status == domain.TicketStatusOpen
	return &Detail{
		ID:                 ticket.ID,
		Subject:            ticket.Subject,
		Status:             ticket.Status,
		Owner:              ticket.UserID,
		CreatedAt:          ticket.CreatedAt,
		LastUpdate:         ticket.LastUpdate,
		Messages:           messages,
		ComposerEnabled:    open,
		CanClose:           open,
		CanReopen:          !open,
		LatestMessageIndex: len(messages) - 1,
	}
}
