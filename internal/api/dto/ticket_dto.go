package dto

import "time"

// CreateTicketRequest opens a new ticket with its seed message.
type CreateTicketRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// CreateMessageRequest appends one message to a ticket.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// TicketListItem is one row of the rendered ticket list.
type TicketListItem struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	Owner        string    `json:"owner"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	LastUpdate   time.Time `json:"last_update"`
	Selected     bool      `json:"selected"`
}

// MessageResponse is one conversation entry.
type MessageResponse struct {
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sent_at"`
	FromSupport bool      `json:"from_support"`
}

// TicketDetailResponse is the rendered conversation view.
type TicketDetailResponse struct {
	ID                 string            `json:"id"`
	Subject            string            `json:"subject"`
	Status             string            `json:"status"`
	Owner              string            `json:"owner"`
	CreatedAt          time.Time         `json:"created_at"`
	LastUpdate         time.Time         `json:"last_update"`
	Messages           []MessageResponse `json:"messages"`
	ComposerEnabled    bool              `json:"composer_enabled"`
	CanClose           bool              `json:"can_close"`
	CanReopen          bool              `json:"can_reopen"`
	LatestMessageIndex int               `json:"latest_message_index"`
}
