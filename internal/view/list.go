package view

import (
	"strings"
	"time"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
)

// StatusFilter narrows the ticket list by lifecycle state.
type StatusFilter string

const (
	FilterAll    StatusFilter = "all"
	FilterOpen   StatusFilter = "open"
	FilterClosed StatusFilter = "closed"
)

// ParseStatusFilter maps a raw query value to a filter, defaulting to all.
func ParseStatusFilter(raw string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case FilterOpen:
		return FilterOpen
	case FilterClosed:
		return FilterClosed
	default:
		return FilterAll
	}
}

// ListItem is one row of the rendered ticket list.
type ListItem struct {
	ID           string
	Subject      string
	Status       domain.TicketStatus
	Owner        string
	Preview      string
	MessageCount int
	LastUpdate   time.Time
	Selected     bool
}

// BuildList renders the ticket collection for a viewer. It is a pure
// function of its inputs: snapshot order (last update descending) is
// preserved, filtering is entirely client-side, and the full filtered set
// is returned without pagination.
func BuildList(tickets []domain.Ticket, filter StatusFilter, search, selectedID string) []ListItem {
	search = strings.ToLower(strings.TrimSpace(search))

	items := make([]ListItem, 0, len(tickets))
	for i := range tickets {
		ticket := &tickets[i]
		if !matchesStatus(ticket, filter) {
			continue
		}
		if search != "" && !matchesSearch(ticket, search) {
			continue
		}
		items = append(items, ListItem{
			ID:           ticket.ID,
			Subject:      ticket.Subject,
			Status:       ticket.Status,
			Owner:        ticket.UserID,
			Preview:      latestContent(ticket),
			MessageCount: len(ticket.Messages),
			LastUpdate:   ticket.LastUpdate,
			Selected:     ticket.ID == selectedID,
		})
	}
	return items
}

func matchesStatus(ticket *domain.Ticket, filter StatusFilter) bool {
	switch filter {
	case FilterOpen:
		return ticket.Status == domain.TicketStatusOpen
	case FilterClosed:
		return ticket.Status == domain.TicketStatusClosed
	default:
		return true
	}
}

func matchesSearch(ticket *domain.Ticket, search string) bool {
	if strings.Contains(strings.ToLower(ticket.Subject), search) {
		return true
	}
	for _, msg := range ticket.Messages {
		if strings.Contains(strings.ToLower(msg.Content), search) {
			return true
		}
	}
	return false
}

func latestContent(ticket *domain.Ticket) string {
	if len(ticket.Messages) == 0 {
		return ""
	}
	return ticket.Messages[len(ticket.Messages)-1].Content
}
