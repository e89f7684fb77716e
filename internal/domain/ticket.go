package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusClosed  TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
)

// Ticket is the aggregate for a customer support conversation.
type Ticket struct {
	ID          string
	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsClosed reports whether the ticket has been resolved.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// StatusHint returns the customer-facing description for a status.
func StatusHint(s TicketStatus) string {
	switch s {
	case TicketStatusOpen:
		return "Ticket is active and awaiting response"
	case TicketStatusPending:
		return "Ticket is awaiting your response"
	case TicketStatusClosed:
		return "Ticket has been resolved"
	}
	return ""
}

// PriorityHint returns the customer-facing description for a priority.
func PriorityHint(p TicketPriority) string {
	switch p {
	case TicketPriorityHigh:
		return "Urgent issue requiring immediate attention"
	case TicketPriorityNormal:
		return "Standard priority issue"
	case TicketPriorityLow:
		return "Non-urgent issue that can be addressed later"
	}
	return ""
}
