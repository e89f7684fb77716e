package domain

import "time"

// MessageRole indicates who authored a message.
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
	RoleAdmin    MessageRole = "admin"
)

// Message captures one entry in a ticket conversation thread.
//
// The two read markers are independent: this service only ever writes
// ReadByCustomer, ReadByAgent belongs to the agent console.
type Message struct {
	ID             string
	TicketID       string
	Body           string
	Role           MessageRole
	CreatedAt      time.Time
	ReadByCustomer bool
	ReadByAgent    bool
}

// FromCustomer reports whether the message was authored by the customer.
func (m *Message) FromCustomer() bool {
	return m.Role == RoleCustomer
}
