package domain

import "time"

// Feedback is a post-resolution rating left by the customer.
//
// Only its existence gates the prompt; content is stored for the
// support team's reporting.
type Feedback struct {
	ID        string
	TicketID  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}
