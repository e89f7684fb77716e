package store

import (
	"context"

	"github.com/spec-kit/ticket-conversation/internal/domain"
)

// Subscription is a live feed of committed message inserts for one ticket.
// Events are delivered in commit order. Unsubscribe is safe to call more
// than once; after it returns no further events are delivered and the
// Events channel is closed.
type Subscription interface {
	Events() <-chan domain.Message
	Unsubscribe()
}

// Gateway is the transactional store capability the conversation core
// consumes: point queries, ordered range queries, updates, inserts and a
// live insert subscription filtered by ticket.
type Gateway interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	ListMessages(ctx context.Context, ticketID string) ([]domain.Message, error)
	ListTicketFiles(ctx context.Context, ticketID string) ([]domain.File, error)
	FeedbackExists(ctx context.Context, ticketID string) (bool, error)

	InsertMessage(ctx context.Context, msg *domain.Message) error
	LinkFiles(ctx context.Context, ticketID string, fileIDs []string) error
	UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error
	MarkMessageRead(ctx context.Context, messageID string) error
	MarkTicketMessagesRead(ctx context.Context, ticketID string) error
	InsertFeedback(ctx context.Context, fb *domain.Feedback) error

	SubscribeMessageInserts(ctx context.Context, ticketID string) (Subscription, error)
}
