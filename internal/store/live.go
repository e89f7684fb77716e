package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/domain"
)

// LiveStream carries committed message inserts to open conversation views
// over per-ticket redis pub/sub channels. Publishing happens after the
// postgres commit on the single insert path, so per-ticket delivery order
// is commit order.
type LiveStream struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLiveStream wraps a redis client as the insert-event transport.
func NewLiveStream(client *redis.Client, logger *zap.Logger) *LiveStream {
	return &LiveStream{client: client, logger: logger}
}

// insertEnvelope is the wire format for one committed ticket_messages row.
type insertEnvelope struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticket_id"`
	Body           string    `json:"message_body"`
	Role           string    `json:"role"`
	ReadByCustomer bool      `json:"read_by_customer"`
	ReadByAgent    bool      `json:"read_by_agent"`
	CreatedAt      time.Time `json:"created_at"`
}

func channelFor(ticketID string) string {
	return "ticket:" + ticketID + ":messages"
}

// PublishInsert broadcasts a committed message to subscribers of its ticket.
// Delivery is best effort; a publish failure only degrades liveness for
// watchers, the row itself is already persisted.
func (l *LiveStream) PublishInsert(ctx context.Context, msg *domain.Message) {
	if l == nil || l.client == nil {
		return
	}
	payload, err := json.Marshal(insertEnvelope{
		ID:             msg.ID,
		TicketID:       msg.TicketID,
		Body:           msg.Body,
		Role:           string(msg.Role),
		ReadByCustomer: msg.ReadByCustomer,
		ReadByAgent:    msg.ReadByAgent,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		l.logger.Error("marshal insert event", zap.Error(err))
		return
	}
	if err := l.client.Publish(ctx, channelFor(msg.TicketID), payload).Err(); err != nil {
		l.logger.Warn("publish insert event",
			zap.String("ticket_id", msg.TicketID),
			zap.Error(err))
	}
}

// Subscribe opens the live feed for one ticket. The returned subscription
// delivers events in publish order until Unsubscribe is called.
func (l *LiveStream) Subscribe(ctx context.Context, ticketID string) (Subscription, error) {
	if l == nil || l.client == nil {
		return nil, redis.ErrClosed
	}
	pubsub := l.client.Subscribe(ctx, channelFor(ticketID))
	// Force the subscription round trip so a broken transport surfaces
	// here instead of silently delivering nothing.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &liveSubscription{
		pubsub: pubsub,
		events: make(chan domain.Message),
		quit:   make(chan struct{}),
		logger: l.logger,
	}
	go sub.pump()
	return sub, nil
}

type liveSubscription struct {
	pubsub *redis.PubSub
	events chan domain.Message
	quit   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (s *liveSubscription) Events() <-chan domain.Message {
	return s.events
}

// Unsubscribe tears the feed down exactly once; the pump goroutine then
// drains and closes the events channel.
func (s *liveSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		_ = s.pubsub.Close()
	})
}

func (s *liveSubscription) pump() {
	defer close(s.events)
	for raw := range s.pubsub.Channel() {
		var env insertEnvelope
		if err := json.Unmarshal([]byte(raw.Payload), &env); err != nil {
			s.logger.Warn("discard malformed insert event", zap.Error(err))
			continue
		}
		msg := domain.Message{
			ID:             env.ID,
			TicketID:       env.TicketID,
			Body:           env.Body,
			Role:           domain.MessageRole(env.Role),
			ReadByCustomer: env.ReadByCustomer,
			ReadByAgent:    env.ReadByAgent,
			CreatedAt:      env.CreatedAt,
		}
		select {
		case s.events <- msg:
		case <-s.quit:
			return
		}
	}
}
