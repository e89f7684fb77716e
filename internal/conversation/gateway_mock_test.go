package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-conversation/internal/domain"
	"github.com/spec-kit/ticket-conversation/internal/store"
)

type fakeSubscription struct {
	events       chan domain.Message
	once         sync.Once
	closeEvents  sync.Once
	unsubscribed chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		events:       make(chan domain.Message),
		unsubscribed: make(chan struct{}),
	}
}

func (s *fakeSubscription) Events() <-chan domain.Message { return s.events }

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.unsubscribed) })
	s.closeEvents.Do(func() { close(s.events) })
}

// drop simulates the transport dying mid-session: the events channel
// closes without an Unsubscribe.
func (s *fakeSubscription) drop() {
	s.closeEvents.Do(func() { close(s.events) })
}

// deliver pushes one event and blocks until the view's pump accepts it.
func (s *fakeSubscription) deliver(msg domain.Message) {
	s.events <- msg
}

type mockGateway struct {
	mu sync.Mutex

	ticket         domain.Ticket
	messages       []domain.Message
	files          []domain.File
	feedbackExists bool

	ticketErr         error
	listErr           error
	filesErr          error
	feedbackErr       error
	insertErr         error
	linkErr           error
	updateErr         error
	markErr           error
	bulkErr           error
	insertFeedbackErr error
	subscribeErr      error

	// when set, InsertMessage stalls until the channel is closed
	insertBlock chan struct{}

	inserted      []domain.Message
	linked        [][]string
	statusUpdates []domain.TicketStatus
	markedRead    []string
	bulkMarkCalls int
	feedbacks     []domain.Feedback

	sub *fakeSubscription
}

func newMockGateway(status domain.TicketStatus, msgs ...domain.Message) *mockGateway {
	return &mockGateway{
		ticket: domain.Ticket{
			ID:        "t1",
			Subject:   "Printer on fire",
			Status:    status,
			Priority:  domain.TicketPriorityNormal,
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		messages: msgs,
	}
}

func (g *mockGateway) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticketErr != nil {
		return nil, g.ticketErr
	}
	ticket := g.ticket
	ticket.ID = id
	return &ticket, nil
}

func (g *mockGateway) ListMessages(_ context.Context, _ string) ([]domain.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]domain.Message(nil), g.messages...), nil
}

func (g *mockGateway) ListTicketFiles(_ context.Context, _ string) ([]domain.File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.filesErr != nil {
		return nil, g.filesErr
	}
	return append([]domain.File(nil), g.files...), nil
}

func (g *mockGateway) FeedbackExists(_ context.Context, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.feedbackErr != nil {
		return false, g.feedbackErr
	}
	return g.feedbackExists, nil
}

func (g *mockGateway) InsertMessage(_ context.Context, msg *domain.Message) error {
	g.mu.Lock()
	block := g.insertBlock
	g.mu.Unlock()
	if block != nil {
		<-block
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertErr != nil {
		return g.insertErr
	}
	msg.ID = fmt.Sprintf("generated-%d", len(g.inserted)+1)
	msg.CreatedAt = time.Now()
	g.inserted = append(g.inserted, *msg)
	return nil
}

func (g *mockGateway) LinkFiles(_ context.Context, _ string, fileIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.linkErr != nil {
		return g.linkErr
	}
	g.linked = append(g.linked, append([]string(nil), fileIDs...))
	return nil
}

func (g *mockGateway) UpdateTicketStatus(_ context.Context, _ string, status domain.TicketStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	g.ticket.Status = status
	g.statusUpdates = append(g.statusUpdates, status)
	return nil
}

func (g *mockGateway) MarkMessageRead(_ context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markErr != nil {
		return g.markErr
	}
	g.markedRead = append(g.markedRead, messageID)
	return nil
}

func (g *mockGateway) MarkTicketMessagesRead(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bulkErr != nil {
		return g.bulkErr
	}
	g.bulkMarkCalls++
	return nil
}

func (g *mockGateway) InsertFeedback(_ context.Context, fb *domain.Feedback) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertFeedbackErr != nil {
		return g.insertFeedbackErr
	}
	fb.ID = fmt.Sprintf("fb-%d", len(g.feedbacks)+1)
	fb.CreatedAt = time.Now()
	g.feedbacks = append(g.feedbacks, *fb)
	return nil
}

func (g *mockGateway) SubscribeMessageInserts(_ context.Context, _ string) (store.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subscribeErr != nil {
		return nil, g.subscribeErr
	}
	g.sub = newFakeSubscription()
	return g.sub, nil
}

func (g *mockGateway) insertedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inserted)
}

func (g *mockGateway) insertedMessages() []domain.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Message(nil), g.inserted...)
}

func (g *mockGateway) setInsertBlock(ch chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insertBlock = ch
}

func (g *mockGateway) linkedCalls() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.linked...)
}

func (g *mockGateway) readMarks() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.markedRead...)
}

func (g *mockGateway) bulkCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bulkMarkCalls
}

func (g *mockGateway) updates() []domain.TicketStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.TicketStatus(nil), g.statusUpdates...)
}

func (g *mockGateway) setTicketStatus(status domain.TicketStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticket.Status = status
}

func (g *mockGateway) setUpdateErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateErr = err
}

func (g *mockGateway) setInsertErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insertErr = err
}

func (g *mockGateway) setLinkErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.linkErr = err
}
