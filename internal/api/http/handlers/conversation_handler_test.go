package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/api/dto"
	"github.com/spec-kit/ticket-conversation/internal/config"
	"github.com/spec-kit/ticket-conversation/internal/conversation"
	"github.com/spec-kit/ticket-conversation/internal/domain"
	"github.com/spec-kit/ticket-conversation/internal/storage"
	"github.com/spec-kit/ticket-conversation/internal/store"
	apperrors "github.com/spec-kit/ticket-conversation/pkg/util"
)

type stubSubscription struct {
	events chan domain.Message
	once   sync.Once
}

func (s *stubSubscription) Events() <-chan domain.Message { return s.events }
func (s *stubSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.events) })
}

type stubGateway struct {
	mu             sync.Mutex
	ticket         domain.Ticket
	messages       []domain.Message
	files          []domain.File
	feedbackExists bool
	ticketErr      error
	inserted       int
}

func newStubGateway(status domain.TicketStatus) *stubGateway {
	return &stubGateway{
		ticket: domain.Ticket{
			ID:        "t1",
			Subject:   "VPN will not connect",
			Status:    status,
			Priority:  domain.TicketPriorityHigh,
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func (g *stubGateway) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticketErr != nil {
		return nil, g.ticketErr
	}
	ticket := g.ticket
	ticket.ID = id
	return &ticket, nil
}

func (g *stubGateway) ListMessages(_ context.Context, _ string) ([]domain.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Message(nil), g.messages...), nil
}

func (g *stubGateway) ListTicketFiles(_ context.Context, _ string) ([]domain.File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.File(nil), g.files...), nil
}

func (g *stubGateway) FeedbackExists(_ context.Context, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.feedbackExists, nil
}

func (g *stubGateway) InsertMessage(_ context.Context, msg *domain.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inserted++
	msg.ID = "generated-1"
	msg.CreatedAt = time.Now()
	return nil
}

func (g *stubGateway) LinkFiles(_ context.Context, _ string, _ []string) error {
	return nil
}

func (g *stubGateway) UpdateTicketStatus(_ context.Context, _ string, status domain.TicketStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticket.Status = status
	return nil
}

func (g *stubGateway) MarkMessageRead(_ context.Context, _ string) error        { return nil }
func (g *stubGateway) MarkTicketMessagesRead(_ context.Context, _ string) error { return nil }

func (g *stubGateway) InsertFeedback(_ context.Context, fb *domain.Feedback) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedbackExists = true
	fb.ID = "fb-1"
	return nil
}

func (g *stubGateway) SubscribeMessageInserts(_ context.Context, _ string) (store.Subscription, error) {
	return &stubSubscription{events: make(chan domain.Message)}, nil
}

func newTestApp(t *testing.T, gw *stubGateway) *fiber.App {
	t.Helper()
	manager := conversation.NewManager(conversation.ManagerDependencies{
		Gateway: gw,
		Logger:  zap.NewNop(),
		IdleTTL: time.Minute,
	})
	t.Cleanup(manager.CloseAll)

	resolver := storage.NewPublicBucketResolver(config.StorageConfig{
		PublicBaseURL: "https://storage.example.com",
		Bucket:        "attachments",
	})

	app := fiber.New()
	app.Use(testErrorMiddleware())
	handler := NewConversationHandler(manager, resolver)
	app.Post("/tickets/:id/view", handler.OpenView)
	view := app.Group("/view/:session")
	view.Get("", handler.GetSnapshot)
	view.Delete("", handler.ReleaseView)
	view.Post("/messages", handler.SendMessage)
	view.Post("/uploads", handler.UploadsComplete)
	view.Post("/close", handler.CloseTicket)
	view.Post("/reopen", handler.ReopenTicket)
	view.Post("/feedback", handler.SubmitFeedback)
	view.Get("/files/:fileID/url", handler.FileURL)
	return app
}

func testErrorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}})
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	if resp.Body != nil {
		_, rerr := buf.ReadFrom(resp.Body)
		require.NoError(t, rerr)
	}
	return resp, buf.Bytes()
}

func openSession(t *testing.T, app *fiber.App) dto.SessionResponse {
	t.Helper()
	resp, raw := doJSON(t, app, http.MethodPost, "/tickets/t1/view", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var envelope struct {
		Data dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.NotEmpty(t, envelope.Data.SessionID)
	return envelope.Data
}

func TestOpenViewReturnsSnapshot(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	gw.messages = []domain.Message{{
		ID: "m1", TicketID: "t1", Body: "hi", Role: domain.RoleAgent,
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	app := newTestApp(t, gw)

	session := openSession(t, app)
	require.Equal(t, "composer", session.Snapshot.Region)
	require.Equal(t, "VPN will not connect", session.Snapshot.Ticket.Subject)
	require.Len(t, session.Snapshot.Messages, 1)

	resp, raw := doJSON(t, app, http.MethodGet, "/view/"+session.SessionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope struct {
		Data dto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, "composer", envelope.Data.Region)
}

func TestOpenViewUnknownTicket(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	gw.ticketErr = pgx.ErrNoRows
	app := newTestApp(t, gw)

	resp, _ := doJSON(t, app, http.MethodPost, "/tickets/missing/view", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessageRejectsEmptyPayload(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	app := newTestApp(t, gw)
	session := openSession(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/messages",
		dto.SendMessageRequest{Body: "   "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, gw.inserted)
}

func TestSendMessageSucceeds(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	app := newTestApp(t, gw)
	session := openSession(t, app)

	resp, raw := doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/messages",
		dto.SendMessageRequest{Body: "my vpn logs attached"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Data dto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Len(t, envelope.Data.Messages, 1)
	require.Equal(t, domain.RoleCustomer, envelope.Data.Messages[0].Role)
}

func TestLifecycleAndFeedbackFlow(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	app := newTestApp(t, gw)
	session := openSession(t, app)

	// Close is refused without explicit confirmation.
	resp, _ := doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/close",
		dto.TransitionRequest{Confirmed: false})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/close",
		dto.TransitionRequest{Confirmed: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var closed struct {
		Data dto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &closed))
	require.Equal(t, "feedback_prompt", closed.Data.Region)

	resp, raw = doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/feedback",
		dto.FeedbackRequest{Rating: 5, Comment: "solved fast"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var afterFeedback struct {
		Data dto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &afterFeedback))
	require.Equal(t, "none", afterFeedback.Data.Region)

	resp, raw = doJSON(t, app, http.MethodPost, "/view/"+session.SessionID+"/reopen",
		dto.TransitionRequest{Confirmed: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reopened struct {
		Data dto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &reopened))
	require.Equal(t, "composer", reopened.Data.Region)
}

func TestReleaseView(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	app := newTestApp(t, gw)
	session := openSession(t, app)

	resp, _ := doJSON(t, app, http.MethodDelete, "/view/"+session.SessionID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/view/"+session.SessionID, nil)
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestFileURLResolution(t *testing.T) {
	gw := newStubGateway(domain.TicketStatusOpen)
	gw.files = []domain.File{{
		ID: "f1", FileName: "logs.txt", ContentType: "text/plain", StoragePath: "t1/logs.txt",
	}}
	app := newTestApp(t, gw)
	session := openSession(t, app)

	resp, raw := doJSON(t, app, http.MethodGet, "/view/"+session.SessionID+"/files/f1/url", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope struct {
		Data dto.FileURLResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, "https://storage.example.com/object/public/attachments/t1/logs.txt", envelope.Data.URL)

	resp, _ = doJSON(t, app, http.MethodGet, "/view/"+session.SessionID+"/files/unknown/url", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
