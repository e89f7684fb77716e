package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-conversation/internal/api/dto"
	"github.com/spec-kit/ticket-conversation/internal/conversation"
	"github.com/spec-kit/ticket-conversation/internal/storage"
	apperrors "github.com/spec-kit/ticket-conversation/pkg/util"
)

// ConversationHandler exposes the ticket conversation view over HTTP.
type ConversationHandler struct {
	manager  *conversation.Manager
	resolver storage.Resolver
}

// NewConversationHandler constructs handler.
func NewConversationHandler(manager *conversation.Manager, resolver storage.Resolver) *ConversationHandler {
	return &ConversationHandler{manager: manager, resolver: resolver}
}

// OpenView POST /tickets/:id/view.
func (h *ConversationHandler) OpenView(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	if ticketID == "" {
		return apperrors.NewValidationError("ticket id required", nil)
	}
	session, err := h.manager.Open(c.UserContext(), ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.NewLoadFailure(err)
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewLoadFailure(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.SessionResponse{
		SessionID: session.ID,
		Snapshot:  snapshotResponse(snap),
	}})
}

// GetSnapshot GET /view/:session.
func (h *ConversationHandler) GetSnapshot(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewGone("view already released")
	}
	return c.JSON(fiber.Map{"data": snapshotResponse(snap)})
}

// ReleaseView DELETE /view/:session.
func (h *ConversationHandler) ReleaseView(c *fiber.Ctx) error {
	if !h.manager.Release(c.Params("session")) {
		return apperrors.NewGone("view session not found")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendMessage POST /view/:session/messages.
func (h *ConversationHandler) SendMessage(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := session.View.Send(c.UserContext(), req.Body, req.FileIDs); err != nil {
		return mapViewError("send message", err)
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewGone("view already released")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": snapshotResponse(snap)})
}

// UploadsComplete POST /view/:session/uploads.
func (h *ConversationHandler) UploadsComplete(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.UploadsCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.FileIDs) == 0 {
		return apperrors.NewValidationError("file_ids required", nil)
	}
	if err := session.View.AttachUploads(req.FileIDs); err != nil {
		return mapViewError("attach uploads", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloseTicket POST /view/:session/close.
func (h *ConversationHandler) CloseTicket(c *fiber.Ctx) error {
	return h.transition(c, func(view *conversation.View, confirmed bool) error {
		return view.CloseTicket(c.UserContext(), confirmed)
	}, "close ticket")
}

// ReopenTicket POST /view/:session/reopen.
func (h *ConversationHandler) ReopenTicket(c *fiber.Ctx) error {
	return h.transition(c, func(view *conversation.View, confirmed bool) error {
		return view.ReopenTicket(c.UserContext(), confirmed)
	}, "reopen ticket")
}

// SubmitFeedback POST /view/:session/feedback.
func (h *ConversationHandler) SubmitFeedback(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := session.View.SubmitFeedback(c.UserContext(), req.Rating, req.Comment); err != nil {
		return mapViewError("submit feedback", err)
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewGone("view already released")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": snapshotResponse(snap)})
}

// FileURL GET /view/:session/files/:fileID/url.
func (h *ConversationHandler) FileURL(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewGone("view already released")
	}
	fileID := c.Params("fileID")
	for _, file := range snap.Files {
		if file.ID != fileID {
			continue
		}
		url, err := h.resolver.PublicURL(c.UserContext(), file.StoragePath)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		return c.JSON(fiber.Map{"data": dto.FileURLResponse{ID: file.ID, URL: url}})
	}
	return apperrors.NewNotFound("attachment", map[string]any{"file_id": fileID})
}

func (h *ConversationHandler) session(c *fiber.Ctx) (*conversation.Session, error) {
	session, ok := h.manager.Get(c.Params("session"))
	if !ok {
		return nil, apperrors.NewGone("view session not found")
	}
	return session, nil
}

func (h *ConversationHandler) transition(c *fiber.Ctx, apply func(*conversation.View, bool) error, action string) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := apply(session.View, req.Confirmed); err != nil {
		return mapViewError(action, err)
	}
	snap, err := session.View.Snapshot()
	if err != nil {
		return apperrors.NewGone("view already released")
	}
	return c.JSON(fiber.Map{"data": snapshotResponse(snap)})
}

func mapViewError(action string, err error) error {
	switch {
	case errors.Is(err, conversation.ErrViewClosed):
		return apperrors.NewGone("view already released")
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrConfirmationRequired),
		errors.Is(err, conversation.ErrInvalidRating):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, conversation.ErrTicketClosed),
		errors.Is(err, conversation.ErrTicketNotClosed),
		errors.Is(err, conversation.ErrInvalidTransition),
		errors.Is(err, conversation.ErrFeedbackAlreadyGiven),
		errors.Is(err, conversation.ErrSendInFlight):
		return apperrors.NewConflict(err.Error(), nil)
	default:
		return apperrors.NewMutationFailure(action, err)
	}
}

func snapshotResponse(snap conversation.Snapshot) dto.SnapshotResponse {
	files := make([]dto.FileResponse, 0, len(snap.Files))
	for _, file := range snap.Files {
		files = append(files, dto.FileResponse{
			ID:          file.ID,
			FileName:    file.FileName,
			ContentType: file.ContentType,
		})
	}
	messages := make([]dto.MessageResponse, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		messages = append(messages, dto.MessageResponse{
			ID:             msg.ID,
			Body:           msg.Body,
			Role:           msg.Role,
			ReadByCustomer: msg.ReadByCustomer,
			ReadByAgent:    msg.ReadByAgent,
			CreatedAt:      msg.CreatedAt,
		})
	}
	var notice *dto.NoticeResponse
	if snap.LastNotice != nil {
		notice = &dto.NoticeResponse{
			Kind: string(snap.LastNotice.Kind),
			Text: snap.LastNotice.Text,
		}
	}
	return dto.SnapshotResponse{
		Ticket: dto.TicketHeader{
			ID:           snap.Ticket.ID,
			Subject:      snap.Ticket.Subject,
			Description:  snap.Ticket.Description,
			Status:       snap.Ticket.Status,
			StatusHint:   snap.StatusHint,
			Priority:     snap.Ticket.Priority,
			PriorityHint: snap.PriorityHint,
			CreatedAt:    snap.Ticket.CreatedAt,
			UpdatedAt:    snap.Ticket.UpdatedAt,
		},
		Files:          files,
		Messages:       messages,
		Region:         string(snap.Region),
		Draft:          snap.Draft,
		PendingUploads: snap.PendingUploads,
		Sending:        snap.Sending,
		Degraded:       snap.Degraded,
		Notice:         notice,
	}
}
