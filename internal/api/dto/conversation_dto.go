package dto

import (
	"time"

	"github.com/spec-kit/ticket-conversation/internal/domain"
)

// SendMessageRequest payload for a customer reply.
type SendMessageRequest struct {
	Body    string   `json:"body"`
	FileIDs []string `json:"file_ids"`
}

// UploadsCompleteRequest reports finished uploads from the upload collaborator.
type UploadsCompleteRequest struct {
	FileIDs []string `json:"file_ids"`
}

// TransitionRequest payload for close/reopen actions.
type TransitionRequest struct {
	Confirmed bool `json:"confirmed"`
}

// FeedbackRequest payload for post-resolution feedback.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// TicketHeader is the rendered ticket header.
type TicketHeader struct {
	ID           string                `json:"id"`
	Subject      string                `json:"subject"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	StatusHint   string                `json:"status_hint"`
	Priority     domain.TicketPriority `json:"priority"`
	PriorityHint string                `json:"priority_hint"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// MessageResponse is one conversation entry.
type MessageResponse struct {
	ID             string             `json:"id"`
	Body           string             `json:"body"`
	Role           domain.MessageRole `json:"role"`
	ReadByCustomer bool               `json:"read_by_customer"`
	ReadByAgent    bool               `json:"read_by_agent"`
	CreatedAt      time.Time          `json:"created_at"`
}

// FileResponse is one attachment row.
type FileResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// NoticeResponse is the last user-facing notification, if any.
type NoticeResponse struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// SnapshotResponse is the full rendered surface of a conversation view.
type SnapshotResponse struct {
	Ticket         TicketHeader      `json:"ticket"`
	Files          []FileResponse    `json:"files"`
	Messages       []MessageResponse `json:"messages"`
	Region         string            `json:"region"`
	Draft          string            `json:"draft"`
	PendingUploads []string          `json:"pending_uploads"`
	Sending        bool              `json:"sending"`
	Degraded       bool              `json:"degraded"`
	Notice         *NoticeResponse   `json:"notice,omitempty"`
}

// SessionResponse returns a newly opened view session.
type SessionResponse struct {
	SessionID string           `json:"session_id"`
	Snapshot  SnapshotResponse `json:"snapshot"`
}

// FileURLResponse resolves one attachment for download.
type FileURLResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
