package conversation

import "github.com/spec-kit/ticket-conversation/internal/domain"

// ComposerRegion is the derived three-way state deciding which of the two
// mutually exclusive lower UI regions is shown. Deriving it from ticket
// status and feedback existence in one place guarantees the reply box and
// the feedback prompt can never be visible together, and that a closed
// ticket always shows exactly one of feedback prompt or nothing.
type ComposerRegion string

const (
	RegionComposer       ComposerRegion = "composer"
	RegionFeedbackPrompt ComposerRegion = "feedback_prompt"
	RegionNone           ComposerRegion = "none"
)

// regionFor computes the composer region from the two gate inputs.
func regionFor(status domain.TicketStatus, feedbackGiven bool) ComposerRegion {
	if status != domain.TicketStatusClosed {
		return RegionComposer
	}
	if !feedbackGiven {
		return RegionFeedbackPrompt
	}
	return RegionNone
}

// ShouldPromptFeedback reports whether the post-resolution feedback prompt
// applies: the ticket is closed and no feedback has been recorded.
func ShouldPromptFeedback(status domain.TicketStatus, feedbackExists bool) bool {
	return status == domain.TicketStatusClosed && !feedbackExists
}

// Snapshot is the rendered surface of an open conversation view: header,
// attachments, ordered messages, composer state and the last notice.
type Snapshot struct {
	Ticket         domain.Ticket
	StatusHint     string
	PriorityHint   string
	Files          []domain.File
	Messages       []domain.Message
	Region         ComposerRegion
	Draft          string
	PendingUploads []string
	Sending        bool
	Degraded       bool
	LastNotice     *Notice
}
