package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/domain"
	"github.com/spec-kit/ticket-conversation/internal/observability"
	"github.com/spec-kit/ticket-conversation/internal/store"
)

var (
	// ErrViewClosed reports an operation against a torn-down view.
	ErrViewClosed = errors.New("conversation view closed")
	// ErrEmptyMessage rejects a send with neither body nor attachments.
	ErrEmptyMessage = errors.New("message needs a body or at least one attachment")
	// ErrTicketClosed rejects composition on a closed ticket.
	ErrTicketClosed = errors.New("ticket is closed")
	// ErrTicketNotClosed rejects feedback while the ticket is still open.
	ErrTicketNotClosed = errors.New("ticket is not closed")
	// ErrSendInFlight rejects a second send while one is outstanding.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrConfirmationRequired guards the lifecycle transitions.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrFeedbackAlreadyGiven rejects duplicate feedback submission.
	ErrFeedbackAlreadyGiven = errors.New("feedback already recorded")
	// ErrInvalidTransition reports a lifecycle action unavailable from the
	// current status; a pending ticket deliberately has none.
	ErrInvalidTransition = errors.New("no lifecycle action available from current status")
	// ErrInvalidRating rejects an out-of-range feedback rating.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// ViewDependencies bundles collaborators for an open conversation view.
type ViewDependencies struct {
	Gateway  store.Gateway
	Notifier Notifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// View is a read-through, event-refreshed projection of one ticket
// conversation. All projection state is owned by a single loop goroutine;
// public methods enqueue closures onto that loop, and store calls run on
// the caller (or a spawned) goroutine with their completions posted back as
// closures. Completions arriving after Teardown are discarded.
type View struct {
	ticketID string
	gateway  store.Gateway
	notifier Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	actions   chan func()
	closed    chan struct{}
	closeOnce sync.Once
	sub       store.Subscription

	// loop-owned projection state
	ticket         *domain.Ticket
	thread         thread
	files          []domain.File
	feedbackGiven  bool
	draft          string
	pendingUploads []string
	sending        bool
	degraded       bool
	lastNotice     *Notice
}

// OpenView activates a view: it fetches the ticket, its messages, files and
// feedback existence, opens the live insert subscription and kicks off the
// bulk read pass. A failed fetch aborts activation; a failed subscription
// only degrades the view to fetch-only behavior.
func OpenView(ctx context.Context, ticketID string, deps ViewDependencies) (*View, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	ticket, err := deps.Gateway.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket: %w", err)
	}
	msgs, err := deps.Gateway.ListMessages(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	files, err := deps.Gateway.ListTicketFiles(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch files: %w", err)
	}
	feedbackExists, err := deps.Gateway.FeedbackExists(ctx, ticketID)
	if err != nil {
		// Advisory: without an answer the prompt simply assumes no
		// feedback yet, matching the load path's lenient handling.
		logger.Warn("fetch feedback existence", zap.String("ticket_id", ticketID), zap.Error(err))
		feedbackExists = false
	}

	viewCtx, cancel := context.WithCancel(context.Background())
	v := &View{
		ticketID:      ticketID,
		gateway:       deps.Gateway,
		notifier:      notifier,
		metrics:       deps.Metrics,
		logger:        logger,
		ctx:           viewCtx,
		cancel:        cancel,
		actions:       make(chan func()),
		closed:        make(chan struct{}),
		ticket:        ticket,
		thread:        newThread(),
		files:         files,
		feedbackGiven: feedbackExists,
	}
	v.thread.Init(msgs)

	sub, err := deps.Gateway.SubscribeMessageInserts(viewCtx, ticketID)
	if err != nil {
		v.degraded = true
		v.metrics.RecordViewEvent("stream_degraded")
		logger.Warn("live subscription unavailable, view degraded to fetch-only",
			zap.String("ticket_id", ticketID), zap.Error(err))
	} else {
		v.sub = sub
	}

	go v.run()
	if v.sub != nil {
		go v.pumpEvents(v.sub)
	}
	v.bulkMarkRead()

	return v, nil
}

// TicketID returns the ticket this view projects.
func (v *View) TicketID() string {
	return v.ticketID
}

// Teardown releases the view exactly once: the live subscription is
// unsubscribed, the loop stops, and any still-outstanding store call
// completions are dropped instead of applied.
func (v *View) Teardown() {
	v.closeOnce.Do(func() {
		v.cancel()
		close(v.closed)
		if v.sub != nil {
			v.sub.Unsubscribe()
		}
		v.logger.Debug("conversation view torn down", zap.String("ticket_id", v.ticketID))
	})
}

// Snapshot renders the current surface: header, attachments, messages and
// the derived composer region.
func (v *View) Snapshot() (Snapshot, error) {
	var snap Snapshot
	if !v.call(func() { snap = v.snapshot() }) {
		return Snapshot{}, ErrViewClosed
	}
	return snap, nil
}

// AttachUploads records newly uploaded file ids pending for the next send.
// This is the upload collaborator's completion callback.
func (v *View) AttachUploads(fileIDs []string) error {
	var verr error
	if !v.call(func() {
		if v.ticket.IsClosed() {
			verr = ErrTicketClosed
			return
		}
		v.pendingUploads = mergeIDs(v.pendingUploads, fileIDs)
	}) {
		return ErrViewClosed
	}
	return verr
}

// Send submits a customer message: a message insert when the body is
// non-empty and attachment links when any ids are pending, in that order,
// fail-fast. A no-op submission is rejected before any store interaction.
// Composer state is cleared only on success.
func (v *View) Send(ctx context.Context, body string, fileIDs []string) error {
	trimmed := strings.TrimSpace(body)
	var (
		attachIDs []string
		verr      error
	)
	if !v.call(func() {
		if v.ticket.IsClosed() {
			verr = ErrTicketClosed
			return
		}
		if v.sending {
			verr = ErrSendInFlight
			return
		}
		attachIDs = mergeIDs(v.pendingUploads, fileIDs)
		if trimmed == "" && len(attachIDs) == 0 {
			verr = ErrEmptyMessage
			return
		}
		v.sending = true
		v.draft = body
	}) {
		return ErrViewClosed
	}
	if verr != nil {
		return verr
	}

	var msg *domain.Message
	var err error
	if trimmed != "" {
		// The guard trims; the stored body stays as typed.
		msg = &domain.Message{
			TicketID: v.ticketID,
			Body:     body,
			Role:     domain.RoleCustomer,
		}
		err = v.gateway.InsertMessage(ctx, msg)
	}
	if err == nil && len(attachIDs) > 0 {
		// A failure here leaves the message persisted; reported as one
		// generic failure, not compensated.
		err = v.gateway.LinkFiles(ctx, v.ticketID, attachIDs)
	}

	v.perform(func() { v.finishSend(msg, attachIDs, err) })
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// CloseTicket transitions open -> closed after explicit confirmation. The
// new status is reflected optimistically; a failed update notifies the user
// and re-fetches the ticket to reconcile the projection.
func (v *View) CloseTicket(ctx context.Context, confirmed bool) error {
	return v.transition(ctx, confirmed,
		domain.TicketStatusOpen, domain.TicketStatusClosed,
		"close ticket", "Ticket closed successfully", "Failed to close ticket")
}

// ReopenTicket transitions closed -> open, same shape as CloseTicket.
func (v *View) ReopenTicket(ctx context.Context, confirmed bool) error {
	return v.transition(ctx, confirmed,
		domain.TicketStatusClosed, domain.TicketStatusOpen,
		"reopen ticket", "Ticket reopened successfully", "Failed to reopen ticket")
}

// SubmitFeedback records post-resolution feedback. Success flips the
// feedback gate without a re-fetch; existence is certain afterwards.
func (v *View) SubmitFeedback(ctx context.Context, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	var verr error
	if !v.call(func() {
		if !v.ticket.IsClosed() {
			verr = ErrTicketNotClosed
			return
		}
		if v.feedbackGiven {
			verr = ErrFeedbackAlreadyGiven
		}
	}) {
		return ErrViewClosed
	}
	if verr != nil {
		return verr
	}

	fb := &domain.Feedback{
		TicketID: v.ticketID,
		Rating:   rating,
		Comment:  strings.TrimSpace(comment),
	}
	err := v.gateway.InsertFeedback(ctx, fb)
	v.perform(func() {
		if err != nil {
			v.notify(NoticeFailure, "Failed to submit feedback")
			return
		}
		v.feedbackGiven = true
		v.notify(NoticeSuccess, "Thank you for your feedback")
	})
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	return nil
}

func (v *View) transition(ctx context.Context, confirmed bool, from, to domain.TicketStatus, action, okText, failText string) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	var verr error
	if !v.call(func() {
		if v.ticket.Status != from {
			verr = ErrInvalidTransition
			return
		}
		// Optimistic flip; reconciled by re-fetch if the update fails.
		v.ticket.Status = to
	}) {
		return ErrViewClosed
	}
	if verr != nil {
		return verr
	}

	err := v.gateway.UpdateTicketStatus(ctx, v.ticketID, to)
	v.perform(func() {
		if err != nil {
			v.notify(NoticeFailure, failText)
			return
		}
		v.notify(NoticeSuccess, okText)
	})
	if err != nil {
		v.refreshTicket(from)
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// refreshTicket re-fetches after a failed status update; if even the
// re-fetch fails the optimistic flip is rolled back to the prior status.
func (v *View) refreshTicket(fallback domain.TicketStatus) {
	go func() {
		ticket, err := v.gateway.GetTicket(v.ctx, v.ticketID)
		if err != nil {
			v.logger.Warn("refetch ticket after failed update",
				zap.String("ticket_id", v.ticketID), zap.Error(err))
			v.perform(func() { v.ticket.Status = fallback })
			return
		}
		v.perform(func() { v.ticket = ticket })
	}()
}

func (v *View) run() {
	for {
		select {
		case fn := <-v.actions:
			fn()
		case <-v.closed:
			return
		}
	}
}

// perform posts a mutation onto the loop; after teardown it is dropped.
func (v *View) perform(fn func()) bool {
	select {
	case v.actions <- fn:
		return true
	case <-v.closed:
		return false
	}
}

// call posts fn and waits for the loop to run it.
func (v *View) call(fn func()) bool {
	done := make(chan struct{})
	if !v.perform(func() { fn(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-v.closed:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func (v *View) pumpEvents(sub store.Subscription) {
	for msg := range sub.Events() {
		m := msg
		if !v.perform(func() { v.applyInsert(m) }) {
			return
		}
	}
	// The events channel closed underneath us. After Teardown the posted
	// closure is dropped; otherwise the transport dropped mid-session and
	// the view degrades to fetch-only.
	v.perform(func() {
		if v.degraded {
			return
		}
		v.degraded = true
		v.metrics.RecordViewEvent("stream_degraded")
		v.logger.Warn("live subscription ended, view degraded to fetch-only",
			zap.String("ticket_id", v.ticketID))
	})
}

// applyInsert reconciles one live insert event: idempotent upsert by
// identity, then an incremental read mark for non-customer authors so
// messages arriving after the bulk pass are not missed.
func (v *View) applyInsert(msg domain.Message) {
	if msg.TicketID != v.ticketID {
		return
	}
	if !v.thread.Upsert(msg) {
		v.metrics.RecordViewEvent("live_event_duplicate")
		return
	}
	v.metrics.RecordViewEvent("live_event_applied")
	if msg.FromCustomer() {
		return
	}
	go func() {
		if err := v.gateway.MarkMessageRead(v.ctx, msg.ID); err != nil {
			v.metrics.RecordViewEvent("read_mark_failed")
			v.logger.Warn("mark message read",
				zap.String("message_id", msg.ID), zap.Error(err))
			return
		}
		v.perform(func() { v.thread.MarkRead(msg.ID) })
	}()
}

// bulkMarkRead marks every non-customer message read in one store
// operation, then mirrors the result into the local projection. Failures
// are advisory: logged, never retried, never user-visible.
func (v *View) bulkMarkRead() {
	go func() {
		if err := v.gateway.MarkTicketMessagesRead(v.ctx, v.ticketID); err != nil {
			v.metrics.RecordViewEvent("read_mark_failed")
			v.logger.Warn("bulk mark messages read",
				zap.String("ticket_id", v.ticketID), zap.Error(err))
			return
		}
		v.perform(func() { v.thread.MarkNonCustomerRead() })
	}()
}

func (v *View) finishSend(msg *domain.Message, sentIDs []string, err error) {
	v.sending = false
	if err != nil {
		v.notify(NoticeFailure, "Failed to send message")
		return
	}
	if msg != nil {
		// Reflect the own insert immediately; the live event for it, if
		// delivered, dedupes against this upsert.
		v.applyInsert(*msg)
	}
	v.draft = ""
	// Success makes only the linked ids certain; uploads attached while
	// the send was in flight stay pending for the next one.
	v.pendingUploads = removeIDs(v.pendingUploads, sentIDs)
	v.notify(NoticeSuccess, "Message sent")
}

func (v *View) notify(kind NoticeKind, text string) {
	notice := Notice{Kind: kind, Text: text}
	v.lastNotice = &notice
	v.metrics.RecordViewEvent("notice_" + string(kind))
	v.notifier.Notify(notice)
}

func (v *View) snapshot() Snapshot {
	ticket := *v.ticket
	return Snapshot{
		Ticket:         ticket,
		StatusHint:     domain.StatusHint(ticket.Status),
		PriorityHint:   domain.PriorityHint(ticket.Priority),
		Files:          append([]domain.File(nil), v.files...),
		Messages:       v.thread.Messages(),
		Region:         regionFor(ticket.Status, v.feedbackGiven),
		Draft:          v.draft,
		PendingUploads: append([]string(nil), v.pendingUploads...),
		Sending:        v.sending,
		Degraded:       v.degraded,
		LastNotice:     v.lastNotice,
	}
}

func mergeIDs(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range extra {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func removeIDs(existing, remove []string) []string {
	if len(existing) == 0 || len(remove) == 0 {
		return existing
	}
	drop := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	var out []string
	for _, id := range existing {
		if _, ok := drop[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}
