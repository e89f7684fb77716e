package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-conversation/internal/domain"
)

// postgresGateway implements Gateway against a pgx pool, delegating the
// live insert stream to a redis publisher.
type postgresGateway struct {
	pool   *pgxpool.Pool
	live   *LiveStream
	logger *zap.Logger
}

// NewPostgresGateway builds the production gateway.
func NewPostgresGateway(pool *pgxpool.Pool, live *LiveStream, logger *zap.Logger) Gateway {
	return &postgresGateway{pool: pool, live: live, logger: logger}
}

func (g *postgresGateway) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, subject, description, status, priority, created_at, updated_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := g.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (g *postgresGateway) ListMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, message_body, role, read_by_customer, read_by_agent, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := g.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Body,
			&msg.Role,
			&msg.ReadByCustomer,
			&msg.ReadByAgent,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (g *postgresGateway) ListTicketFiles(ctx context.Context, ticketID string) ([]domain.File, error) {
	const query = `
        SELECT f.id, f.file_name, f.content_type, f.storage_path, f.created_at
        FROM ticket_files tf
        JOIN files f ON f.id = tf.file_id
        WHERE tf.ticket_id=$1
        ORDER BY tf.created_at ASC`
	rows, err := g.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.File
	for rows.Next() {
		var file domain.File
		if err := rows.Scan(
			&file.ID,
			&file.FileName,
			&file.ContentType,
			&file.StoragePath,
			&file.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, file)
	}
	return result, rows.Err()
}

func (g *postgresGateway) FeedbackExists(ctx context.Context, ticketID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM ticket_feedback WHERE ticket_id=$1)`
	var exists bool
	if err := g.pool.QueryRow(ctx, query, ticketID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (g *postgresGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, message_body, role)
        VALUES ($1,$2,$3)
        RETURNING id, read_by_customer, read_by_agent, created_at`
	if err := g.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.Body,
		msg.Role,
	).Scan(&msg.ID, &msg.ReadByCustomer, &msg.ReadByAgent, &msg.CreatedAt); err != nil {
		return err
	}
	g.live.PublishInsert(ctx, msg)
	return nil
}

func (g *postgresGateway) LinkFiles(ctx context.Context, ticketID string, fileIDs []string) error {
	const query = `
        INSERT INTO ticket_files (ticket_id, file_id)
        VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	for _, fileID := range fileIDs {
		if _, err := g.pool.Exec(ctx, query, ticketID, fileID); err != nil {
			return err
		}
	}
	return nil
}

func (g *postgresGateway) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	const query = `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := g.pool.Exec(ctx, query, status, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (g *postgresGateway) MarkMessageRead(ctx context.Context, messageID string) error {
	// Monotonic: never unsets the marker, and marking twice is a no-op.
	const query = `
        UPDATE ticket_messages SET read_by_customer=TRUE
        WHERE id=$1 AND read_by_customer=FALSE`
	_, err := g.pool.Exec(ctx, query, messageID)
	return err
}

func (g *postgresGateway) MarkTicketMessagesRead(ctx context.Context, ticketID string) error {
	const query = `
        UPDATE ticket_messages SET read_by_customer=TRUE
        WHERE ticket_id=$1 AND role <> 'customer' AND read_by_customer=FALSE`
	_, err := g.pool.Exec(ctx, query, ticketID)
	return err
}

func (g *postgresGateway) InsertFeedback(ctx context.Context, fb *domain.Feedback) error {
	const query = `
        INSERT INTO ticket_feedback (ticket_id, rating, comment)
        VALUES ($1,$2,$3)
        ON CONFLICT (ticket_id) DO NOTHING
        RETURNING id, created_at`
	err := g.pool.QueryRow(ctx, query, fb.TicketID, fb.Rating, fb.Comment).
		Scan(&fb.ID, &fb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Feedback already recorded; existence is all the caller needs.
		return nil
	}
	return err
}

func (g *postgresGateway) SubscribeMessageInserts(ctx context.Context, ticketID string) (Subscription, error) {
	return g.live.Subscribe(ctx, ticketID)
}
