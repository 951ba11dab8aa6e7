package cockroach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamchat-backend/internal/domain"
)

// MessageRepository handles message data operations in CockroachDB
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `
	message_id, channel_type, author_id, is_guest, guest_id, recipient_id,
	text, hidden_text, operation, attachment_ext, attachment_id, is_read,
	created_at, updated_at`

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (
			message_id, channel_type, author_id, is_guest, guest_id, recipient_id,
			text, hidden_text, operation, attachment_ext, attachment_id, is_read,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	ext, storageID := attachmentColumns(message.Attachment)
	_, err := r.pool.Exec(ctx, query,
		message.MessageID,
		string(message.ChannelType),
		message.AuthorID,
		message.IsGuest,
		nullableString(message.GuestID),
		message.RecipientID,
		message.Text,
		message.HiddenText,
		string(message.Operation),
		ext,
		storageID,
		message.IsRead,
		message.CreatedAt,
		message.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE message_id = $1`

	message, err := scanMessage(r.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// Update applies a patch when partyID is the author or recipient. Text only changes
// for the author.
func (r *MessageRepository) Update(ctx context.Context, messageID, partyID uuid.UUID, patch *domain.MessageUpdate) (*domain.Message, error) {
	query := `
		UPDATE messages SET
			text = CASE WHEN author_id = $2 THEN COALESCE($3, text) ELSE text END,
			is_read = COALESCE($4, is_read),
			updated_at = NOW()
		WHERE message_id = $1 AND (author_id = $2 OR recipient_id = $2)
		RETURNING ` + messageColumns

	message, err := scanMessage(r.pool.QueryRow(ctx, query, messageID, partyID, patch.Text, patch.IsRead))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return message, nil
}

// Delete removes a message when partyID is the author or recipient
func (r *MessageRepository) Delete(ctx context.Context, messageID, partyID uuid.UUID) (*domain.Message, error) {
	query := `
		DELETE FROM messages
		WHERE message_id = $1 AND (author_id = $2 OR recipient_id = $2)
		RETURNING ` + messageColumns

	message, err := scanMessage(r.pool.QueryRow(ctx, query, messageID, partyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}

	return message, nil
}

// DeleteThread removes every direct message between two users, both directions
func (r *MessageRepository) DeleteThread(ctx context.Context, userA, userB uuid.UUID) (int64, error) {
	query := `
		DELETE FROM messages
		WHERE channel_type = 'user'
			AND ((author_id = $1 AND recipient_id = $2) OR (author_id = $2 AND recipient_id = $1))
	`

	tag, err := r.pool.Exec(ctx, query, userA, userB)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thread: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListChannel retrieves a page of a channel. Ties on created_at are broken by id so
// pages never overlap.
func (r *MessageRepository) ListChannel(ctx context.Context, q *domain.ChannelQuery) ([]*domain.Message, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "channel_type = "+arg(string(q.ChannelType)))
	if q.PeerID != nil {
		owner, peer := arg(q.OwnerID), arg(*q.PeerID)
		where = append(where, fmt.Sprintf(
			"((author_id = %s AND recipient_id = %s) OR (author_id = %s AND recipient_id = %s))",
			owner, peer, peer, owner))
	} else {
		where = append(where, "recipient_id = "+arg(q.OwnerID))
	}
	if len(q.Exclude) > 0 {
		excluded := make([]string, len(q.Exclude))
		for i, op := range q.Exclude {
			excluded[i] = string(op)
		}
		where = append(where, "operation <> ALL("+arg(excluded)+")")
	}

	direction := "DESC"
	if q.Sort == domain.SortAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE %s
		ORDER BY created_at %s, message_id %s
		LIMIT %s OFFSET %s
	`, messageColumns, strings.Join(where, " AND "), direction, direction, arg(q.Limit), arg(q.Skip))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// FetchInboxWindow retrieves the newest direct messages involving userID, leaving
// out conversations with the excluded users
func (r *MessageRepository) FetchInboxWindow(ctx context.Context, userID uuid.UUID, exclude []uuid.UUID, limit int) ([]*domain.Message, error) {
	if exclude == nil {
		exclude = []uuid.UUID{}
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE channel_type = 'user'
			AND (author_id = $1 OR recipient_id = $1)
			AND NOT (recipient_id = ANY($2))
			AND (author_id IS NULL OR NOT (author_id = ANY($2)))
		ORDER BY created_at DESC, message_id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inbox: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MarkRead flips the newest unread direct messages addressed to recipientID,
// optionally only those from peerID
func (r *MessageRepository) MarkRead(ctx context.Context, recipientID uuid.UUID, peerID *uuid.UUID, limit int) (int64, error) {
	query := `
		UPDATE messages SET is_read = true, updated_at = NOW()
		WHERE message_id IN (
			SELECT message_id FROM messages
			WHERE channel_type = 'user'
				AND recipient_id = $1
				AND is_read = false
				AND ($2::UUID IS NULL OR author_id = $2)
			ORDER BY created_at DESC, message_id DESC
			LIMIT $3
		)
	`

	tag, err := r.pool.Exec(ctx, query, recipientID, peerID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	return tag.RowsAffected(), nil
}

// SetAttachment replaces the attachment reference of a message; nil clears it
func (r *MessageRepository) SetAttachment(ctx context.Context, messageID uuid.UUID, attachment *domain.Attachment) (*domain.Message, error) {
	query := `
		UPDATE messages SET attachment_ext = $2, attachment_id = $3, updated_at = NOW()
		WHERE message_id = $1
		RETURNING ` + messageColumns

	ext, storageID := attachmentColumns(attachment)
	message, err := scanMessage(r.pool.QueryRow(ctx, query, messageID, ext, storageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to set attachment: %w", err)
	}

	return message, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		message     domain.Message
		channelType string
		operation   string
		guestID     *string
		ext         *string
		storageID   *string
	)

	err := row.Scan(
		&message.MessageID,
		&channelType,
		&message.AuthorID,
		&message.IsGuest,
		&guestID,
		&message.RecipientID,
		&message.Text,
		&message.HiddenText,
		&operation,
		&ext,
		&storageID,
		&message.IsRead,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.ChannelType = domain.ChannelType(channelType)
	message.Operation = domain.Operation(operation)
	if guestID != nil {
		message.GuestID = *guestID
	}
	if ext != nil && storageID != nil {
		message.Attachment = &domain.Attachment{Extension: *ext, StorageID: *storageID}
	}

	return &message, nil
}

func collectMessages(rows pgx.Rows) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func attachmentColumns(attachment *domain.Attachment) (*string, *string) {
	if attachment == nil {
		return nil, nil
	}
	return &attachment.Extension, &attachment.StorageID
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
