package repository

import (
	"context"
	"fmt"
	"time"

	"devlink-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository handles database operations for chat threads and messages
type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// EnsureThread returns the thread for (lowID, highID), creating it with newID
// when none exists. Concurrent callers converge on the same row.
func (r *ChatRepository) EnsureThread(ctx context.Context, newID, lowID, highID string, now time.Time) (*models.ChatThread, error) {
	insert := `
		INSERT INTO chat_threads (id, user_low_id, user_high_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_low_id, user_high_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, newID, lowID, highID, now); err != nil {
		return nil, fmt.Errorf("failed to create chat thread: %w", err)
	}

	query := `
		SELECT id, user_low_id, user_high_id, created_at
		FROM chat_threads
		WHERE user_low_id = $1 AND user_high_id = $2
	`
	var thread models.ChatThread
	err := r.db.QueryRow(ctx, query, lowID, highID).Scan(
		&thread.ID, &thread.UserLowID, &thread.UserHighID, &thread.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat thread: %w", err)
	}
	return &thread, nil
}

// AppendMessage stores a message; the ID and timestamp are assigned by the database
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO chat_messages (thread_id, sender_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, msg.ThreadID, msg.SenderID, msg.Text).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages retrieves the messages of a thread oldest-first with sender names resolved
func (r *ChatRepository) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	query := `
		SELECT m.id, m.thread_id, m.sender_id, u.first_name, u.last_name, m.text, m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.thread_id = $1
		ORDER BY m.id ASC
	`
	rows, err := r.db.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var first, last string
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &first, &last, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		sender := models.User{FirstName: first, LastName: last}
		msg.SenderName = sender.DisplayName()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
