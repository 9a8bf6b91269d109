package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-broker/internal/models"
)

// MessageRepository defines interactions for persisted messages.
type MessageRepository interface {
	Append(ctx context.Context, roomID, authorID int, body string) (models.Message, error)
	History(ctx context.Context, roomID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append durably stores a message and returns the stored record with the
// store-assigned id and timestamp.
func (r *MessageRepo) Append(ctx context.Context, roomID, authorID int, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, author_id, body) VALUES ($1, $2, $3)
         RETURNING id, room_id, author_id, body, created_at,
                   (SELECT username FROM users WHERE id = author_id) AS author`,
		roomID, authorID, body).StructScan(&msg)
	return msg, err
}

// History returns the room's messages oldest first. Read-only and safe to
// call repeatedly.
func (r *MessageRepo) History(ctx context.Context, roomID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.room_id, m.author_id, m.body, m.created_at, u.username AS author
         FROM messages m
         INNER JOIN users u ON u.id = m.author_id
         WHERE m.room_id=$1
         ORDER BY m.id ASC`, roomID)
	return msgs, err
}
