package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one committed chat message row.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRepo persists chat messages and read cursors. The fanout core
// never writes here; the REST producer path commits a row first and
// publishes the envelope after.
type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Insert commits a message row and returns it with id and timestamp filled.
func (r *MessageRepo) Insert(ctx context.Context, roomID, senderID int64, content string) (*Message, error) {
	msg := &Message{RoomID: roomID, SenderID: senderID, Content: content}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (room_id, sender_id, content, kind)
		 VALUES ($1, $2, $3, 'text')
		 RETURNING id, created_at`,
		roomID, senderID, content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// List returns up to limit messages in a room, newest first, strictly older
// than cursor when cursor > 0. This is the re-fetch path that compensates
// for drop-oldest queue eviction.
func (r *MessageRepo) List(ctx context.Context, roomID int64, limit int, cursor int64) ([]Message, error) {
	query := `SELECT id, room_id, sender_id, content, created_at
	          FROM messages WHERE room_id = $1`
	args := []any{roomID}
	if cursor > 0 {
		query += ` AND id < $2`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AdvanceReadCursor moves the user's read cursor forward, never backward.
func (r *MessageRepo) AdvanceReadCursor(ctx context.Context, roomID, userID, lastReadMessageID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_participants
		 SET last_read_message_id = $1
		 WHERE room_id = $2 AND user_id = $3
		   AND (last_read_message_id IS NULL OR last_read_message_id < $1)`,
		lastReadMessageID, roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("advance read cursor: %w", err)
	}
	return nil
}
