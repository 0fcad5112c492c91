package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepo answers the room-participation and account-status checks
// the session controller folds into its authorization decision.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_participants WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (r *MembershipRepo) IsActiveUser(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT is_active FROM users WHERE id = $1), FALSE)`,
		userID,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check active user: %w", err)
	}
	return active, nil
}

// ParticipantIDs lists every member of a room. Used by the send path to bump
// unread counters for recipients.
func (r *MembershipRepo) ParticipantIDs(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_participants WHERE room_id = $1`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
