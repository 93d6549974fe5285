package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartqueue/smartqueue/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, n *Request) error {
	n.ID = uuid.New()
	n.Status = "pending"
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_request (id, user_id, type, title, message, channel, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Channel, n.Status)
	return err
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, type, title, message, channel, status, created_at
		FROM notification_request WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Request
	for rows.Next() {
		var n Request
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Channel, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}
