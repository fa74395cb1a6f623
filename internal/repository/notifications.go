package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bookstore/internal/model"
)

const notificationColumns = `id, member_id, order_id, message, type, created_at, is_read, delivered_at`

// CreateNotification сохраняет непрочитанное уведомление участника.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, member_id, order_id, message, type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		n.ID, n.MemberID, n.OrderID, n.Message, string(n.Type),
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.IsRead = false
	return nil
}

// MarkNotificationDelivered отмечает успешную доставку уведомления в живое соединение.
func (r *PostgresRepository) MarkNotificationDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	return nil
}

// MarkNotificationRead отмечает уведомление участника прочитанным.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, memberID int64, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND member_id = $2`,
		id, memberID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ListNotificationsByMember возвращает уведомления участника, начиная с последних.
func (r *PostgresRepository) ListNotificationsByMember(ctx context.Context, memberID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE member_id = $1
		 ORDER BY created_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	return collectNotifications(rows)
}

// ListUndeliveredNotifications возвращает недоставленные уведомления, созданные
// в промежутке [since, before].
func (r *PostgresRepository) ListUndeliveredNotifications(ctx context.Context, since, before time.Time, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE delivered_at IS NULL AND created_at >= $1 AND created_at <= $2
		 ORDER BY created_at
		 LIMIT $3`,
		since, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select undelivered notifications: %w", err)
	}
	return collectNotifications(rows)
}

func collectNotifications(rows pgx.Rows) ([]model.Notification, error) {
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n   model.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.MemberID, &n.OrderID, &n.Message, &typ, &n.CreatedAt, &n.IsRead, &n.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
