package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

// NotificationRepository is the SQL outbox for notification events.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Append stores an event. Re-delivering an event id is a no-op.
func (r *NotificationRepository) Append(ctx context.Context, record *models.OutboxRecord) error {
	const query = `INSERT INTO notification_events (id, event_type, entity_type, entity_id, actor_id, details, occurred_at)
        VALUES (:id, :event_type, :entity_type, :entity_id, :actor_id, :details, :occurred_at)
        ON CONFLICT (id) DO NOTHING`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("append notification event: %w", err)
	}
	return nil
}

// ListUndelivered returns the oldest events not yet relayed.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, event_type, entity_type, entity_id, actor_id, details, occurred_at, delivered_at
        FROM notification_events WHERE delivered_at IS NULL ORDER BY occurred_at, id LIMIT $1`
	var records []models.OutboxRecord
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("list undelivered events: %w", err)
	}
	return records, nil
}

// MarkDelivered stamps the delivery time of an event.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE notification_events SET delivered_at = $1 WHERE id = $2 AND delivered_at IS NULL`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	return nil
}
