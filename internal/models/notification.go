package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EventType names a notification event.
type EventType string

const (
	EventResultPublished     EventType = "result_published"
	EventReportCardReady     EventType = "report_card_ready"
	EventLowPerformanceAlert EventType = "low_performance_alert"
	EventExamReminder        EventType = "exam_reminder"
	EventEvaluationDue       EventType = "evaluation_due"
)

// NotificationEvent is the stable outbound event payload.
type NotificationEvent struct {
	ID         string                 `db:"id" json:"id"`
	EventType  EventType              `db:"event_type" json:"event_type"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   string                 `db:"entity_id" json:"entity_id"`
	Timestamp  time.Time              `db:"occurred_at" json:"timestamp"`
	ActorID    *string                `db:"actor_id" json:"actor_id,omitempty"`
	Details    map[string]interface{} `db:"-" json:"details"`
}

// OutboxRecord is a persisted notification event.
type OutboxRecord struct {
	ID          string         `db:"id"`
	EventType   string         `db:"event_type"`
	EntityType  string         `db:"entity_type"`
	EntityID    string         `db:"entity_id"`
	ActorID     *string        `db:"actor_id"`
	Details     types.JSONText `db:"details"`
	OccurredAt  time.Time      `db:"occurred_at"`
	DeliveredAt *time.Time     `db:"delivered_at"`
}
