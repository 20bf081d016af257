package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

func TestNotificationRepositoryAppendIgnoresDuplicates(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Append(context.Background(), &models.OutboxRecord{
		ID: "evt-1", EventType: string(models.EventResultPublished), EntityType: "exam_schedule", EntityID: "sch-1",
		Details: types.JSONText(`{"results":3}`), OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListUndeliveredDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE delivered_at IS NULL ORDER BY occurred_at, id LIMIT $1")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "details"}).AddRow("evt-1", "report_card_ready", []byte(`{}`)))

	records, err := repo.ListUndelivered(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "report_card_ready", records[0].EventType)
}
