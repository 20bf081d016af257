package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

func TestResultRepositoryUpsertKeepsStoredIdentity(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewResultRepository(db)

	entered := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, exam_schedule_id) DO UPDATE SET")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entry_date"}).AddRow("res-existing", entered))

	result := &models.StudentExamResult{StudentID: "stu-1", ExamScheduleID: "sch-1", TermID: "term-1", MarksObtained: 72, Percentage: 72, Grade: "B+"}
	require.NoError(t, repo.Upsert(context.Background(), result))
	assert.Equal(t, "res-existing", result.ID)
	assert.True(t, entered.Equal(result.EntryDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryUpdateClassRanks(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewResultRepository(db)

	first, second := 1, 2
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_exam_results SET class_rank = $1 WHERE id = $2")).
		WithArgs(1, "res-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_exam_results SET class_rank = $1 WHERE id = $2")).
		WithArgs(2, "res-2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_exam_results SET class_rank = $1 WHERE id = $2")).
		WithArgs(nil, "res-3").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateClassRanks(context.Background(), []models.RankAssignment{
		{ResultID: "res-1", Rank: &first},
		{ResultID: "res-2", Rank: &second},
		{ResultID: "res-3"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryFactsAppliesFilters(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewResultRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND r.term_id = $1 AND s.class_id = $2 ORDER BY r.student_id")).
		WithArgs("term-1", "class-a").
		WillReturnRows(sqlmock.NewRows([]string{"result_id", "student_id", "percentage", "is_absent"}).
			AddRow("res-1", "stu-1", 81.5, false))

	facts, err := repo.Facts(context.Background(), models.ResultFactFilter{TermID: "term-1", ClassID: "class-a"})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 81.5, facts[0].Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
