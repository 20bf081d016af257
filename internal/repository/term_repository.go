package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

const termColumns = `id, name, academic_year_id, start_date, end_date, is_active`

// TermRepository reads academic terms. Terms are owned by the timetable
// system; the exam engine never writes them.
type TermRepository struct {
	db *sqlx.DB
}

func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID returns sql.ErrNoRows (wrapped) for unknown terms.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	var term models.Term
	err := database.Conn(ctx, r.db).GetContext(ctx, &term, `SELECT `+termColumns+` FROM terms WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("find term %s: %w", id, err)
	}
	return &term, nil
}
