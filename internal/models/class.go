package models

// Class represents an academic class or section. Grade groups parallel classes (e.g. "X", "XI").
type Class struct {
	ID                string  `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	Grade             string  `db:"grade" json:"grade"`
	HomeroomTeacherID *string `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
}
