package models

import "time"

// EnrollmentStatus represents the lifecycle of a student's class enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusLeft        EnrollmentStatus = "LEFT"
)

// Student represents a learner registered in the institution.
type Student struct {
	ID              string    `db:"id" json:"id"`
	AdmissionNumber string    `db:"nis" json:"admission_number"`
	FullName        string    `db:"full_name" json:"full_name"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ClassMember is a student actively enrolled in a class for a term.
type ClassMember struct {
	StudentID       string `db:"student_id" json:"student_id"`
	AdmissionNumber string `db:"nis" json:"admission_number"`
	FullName        string `db:"full_name" json:"full_name"`
	ClassID         string `db:"class_id" json:"class_id"`
	EnrollmentID    string `db:"enrollment_id" json:"enrollment_id"`
}
