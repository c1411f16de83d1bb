package models

import "time"

// Subject represents a taught subject for one grade level and trimester.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	OrgID        string    `db:"org_id" json:"org_id"`
	Name         string    `db:"name" json:"name"`
	GradeLevel   string    `db:"grade_level" json:"grade_level"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Trimester    string    `db:"trimester" json:"trimester"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter scopes subject listing.
type SubjectFilter struct {
	TeacherID    string
	GradeLevel   string
	AcademicYear string
	Trimester    string
	Page         int
	PageSize     int
}
