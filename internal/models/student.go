package models

import "time"

// Student represents a learner owned by one teacher within one organization.
type Student struct {
	ID         string    `db:"id" json:"id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	OrgID      string    `db:"org_id" json:"org_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	TeacherID  string
	Search     string
	GradeLevel string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
