package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns the teacher's students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	conditions := []string{"s.teacher_id = $1"}
	args := []interface{}{filter.TeacherID}

	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":   "s.full_name",
		"grade_level": "s.grade_level",
		"created_at":  "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.teacher_id, s.org_id, s.full_name, s.grade_level, s.active, s.created_at, s.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every active student for the teacher without paging. The
// analytics pipeline walks the whole roster.
func (r *StudentRepository) ListAll(ctx context.Context, teacherID string) ([]models.Student, error) {
	const query = `SELECT id, teacher_id, org_id, full_name, grade_level, active, created_at, updated_at
        FROM students WHERE teacher_id = $1 AND active = true ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, teacherID); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student owned by the given teacher.
func (r *StudentRepository) FindByID(ctx context.Context, id, teacherID string) (*models.Student, error) {
	const query = `SELECT id, teacher_id, org_id, full_name, grade_level, active, created_at, updated_at
        FROM students WHERE id = $1 AND teacher_id = $2`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id, teacherID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, teacher_id, org_id, full_name, grade_level, active, created_at, updated_at)
        VALUES (:id, :teacher_id, :org_id, :full_name, :grade_level, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, grade_level = :grade_level, active = :active, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`
	result, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id, teacherID string) error {
	const query = `UPDATE students SET active = false, updated_at = $3 WHERE id = $1 AND teacher_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
