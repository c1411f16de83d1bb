package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns the teacher's subjects matching the filter.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects"
	conditions := []string{"teacher_id = $1"}
	args := []interface{}{filter.TeacherID}

	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Trimester != "" {
		conditions = append(conditions, fmt.Sprintf("trimester = $%d", len(args)+1))
		args = append(args, filter.Trimester)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, teacher_id, org_id, name, grade_level, academic_year, trimester, created_at, updated_at
        %s ORDER BY name ASC LIMIT %d OFFSET %d`, base, size, offset)

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// ListAll returns every subject belonging to the teacher, unpaged. Used by the
// analytics pipeline which needs the complete set.
func (r *SubjectRepository) ListAll(ctx context.Context, teacherID string) ([]models.Subject, error) {
	const query = `SELECT id, teacher_id, org_id, name, grade_level, academic_year, trimester, created_at, updated_at
        FROM subjects WHERE teacher_id = $1 ORDER BY name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list all subjects: %w", err)
	}
	return subjects, nil
}

// FindByID fetches a subject owned by the given teacher.
func (r *SubjectRepository) FindByID(ctx context.Context, id, teacherID string) (*models.Subject, error) {
	const query = `SELECT id, teacher_id, org_id, name, grade_level, academic_year, trimester, created_at, updated_at
        FROM subjects WHERE id = $1 AND teacher_id = $2`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id, teacherID); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, teacher_id, org_id, name, grade_level, academic_year, trimester, created_at, updated_at)
        VALUES (:id, :teacher_id, :org_id, :name, :grade_level, :academic_year, :trimester, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = :name, grade_level = :grade_level, academic_year = :academic_year,
        trimester = :trimester, updated_at = :updated_at WHERE id = :id AND teacher_id = :teacher_id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject. Cascading of components and scores is handled by
// foreign key constraints.
func (r *SubjectRepository) Delete(ctx context.Context, id, teacherID string) error {
	const query = `DELETE FROM subjects WHERE id = $1 AND teacher_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, teacherID); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
