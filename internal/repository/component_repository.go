package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// ComponentRepository manages persistence for assessment components.
type ComponentRepository struct {
	db *sqlx.DB
}

// NewComponentRepository constructs a ComponentRepository.
func NewComponentRepository(db *sqlx.DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

// ListBySubject returns a subject's components ordered by name.
func (r *ComponentRepository) ListBySubject(ctx context.Context, subjectID, teacherID string) ([]models.AssessmentComponent, error) {
	const query = `SELECT id, subject_id, teacher_id, org_id, name, weight, created_at, updated_at
        FROM assessment_components WHERE subject_id = $1 AND teacher_id = $2 ORDER BY name ASC`
	var components []models.AssessmentComponent
	if err := r.db.SelectContext(ctx, &components, query, subjectID, teacherID); err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return components, nil
}

// FindByID fetches a component owned by the given teacher.
func (r *ComponentRepository) FindByID(ctx context.Context, id, teacherID string) (*models.AssessmentComponent, error) {
	const query = `SELECT id, subject_id, teacher_id, org_id, name, weight, created_at, updated_at
        FROM assessment_components WHERE id = $1 AND teacher_id = $2`
	var component models.AssessmentComponent
	if err := r.db.GetContext(ctx, &component, query, id, teacherID); err != nil {
		return nil, err
	}
	return &component, nil
}

// Create inserts a new component.
func (r *ComponentRepository) Create(ctx context.Context, component *models.AssessmentComponent) error {
	if component.ID == "" {
		component.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if component.CreatedAt.IsZero() {
		component.CreatedAt = now
	}
	component.UpdatedAt = now
	const query = `INSERT INTO assessment_components (id, subject_id, teacher_id, org_id, name, weight, created_at, updated_at)
        VALUES (:id, :subject_id, :teacher_id, :org_id, :name, :weight, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, component); err != nil {
		return fmt.Errorf("create component: %w", err)
	}
	return nil
}

// Update modifies an existing component.
func (r *ComponentRepository) Update(ctx context.Context, component *models.AssessmentComponent) error {
	component.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assessment_components SET name = :name, weight = :weight, updated_at = :updated_at
        WHERE id = :id AND teacher_id = :teacher_id`
	if _, err := r.db.NamedExecContext(ctx, query, component); err != nil {
		return fmt.Errorf("update component: %w", err)
	}
	return nil
}

// Delete removes a component.
func (r *ComponentRepository) Delete(ctx context.Context, id, teacherID string) error {
	const query = `DELETE FROM assessment_components WHERE id = $1 AND teacher_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, teacherID); err != nil {
		return fmt.Errorf("delete component: %w", err)
	}
	return nil
}
