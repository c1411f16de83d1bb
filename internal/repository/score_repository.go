package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// ScoreRepository manages persistence for student score records.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs a ScoreRepository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `id, student_id, subject_id, teacher_id, org_id, exam_score, component_scores, final_score, rank, recorded_at, created_at, updated_at`

// ListByStudent returns a student's full score history ordered by recorded_at
// ascending (zero instants first), the ordering the trend and anomaly analysis
// relies on.
func (r *ScoreRepository) ListByStudent(ctx context.Context, studentID, teacherID string) ([]models.StudentScore, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_scores WHERE student_id = $1 AND teacher_id = $2 ORDER BY recorded_at ASC`, scoreColumns)
	var scores []models.StudentScore
	if err := r.db.SelectContext(ctx, &scores, query, studentID, teacherID); err != nil {
		return nil, fmt.Errorf("list scores by student: %w", err)
	}
	return scores, nil
}

// ListBySubject returns every score recorded for a subject across the
// teacher's students. The ranker needs the complete peer set.
func (r *ScoreRepository) ListBySubject(ctx context.Context, subjectID, teacherID string) ([]models.StudentScore, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_scores WHERE subject_id = $1 AND teacher_id = $2 ORDER BY recorded_at ASC`, scoreColumns)
	var scores []models.StudentScore
	if err := r.db.SelectContext(ctx, &scores, query, subjectID, teacherID); err != nil {
		return nil, fmt.Errorf("list scores by subject: %w", err)
	}
	return scores, nil
}

// FindByStudentAndSubject returns the latest score record for the pair.
func (r *ScoreRepository) FindByStudentAndSubject(ctx context.Context, studentID, subjectID, teacherID string) (*models.StudentScore, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_scores WHERE student_id = $1 AND subject_id = $2 AND teacher_id = $3
        ORDER BY recorded_at DESC LIMIT 1`, scoreColumns)
	var score models.StudentScore
	if err := r.db.GetContext(ctx, &score, query, studentID, subjectID, teacherID); err != nil {
		return nil, err
	}
	return &score, nil
}

// Upsert inserts or replaces a score record keyed by (student, subject,
// recorded_at date).
func (r *ScoreRepository) Upsert(ctx context.Context, score *models.StudentScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}
	score.UpdatedAt = now
	const query = `INSERT INTO student_scores (id, student_id, subject_id, teacher_id, org_id, exam_score, component_scores, final_score, rank, recorded_at, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :teacher_id, :org_id, :exam_score, :component_scores, :final_score, :rank, :recorded_at, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, recorded_at) DO UPDATE SET
            exam_score = EXCLUDED.exam_score,
            component_scores = EXCLUDED.component_scores,
            final_score = EXCLUDED.final_score,
            rank = EXCLUDED.rank,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// BulkUpsert writes imported legacy records inside one transaction.
func (r *ScoreRepository) BulkUpsert(ctx context.Context, scores []models.StudentScore) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO student_scores (id, student_id, subject_id, teacher_id, org_id, exam_score, component_scores, final_score, rank, recorded_at, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :teacher_id, :org_id, :exam_score, :component_scores, :final_score, :rank, :recorded_at, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, recorded_at) DO UPDATE SET
            exam_score = EXCLUDED.exam_score,
            component_scores = EXCLUDED.component_scores,
            final_score = EXCLUDED.final_score,
            rank = EXCLUDED.rank,
            updated_at = EXCLUDED.updated_at`
	for i := range scores {
		if scores[i].ID == "" {
			scores[i].ID = uuid.NewString()
		}
		now := time.Now().UTC()
		if scores[i].CreatedAt.IsZero() {
			scores[i].CreatedAt = now
		}
		scores[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, scores[i]); err != nil {
			return fmt.Errorf("import score %s: %w", scores[i].ID, err)
		}
	}
	return tx.Commit()
}

// UpdateDerived persists the recomputed final score and rank for a record.
func (r *ScoreRepository) UpdateDerived(ctx context.Context, id string, finalScore *float64, rank *int) error {
	const query = `UPDATE student_scores SET final_score = $2, rank = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, finalScore, rank, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update derived score: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
