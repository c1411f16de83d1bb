package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

// ScoreStore is the persistence surface the score workflow needs.
type ScoreStore interface {
	ListBySubject(ctx context.Context, subjectID, teacherID string) ([]models.StudentScore, error)
	Upsert(ctx context.Context, score *models.StudentScore) error
	BulkUpsert(ctx context.Context, scores []models.StudentScore) error
	UpdateDerived(ctx context.Context, id string, finalScore *float64, rank *int) error
}

// ScoreStudentReader resolves students for ownership checks and name joins.
type ScoreStudentReader interface {
	FindByID(ctx context.Context, id, teacherID string) (*models.Student, error)
	ListAll(ctx context.Context, teacherID string) ([]models.Student, error)
}

// ScoreSubjectReader resolves subjects for ownership checks.
type ScoreSubjectReader interface {
	FindByID(ctx context.Context, id, teacherID string) (*models.Subject, error)
	ListAll(ctx context.Context, teacherID string) ([]models.Subject, error)
}

// ScoreComponentReader lists a subject's weighted assessment components.
type ScoreComponentReader interface {
	ListBySubject(ctx context.Context, subjectID, teacherID string) ([]models.AssessmentComponent, error)
}

// UpsertScoreRequest records or replaces one student's result for a subject.
type UpsertScoreRequest struct {
	StudentID       string             `json:"student_id" validate:"required"`
	SubjectID       string             `json:"subject_id" validate:"required"`
	ExamScore       float64            `json:"exam_score" validate:"gte=0,lte=100"`
	ComponentScores map[string]float64 `json:"component_scores" validate:"dive,gte=0,lte=100"`
	RecordedAt      *time.Time         `json:"recorded_at"`
}

// ImportScoreItem is one row of a legacy gradebook dump. RecordedAt accepts
// every timestamp shape the old system produced.
type ImportScoreItem struct {
	StudentID       string             `json:"student_id" validate:"required"`
	SubjectID       string             `json:"subject_id" validate:"required"`
	ExamScore       float64            `json:"exam_score" validate:"gte=0,lte=100"`
	ComponentScores map[string]float64 `json:"component_scores" validate:"dive,gte=0,lte=100"`
	RecordedAt      models.FlexTime    `json:"recorded_at"`
}

// ImportScoresRequest is a batch of legacy rows.
type ImportScoresRequest struct {
	Items []ImportScoreItem `json:"items" validate:"required,min=1,dive"`
}

// ImportResult reports how a legacy import went.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ScoreService records scores, derives final scores and subject ranks, and
// imports legacy dumps.
type ScoreService struct {
	scores         ScoreStore
	students       ScoreStudentReader
	subjects       ScoreSubjectReader
	components     ScoreComponentReader
	cache          *CacheService
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	defaultWeights map[string]float64
}

// NewScoreService constructs a score service. defaultWeights applies to
// subjects that have no customized assessment components.
func NewScoreService(scores ScoreStore, students ScoreStudentReader, subjects ScoreSubjectReader, components ScoreComponentReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, defaultWeights map[string]float64) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreService{
		scores:         scores,
		students:       students,
		subjects:       subjects,
		components:     components,
		cache:          cache,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
		defaultWeights: defaultWeights,
	}
}

// Upsert records one score, recomputes the final score and re-ranks the
// subject's peer group.
func (s *ScoreService) Upsert(ctx context.Context, teacherID, orgID string, req UpsertScoreRequest) (*models.StudentScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("resolve student: %w", err)
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	weights, err := s.weightsFor(ctx, req.SubjectID, teacherID)
	if err != nil {
		return nil, err
	}

	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	score := &models.StudentScore{
		StudentID:       req.StudentID,
		SubjectID:       req.SubjectID,
		TeacherID:       teacherID,
		OrgID:           orgID,
		ExamScore:       req.ExamScore,
		ComponentScores: req.ComponentScores,
		FinalScore:      deriveFinalScore(req.ExamScore, req.ComponentScores, weights),
		RecordedAt:      recordedAt,
	}
	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, err
	}

	if err := s.rerankSubject(ctx, req.SubjectID, teacherID); err != nil {
		s.logger.Warn("re-rank after upsert failed",
			zap.String("subject_id", req.SubjectID), zap.Error(err))
	}
	s.invalidateInsights(ctx, teacherID)
	return score, nil
}

// ImportLegacy ingests a legacy gradebook dump. Rows referencing unknown
// students or subjects are counted as skipped, not failed.
func (s *ScoreService) ImportLegacy(ctx context.Context, teacherID, orgID string, req ImportScoresRequest) (*ImportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}

	students, err := s.students.ListAll(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load students for import: %w", err)
	}
	subjects, err := s.subjects.ListAll(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load subjects for import: %w", err)
	}
	knownStudents := make(map[string]struct{}, len(students))
	for _, student := range students {
		knownStudents[student.ID] = struct{}{}
	}
	knownSubjects := make(map[string]struct{}, len(subjects))
	for _, subject := range subjects {
		knownSubjects[subject.ID] = struct{}{}
	}

	weightsBySubject := make(map[string]map[string]float64)
	result := &ImportResult{}
	records := make([]models.StudentScore, 0, len(req.Items))
	touched := make(map[string]struct{})

	for _, item := range req.Items {
		if _, ok := knownStudents[item.StudentID]; !ok {
			result.Skipped++
			continue
		}
		if _, ok := knownSubjects[item.SubjectID]; !ok {
			result.Skipped++
			continue
		}

		weights, ok := weightsBySubject[item.SubjectID]
		if !ok {
			weights, err = s.weightsFor(ctx, item.SubjectID, teacherID)
			if err != nil {
				return nil, err
			}
			weightsBySubject[item.SubjectID] = weights
		}

		records = append(records, models.StudentScore{
			StudentID:       item.StudentID,
			SubjectID:       item.SubjectID,
			TeacherID:       teacherID,
			OrgID:           orgID,
			ExamScore:       item.ExamScore,
			ComponentScores: item.ComponentScores,
			FinalScore:      deriveFinalScore(item.ExamScore, item.ComponentScores, weights),
			RecordedAt:      item.RecordedAt.Time.UTC(),
		})
		touched[item.SubjectID] = struct{}{}
		result.Imported++
	}

	if err := s.scores.BulkUpsert(ctx, records); err != nil {
		return nil, err
	}
	for subjectID := range touched {
		if err := s.rerankSubject(ctx, subjectID, teacherID); err != nil {
			s.logger.Warn("re-rank after import failed",
				zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	s.invalidateInsights(ctx, teacherID)

	s.logger.Info("legacy score import complete",
		zap.String("teacher_id", teacherID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// SubjectRanking returns the subject leaderboard: each student's latest
// complete score with its competition rank and ordinal label.
func (s *ScoreService) SubjectRanking(ctx context.Context, subjectID, teacherID string) ([]models.RankedScore, error) {
	if _, err := s.subjects.FindByID(ctx, subjectID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	scores, err := s.scores.ListBySubject(ctx, subjectID, teacherID)
	if err != nil {
		return nil, err
	}
	latest := latestCompletePerStudent(scores)

	entries := make([]ScoreEntry, 0, len(latest))
	for _, score := range latest {
		entries = append(entries, ScoreEntry{StudentID: score.StudentID, FinalScore: *score.FinalScore})
	}
	ranked := RankEntries(entries)

	students, err := s.students.ListAll(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load students for ranking: %w", err)
	}
	names := make(map[string]string, len(students))
	for _, student := range students {
		names[student.ID] = student.FullName
	}

	board := make([]models.RankedScore, len(ranked))
	for i, entry := range ranked {
		board[i] = models.RankedScore{
			StudentID:   entry.StudentID,
			StudentName: names[entry.StudentID],
			FinalScore:  entry.FinalScore,
			Rank:        entry.Rank,
			RankLabel:   OrdinalLabel(entry.Rank),
		}
	}
	return board, nil
}

// rerankSubject recomputes competition ranks over each student's latest
// complete score and persists them.
func (s *ScoreService) rerankSubject(ctx context.Context, subjectID, teacherID string) error {
	start := time.Now()
	scores, err := s.scores.ListBySubject(ctx, subjectID, teacherID)
	if err != nil {
		return err
	}
	latest := latestCompletePerStudent(scores)

	entries := make([]ScoreEntry, 0, len(latest))
	recordIDs := make(map[string]models.StudentScore, len(latest))
	for _, score := range latest {
		entries = append(entries, ScoreEntry{StudentID: score.StudentID, FinalScore: *score.FinalScore})
		recordIDs[score.StudentID] = score
	}

	for _, entry := range RankEntries(entries) {
		record := recordIDs[entry.StudentID]
		rank := entry.Rank
		if err := s.scores.UpdateDerived(ctx, record.ID, record.FinalScore, &rank); err != nil {
			return fmt.Errorf("persist rank for %s: %w", record.ID, err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("score_rerank", time.Since(start))
	}
	return nil
}

func (s *ScoreService) invalidateInsights(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, insightsCachePattern(teacherID)); err != nil {
		s.logger.Warn("invalidate insights cache", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// weightsFor resolves the subject's component weights, falling back to the
// configured defaults when the subject has no customized components.
func (s *ScoreService) weightsFor(ctx context.Context, subjectID, teacherID string) (map[string]float64, error) {
	components, err := s.components.ListBySubject(ctx, subjectID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}
	if len(components) == 0 {
		return s.defaultWeights, nil
	}
	weights := make(map[string]float64, len(components))
	for _, component := range components {
		weights[component.Name] = component.Weight
	}
	return weights, nil
}

// deriveFinalScore computes the blended final score, or nil when a weighted
// component has no recorded value yet: incomplete records never enter a
// ranking.
func deriveFinalScore(examScore float64, provided models.ComponentScores, weights map[string]float64) *float64 {
	var pairs []ComponentScore
	if len(weights) == 0 {
		for _, value := range provided {
			pairs = append(pairs, ComponentScore{Score: value, Weight: 1})
		}
	} else {
		for name, weight := range weights {
			value, ok := provided[name]
			if !ok {
				return nil
			}
			pairs = append(pairs, ComponentScore{Score: value, Weight: weight})
		}
	}
	final := FinalScore(examScore, AssessmentScore(pairs))
	return &final
}

// latestCompletePerStudent keeps each student's newest record that has a
// computed final score. Input must be in chronological order.
func latestCompletePerStudent(scores []models.StudentScore) []models.StudentScore {
	byStudent := make(map[string]models.StudentScore)
	order := make([]string, 0)
	for _, score := range scores {
		if score.FinalScore == nil {
			continue
		}
		if _, seen := byStudent[score.StudentID]; !seen {
			order = append(order, score.StudentID)
		}
		byStudent[score.StudentID] = score
	}
	latest := make([]models.StudentScore, 0, len(byStudent))
	for _, studentID := range order {
		latest = append(latest, byStudent[studentID])
	}
	return latest
}
