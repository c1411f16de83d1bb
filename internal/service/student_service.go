package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id, teacherID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id, teacherID string) error
}

// CreateStudentRequest adds a student to the teacher's roster.
type CreateStudentRequest struct {
	FullName   string `json:"full_name" validate:"required,min=2,max=200"`
	GradeLevel string `json:"grade_level" validate:"required,max=20"`
}

// UpdateStudentRequest modifies a student's roster entry.
type UpdateStudentRequest struct {
	FullName   string `json:"full_name" validate:"required,min=2,max=200"`
	GradeLevel string `json:"grade_level" validate:"required,max=20"`
	Active     *bool  `json:"active"`
}

// StudentService manages the teacher's roster.
type StudentService struct {
	repo      studentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns the teacher's students matching the filter with paging totals.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	if filter.TeacherID == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "teacher scope is required")
	}
	return s.repo.List(ctx, filter)
}

// Get fetches one student owned by the teacher.
func (s *StudentService) Get(ctx context.Context, id, teacherID string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return student, nil
}

// Create adds a student to the roster.
func (s *StudentService) Create(ctx context.Context, teacherID, orgID string, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		TeacherID:  teacherID,
		OrgID:      orgID,
		FullName:   req.FullName,
		GradeLevel: req.GradeLevel,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return student, nil
}

// Update modifies a roster entry.
func (s *StudentService) Update(ctx context.Context, id, teacherID string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}
	student.FullName = req.FullName
	student.GradeLevel = req.GradeLevel
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return student, nil
}

// Deactivate removes a student from active analysis without deleting history.
func (s *StudentService) Deactivate(ctx context.Context, id, teacherID string) error {
	if _, err := s.Get(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id, teacherID); err != nil {
		return err
	}
	s.invalidate(ctx, teacherID)
	return nil
}

func (s *StudentService) invalidate(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, insightsCachePattern(teacherID)); err != nil {
		s.logger.Warn("invalidate insights cache after roster change",
			zap.String("teacher_id", teacherID), zap.Error(err))
	}
}
