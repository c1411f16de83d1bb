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

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id, teacherID string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id, teacherID string) error
}

type componentRepository interface {
	ListBySubject(ctx context.Context, subjectID, teacherID string) ([]models.AssessmentComponent, error)
	FindByID(ctx context.Context, id, teacherID string) (*models.AssessmentComponent, error)
	Create(ctx context.Context, component *models.AssessmentComponent) error
	Update(ctx context.Context, component *models.AssessmentComponent) error
	Delete(ctx context.Context, id, teacherID string) error
}

// SubjectRequest creates or updates a subject.
type SubjectRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=150"`
	GradeLevel   string `json:"grade_level" validate:"required,max=20"`
	AcademicYear string `json:"academic_year" validate:"required,max=20"`
	Trimester    string `json:"trimester" validate:"required,max=20"`
}

// ComponentRequest creates or updates an assessment component. Weights are
// relative shares, not percentages; they need not sum to 100.
type ComponentRequest struct {
	Name   string  `json:"name" validate:"required,min=1,max=100"`
	Weight float64 `json:"weight" validate:"gte=0"`
}

// SubjectService manages subjects and their weighted assessment components.
type SubjectService struct {
	subjects   subjectRepository
	components componentRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSubjectService constructs a SubjectService.
func NewSubjectService(subjects subjectRepository, components componentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{subjects: subjects, components: components, cache: cache, validator: validate, logger: logger}
}

// List returns the teacher's subjects matching the filter.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	if filter.TeacherID == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "teacher scope is required")
	}
	return s.subjects.List(ctx, filter)
}

// Get fetches one subject owned by the teacher.
func (s *SubjectService) Get(ctx context.Context, id, teacherID string) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, id, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return subject, nil
}

// Create adds a subject.
func (s *SubjectService) Create(ctx context.Context, teacherID, orgID string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{
		TeacherID:    teacherID,
		OrgID:        orgID,
		Name:         req.Name,
		GradeLevel:   req.GradeLevel,
		AcademicYear: req.AcademicYear,
		Trimester:    req.Trimester,
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return subject, nil
}

// Update modifies a subject.
func (s *SubjectService) Update(ctx context.Context, id, teacherID string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}
	subject.Name = req.Name
	subject.GradeLevel = req.GradeLevel
	subject.AcademicYear = req.AcademicYear
	subject.Trimester = req.Trimester
	if err := s.subjects.Update(ctx, subject); err != nil {
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return subject, nil
}

// Delete removes a subject and, via cascade, its components and scores.
func (s *SubjectService) Delete(ctx context.Context, id, teacherID string) error {
	if _, err := s.Get(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.subjects.Delete(ctx, id, teacherID); err != nil {
		return err
	}
	s.invalidate(ctx, teacherID)
	return nil
}

// ListComponents returns a subject's assessment components.
func (s *SubjectService) ListComponents(ctx context.Context, subjectID, teacherID string) ([]models.AssessmentComponent, error) {
	if _, err := s.Get(ctx, subjectID, teacherID); err != nil {
		return nil, err
	}
	return s.components.ListBySubject(ctx, subjectID, teacherID)
}

// CreateComponent adds a weighted component to a subject.
func (s *SubjectService) CreateComponent(ctx context.Context, subjectID, teacherID, orgID string, req ComponentRequest) (*models.AssessmentComponent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid component payload")
	}
	if req.Weight < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "component weight must not be negative")
	}
	if _, err := s.Get(ctx, subjectID, teacherID); err != nil {
		return nil, err
	}
	component := &models.AssessmentComponent{
		SubjectID: subjectID,
		TeacherID: teacherID,
		OrgID:     orgID,
		Name:      req.Name,
		Weight:    req.Weight,
	}
	if err := s.components.Create(ctx, component); err != nil {
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return component, nil
}

// UpdateComponent modifies a component's name or weight.
func (s *SubjectService) UpdateComponent(ctx context.Context, id, teacherID string, req ComponentRequest) (*models.AssessmentComponent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid component payload")
	}
	component, err := s.components.FindByID(ctx, id, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "component not found")
		}
		return nil, fmt.Errorf("find component: %w", err)
	}
	component.Name = req.Name
	component.Weight = req.Weight
	if err := s.components.Update(ctx, component); err != nil {
		return nil, err
	}
	s.invalidate(ctx, teacherID)
	return component, nil
}

// DeleteComponent removes a component. Existing final scores keep their
// recorded values until the next upsert recomputes them.
func (s *SubjectService) DeleteComponent(ctx context.Context, id, teacherID string) error {
	if _, err := s.components.FindByID(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "component not found")
		}
		return fmt.Errorf("find component: %w", err)
	}
	if err := s.components.Delete(ctx, id, teacherID); err != nil {
		return err
	}
	s.invalidate(ctx, teacherID)
	return nil
}

func (s *SubjectService) invalidate(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, insightsCachePattern(teacherID)); err != nil {
		s.logger.Warn("invalidate insights cache after subject change",
			zap.String("teacher_id", teacherID), zap.Error(err))
	}
}
