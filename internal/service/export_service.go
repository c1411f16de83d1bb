package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
)

type rankingProvider interface {
	SubjectRanking(ctx context.Context, subjectID, teacherID string) ([]models.RankedScore, error)
}

type summaryProvider interface {
	ClassSummary(ctx context.Context, teacherID string) (models.PerformanceSummary, bool)
}

type exportSubjectReader interface {
	FindByID(ctx context.Context, id, teacherID string) (*models.Subject, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, preamble string) ([]byte, error)
}

// ExportFile is a rendered document ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders subject leaderboards and class summaries as CSV or PDF.
type ExportService struct {
	rankings rankingProvider
	insights summaryProvider
	subjects exportSubjectReader
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(rankings rankingProvider, insights summaryProvider, subjects exportSubjectReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{rankings: rankings, insights: insights, subjects: subjects, csv: csv, pdf: pdf, logger: logger}
}

// SubjectRankingCSV renders the subject leaderboard as CSV.
func (s *ExportService) SubjectRankingCSV(ctx context.Context, subjectID, teacherID string) (*ExportFile, error) {
	dataset, subjectName, err := s.rankingDataset(ctx, subjectID, teacherID)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render ranking csv: %w", err)
	}
	return &ExportFile{
		Filename:    exportFilename("ranking", subjectName, "csv"),
		ContentType: "text/csv",
		Payload:     payload,
	}, nil
}

// SubjectRankingPDF renders the subject leaderboard as PDF.
func (s *ExportService) SubjectRankingPDF(ctx context.Context, subjectID, teacherID string) (*ExportFile, error) {
	dataset, subjectName, err := s.rankingDataset(ctx, subjectID, teacherID)
	if err != nil {
		return nil, err
	}
	payload, err := s.pdf.Render(dataset, fmt.Sprintf("%s Ranking", subjectName), "")
	if err != nil {
		return nil, fmt.Errorf("render ranking pdf: %w", err)
	}
	return &ExportFile{
		Filename:    exportFilename("ranking", subjectName, "pdf"),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}

// ClassSummaryCSV renders the class performance summary as CSV.
func (s *ExportService) ClassSummaryCSV(ctx context.Context, teacherID string) (*ExportFile, error) {
	summary, _ := s.insights.ClassSummary(ctx, teacherID)
	payload, err := s.csv.Render(summaryDataset(summary))
	if err != nil {
		return nil, fmt.Errorf("render summary csv: %w", err)
	}
	return &ExportFile{
		Filename:    exportFilename("class-summary", "", "csv"),
		ContentType: "text/csv",
		Payload:     payload,
	}, nil
}

// ClassSummaryPDF renders the class performance summary as PDF with the
// narrative paragraph as the preamble.
func (s *ExportService) ClassSummaryPDF(ctx context.Context, teacherID string) (*ExportFile, error) {
	summary, _ := s.insights.ClassSummary(ctx, teacherID)
	payload, err := s.pdf.Render(summaryDataset(summary), "Class Performance Summary", summary.Summary)
	if err != nil {
		return nil, fmt.Errorf("render summary pdf: %w", err)
	}
	return &ExportFile{
		Filename:    exportFilename("class-summary", "", "pdf"),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}

func (s *ExportService) rankingDataset(ctx context.Context, subjectID, teacherID string) (export.Dataset, string, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return export.Dataset{}, "", err
	}
	board, err := s.rankings.SubjectRanking(ctx, subjectID, teacherID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataset := export.Dataset{Headers: []string{"Rank", "Student", "Final Score"}}
	for _, row := range board {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Rank":        row.RankLabel,
			"Student":     row.StudentName,
			"Final Score": strconv.FormatFloat(row.FinalScore, 'f', 1, 64),
		})
	}
	return dataset, subject.Name, nil
}

func summaryDataset(summary models.PerformanceSummary) export.Dataset {
	dataset := export.Dataset{Headers: []string{"Subject", "Average", "Category"}}
	for _, entry := range summary.TopSubjects {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject":  entry.SubjectName,
			"Average":  strconv.FormatFloat(entry.Average, 'f', 1, 64),
			"Category": "top subject",
		})
	}
	for _, entry := range summary.ImprovementAreas {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject":  entry.SubjectName,
			"Average":  strconv.FormatFloat(entry.Average, 'f', 1, 64),
			"Category": "improvement area",
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Subject":  "Class overall",
		"Average":  strconv.FormatFloat(summary.ClassAverage, 'f', 1, 64),
		"Category": "average",
	})
	return dataset
}

func exportFilename(kind, qualifier, ext string) string {
	stamp := time.Now().UTC().Format("20060102")
	if qualifier == "" {
		return fmt.Sprintf("%s-%s.%s", kind, stamp, ext)
	}
	return fmt.Sprintf("%s-%s-%s.%s", kind, slugify(qualifier), stamp, ext)
}

func slugify(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '-')
		}
	}
	return string(out)
}
