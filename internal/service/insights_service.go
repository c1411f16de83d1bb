package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// InsightsStudentReader lists the roster the analysis walks.
type InsightsStudentReader interface {
	ListAll(ctx context.Context, teacherID string) ([]models.Student, error)
}

// InsightsSubjectReader lists the teacher's subjects for naming and summary counts.
type InsightsSubjectReader interface {
	ListAll(ctx context.Context, teacherID string) ([]models.Subject, error)
}

// InsightsScoreReader fetches one student's full score history.
type InsightsScoreReader interface {
	ListByStudent(ctx context.Context, studentID, teacherID string) ([]models.StudentScore, error)
}

// Analysis thresholds. Score deltas compare consecutive records in one
// subject; averages are over computed final scores only.
const (
	riskThreshold         = 60.0
	topPerformerThreshold = 85.0

	trendMinSamples = 3
	trendDelta      = 5.0

	decliningRiskBonus = 20.0
	improvingRiskCut   = 10.0
	riskFactorWeight   = 5.0

	suddenDropDelta        = -20.0
	suddenDropHighDelta    = -30.0
	suddenRiseDelta        = 25.0
	suddenRiseHighDelta    = 40.0
	inconsistentStdDev     = 15.0
	inconsistentHighStdDev = 25.0

	topSubjectFloor      = 75.0
	improvementAreaCeil  = 70.0
	summaryNotEnoughData = "There is not enough data to build a class performance summary yet."
)

// InsightsService derives at-risk flags, top performers, anomalies and the
// class summary from score histories. Every public method is fail-soft: an
// internal error is logged and an empty result of the correct shape is
// returned, never an error.
type InsightsService struct {
	students InsightsStudentReader
	subjects InsightsSubjectReader
	scores   InsightsScoreReader
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewInsightsService constructs an insights service.
func NewInsightsService(students InsightsStudentReader, subjects InsightsSubjectReader, scores InsightsScoreReader, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *InsightsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsService{
		students: students,
		subjects: subjects,
		scores:   scores,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// AtRiskStudents returns the teacher's at-risk students ordered by descending
// risk score. The boolean reports whether the payload came from cache.
func (s *InsightsService) AtRiskStudents(ctx context.Context, teacherID string) ([]models.AtRiskStudent, bool) {
	key := insightsCacheKey("at-risk", teacherID)
	var cached []models.AtRiskStudent
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true
	}

	roster, err := s.loadRoster(ctx, teacherID)
	if err != nil {
		s.logger.Error("at-risk analysis failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return []models.AtRiskStudent{}, false
	}
	result := s.atRiskFrom(roster)
	s.store(ctx, key, result)
	return result, false
}

// TopPerformers returns high-achieving students ordered by descending average.
func (s *InsightsService) TopPerformers(ctx context.Context, teacherID string) ([]models.TopPerformer, bool) {
	key := insightsCacheKey("top-performers", teacherID)
	var cached []models.TopPerformer
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true
	}

	roster, err := s.loadRoster(ctx, teacherID)
	if err != nil {
		s.logger.Error("top performer analysis failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return []models.TopPerformer{}, false
	}
	result := s.topPerformersFrom(roster)
	s.store(ctx, key, result)
	return result, false
}

// Anomalies returns detected irregularities across every student's per-subject
// history.
func (s *InsightsService) Anomalies(ctx context.Context, teacherID string) ([]models.Anomaly, bool) {
	key := insightsCacheKey("anomalies", teacherID)
	var cached []models.Anomaly
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true
	}

	roster, err := s.loadRoster(ctx, teacherID)
	if err != nil {
		s.logger.Error("anomaly detection failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return []models.Anomaly{}, false
	}
	result := s.anomaliesFrom(roster)
	s.store(ctx, key, result)
	return result, false
}

// ClassSummary builds the natural-language class report.
func (s *InsightsService) ClassSummary(ctx context.Context, teacherID string) (models.PerformanceSummary, bool) {
	key := insightsCacheKey("summary", teacherID)
	var cached models.PerformanceSummary
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true
	}

	roster, err := s.loadRoster(ctx, teacherID)
	if err != nil {
		s.logger.Error("class summary failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return models.PerformanceSummary{
			Summary:          summaryNotEnoughData,
			TopSubjects:      []models.SubjectAverage{},
			ImprovementAreas: []models.SubjectAverage{},
			GeneratedAt:      time.Now().UTC(),
		}, false
	}
	result := s.summaryFrom(roster)
	s.store(ctx, key, result)
	return result, false
}

// SystemMetrics returns the instrumentation snapshot.
func (s *InsightsService) SystemMetrics() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	return s.metrics.Snapshot()
}

func (s *InsightsService) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("cache insights payload", zap.String("key", key), zap.Error(err))
	}
}

// rosterSnapshot is the raw material for one analysis pass: the roster, the
// subject catalogue and each student's chronological score history.
type rosterSnapshot struct {
	students     []models.Student
	subjects     []models.Subject
	subjectNames map[string]string
	histories    map[string][]models.StudentScore
}

func (r *rosterSnapshot) subjectName(id string) string {
	if name, ok := r.subjectNames[id]; ok {
		return name
	}
	return id
}

// loadRoster fetches everything one analysis pass needs. A student whose
// history fetch fails is logged and skipped; only roster-level fetches fail
// the pass.
func (s *InsightsService) loadRoster(ctx context.Context, teacherID string) (*rosterSnapshot, error) {
	start := time.Now()

	students, err := s.students.ListAll(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	subjects, err := s.subjects.ListAll(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	names := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		names[subject.ID] = subject.Name
	}

	histories := make(map[string][]models.StudentScore, len(students))
	for _, student := range students {
		history, err := s.scores.ListByStudent(ctx, student.ID, teacherID)
		if err != nil {
			s.logger.Warn("skip student with unreadable score history",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		histories[student.ID] = sortChronological(history)
	}

	if s.metrics != nil {
		s.metrics.ObserveDBQuery("insights_roster", time.Since(start))
	}
	return &rosterSnapshot{students: students, subjects: subjects, subjectNames: names, histories: histories}, nil
}

func (s *InsightsService) atRiskFrom(roster *rosterSnapshot) []models.AtRiskStudent {
	flagged := []models.AtRiskStudent{}
	for _, student := range roster.students {
		history, ok := roster.histories[student.ID]
		if !ok {
			continue
		}
		finals := validFinals(history)
		if len(finals) == 0 {
			continue
		}

		avg := meanOf(finals)
		trend := classifyTrend(finals)
		perSubject := subjectAveragesOf(history)

		var factors []string
		if avg < riskThreshold {
			factors = append(factors, fmt.Sprintf("overall average %.1f is below %.0f", avg, riskThreshold))
		}
		for _, subjectID := range sortedKeys(perSubject) {
			if subjectAvg := perSubject[subjectID]; subjectAvg < riskThreshold {
				factors = append(factors, fmt.Sprintf("%s average %.1f is below %.0f",
					roster.subjectName(subjectID), subjectAvg, riskThreshold))
			}
		}
		if trend == models.TrendDeclining {
			factors = append(factors, "recent scores are trending down")
		}
		if len(factors) == 0 {
			continue
		}

		flagged = append(flagged, models.AtRiskStudent{
			Student:      student,
			AverageScore: avg,
			RiskScore:    riskScoreOf(avg, trend, len(factors)),
			RiskFactors:  factors,
			Trend:        trend,
		})
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].RiskScore > flagged[j].RiskScore
	})
	return flagged
}

func (s *InsightsService) topPerformersFrom(roster *rosterSnapshot) []models.TopPerformer {
	performers := []models.TopPerformer{}
	for _, student := range roster.students {
		history, ok := roster.histories[student.ID]
		if !ok {
			continue
		}
		finals := validFinals(history)
		if len(finals) == 0 {
			continue
		}

		avg := meanOf(finals)
		perSubject := subjectAveragesOf(history)

		var strongest []string
		anyStrongSubject := false
		for _, subjectID := range sortedKeys(perSubject) {
			if perSubject[subjectID] >= topPerformerThreshold {
				anyStrongSubject = true
				strongest = append(strongest, roster.subjectName(subjectID))
			}
		}
		if avg < topPerformerThreshold && !anyStrongSubject {
			continue
		}

		performers = append(performers, models.TopPerformer{
			Student:           student,
			AverageScore:      avg,
			StrongestSubjects: strongest,
			Trend:             classifyTrend(finals),
		})
	}
	sort.SliceStable(performers, func(i, j int) bool {
		return performers[i].AverageScore > performers[j].AverageScore
	})
	return performers
}

func (s *InsightsService) anomaliesFrom(roster *rosterSnapshot) []models.Anomaly {
	anomalies := []models.Anomaly{}
	for _, student := range roster.students {
		history, ok := roster.histories[student.ID]
		if !ok {
			continue
		}

		bySubject := make(map[string][]float64)
		for _, score := range history {
			if score.FinalScore == nil {
				continue
			}
			bySubject[score.SubjectID] = append(bySubject[score.SubjectID], *score.FinalScore)
		}

		for _, subjectID := range sortedKeys(bySubject) {
			finals := bySubject[subjectID]
			subjectName := roster.subjectName(subjectID)

			for i := 1; i < len(finals); i++ {
				prev, cur := finals[i-1], finals[i]
				delta := cur - prev
				switch {
				case delta <= suddenDropDelta:
					severity := models.SeverityMedium
					if delta <= suddenDropHighDelta {
						severity = models.SeverityHigh
					}
					anomalies = append(anomalies, models.Anomaly{
						StudentID:   student.ID,
						StudentName: student.FullName,
						SubjectID:   subjectID,
						SubjectName: subjectName,
						Type:        models.AnomalySuddenDrop,
						Severity:    severity,
						Description: fmt.Sprintf("%s dropped %.1f points in %s (%.1f to %.1f)",
							student.FullName, -delta, subjectName, prev, cur),
					})
				case delta >= suddenRiseDelta:
					severity := models.SeverityMedium
					if delta >= suddenRiseHighDelta {
						severity = models.SeverityHigh
					}
					anomalies = append(anomalies, models.Anomaly{
						StudentID:   student.ID,
						StudentName: student.FullName,
						SubjectID:   subjectID,
						SubjectName: subjectName,
						Type:        models.AnomalySuddenImprovement,
						Severity:    severity,
						Description: fmt.Sprintf("%s improved %.1f points in %s (%.1f to %.1f)",
							student.FullName, delta, subjectName, prev, cur),
					})
				}
			}

			if len(finals) >= trendMinSamples {
				if spread := populationStdDev(finals); spread > inconsistentStdDev {
					severity := models.SeverityMedium
					if spread > inconsistentHighStdDev {
						severity = models.SeverityHigh
					}
					anomalies = append(anomalies, models.Anomaly{
						StudentID:   student.ID,
						StudentName: student.FullName,
						SubjectID:   subjectID,
						SubjectName: subjectName,
						Type:        models.AnomalyInconsistent,
						Severity:    severity,
						Description: fmt.Sprintf("%s shows inconsistent results in %s (standard deviation %.1f)",
							student.FullName, subjectName, spread),
					})
				}
			}
		}
	}
	return anomalies
}

func (s *InsightsService) summaryFrom(roster *rosterSnapshot) models.PerformanceSummary {
	now := time.Now().UTC()
	summary := models.PerformanceSummary{
		TopSubjects:      []models.SubjectAverage{},
		ImprovementAreas: []models.SubjectAverage{},
		StudentCount:     len(roster.students),
		SubjectCount:     len(roster.subjects),
		GeneratedAt:      now,
	}

	if len(roster.students) == 0 || len(roster.subjects) == 0 {
		summary.Summary = summaryNotEnoughData
		return summary
	}

	bySubject := make(map[string][]float64)
	var pool []float64
	for _, history := range roster.histories {
		for _, score := range history {
			if score.FinalScore == nil {
				continue
			}
			bySubject[score.SubjectID] = append(bySubject[score.SubjectID], *score.FinalScore)
			pool = append(pool, *score.FinalScore)
		}
	}
	if len(pool) == 0 {
		summary.Summary = summaryNotEnoughData
		return summary
	}

	summary.ClassAverage = meanOf(pool)

	for _, subjectID := range sortedKeys(bySubject) {
		entry := models.SubjectAverage{
			SubjectID:   subjectID,
			SubjectName: roster.subjectName(subjectID),
			Average:     meanOf(bySubject[subjectID]),
		}
		if entry.Average >= topSubjectFloor {
			summary.TopSubjects = append(summary.TopSubjects, entry)
		}
		if entry.Average < improvementAreaCeil {
			summary.ImprovementAreas = append(summary.ImprovementAreas, entry)
		}
	}
	sort.SliceStable(summary.TopSubjects, func(i, j int) bool {
		return summary.TopSubjects[i].Average > summary.TopSubjects[j].Average
	})
	sort.SliceStable(summary.ImprovementAreas, func(i, j int) bool {
		return summary.ImprovementAreas[i].Average < summary.ImprovementAreas[j].Average
	})

	summary.AtRiskCount = len(s.atRiskFrom(roster))
	summary.TopPerformerCount = len(s.topPerformersFrom(roster))
	summary.Summary = composeSummaryText(summary)
	return summary
}

func composeSummaryText(summary models.PerformanceSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The class of %d students across %d subjects averages %.1f overall.",
		summary.StudentCount, summary.SubjectCount, summary.ClassAverage)
	if len(summary.TopSubjects) > 0 {
		fmt.Fprintf(&b, " Strongest results come from %s.", joinSubjectNames(summary.TopSubjects))
	}
	if len(summary.ImprovementAreas) > 0 {
		fmt.Fprintf(&b, " %s could use extra attention.", joinSubjectNames(summary.ImprovementAreas))
	}
	fmt.Fprintf(&b, " %d students are flagged at risk and %d are performing at the top.",
		summary.AtRiskCount, summary.TopPerformerCount)
	return b.String()
}

func joinSubjectNames(entries []models.SubjectAverage) string {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.SubjectName
	}
	return strings.Join(names, ", ")
}

// sortChronological orders a history by recording instant, oldest first. Zero
// instants (unparseable legacy timestamps) sort before everything else.
func sortChronological(scores []models.StudentScore) []models.StudentScore {
	sorted := make([]models.StudentScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})
	return sorted
}

// validFinals extracts the computed final scores from a chronological history.
func validFinals(scores []models.StudentScore) []float64 {
	finals := make([]float64, 0, len(scores))
	for _, score := range scores {
		if score.FinalScore != nil {
			finals = append(finals, *score.FinalScore)
		}
	}
	return finals
}

// classifyTrend splits the history into an older and a newer half and compares
// their means. Fewer than three valid scores is always stable.
func classifyTrend(finals []float64) models.Trend {
	if len(finals) < trendMinSamples {
		return models.TrendStable
	}
	half := len(finals) / 2
	delta := meanOf(finals[half:]) - meanOf(finals[:half])
	switch {
	case delta >= trendDelta:
		return models.TrendImproving
	case delta <= -trendDelta:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// riskScoreOf combines the distance below a perfect average with trend and
// factor adjustments, clamped to [0, 100].
func riskScoreOf(avg float64, trend models.Trend, factorCount int) float64 {
	score := math.Max(0, 100-avg)
	switch trend {
	case models.TrendDeclining:
		score += decliningRiskBonus
	case models.TrendImproving:
		score -= improvingRiskCut
	}
	score += riskFactorWeight * float64(factorCount)
	return math.Min(100, math.Max(0, score))
}

// subjectAveragesOf averages each subject's valid finals within one history.
func subjectAveragesOf(scores []models.StudentScore) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, score := range scores {
		if score.FinalScore == nil {
			continue
		}
		sums[score.SubjectID] += *score.FinalScore
		counts[score.SubjectID]++
	}
	averages := make(map[string]float64, len(sums))
	for subjectID, sum := range sums {
		averages[subjectID] = sum / float64(counts[subjectID])
	}
	return averages
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev is the population (not sample) standard deviation.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
