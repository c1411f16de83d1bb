package models

import "time"

// Trend classifies the direction of a student's score history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// AtRiskStudent describes a student flagged by the risk analyzer.
type AtRiskStudent struct {
	Student      Student  `json:"student"`
	AverageScore float64  `json:"average_score"`
	RiskScore    float64  `json:"risk_score"`
	RiskFactors  []string `json:"risk_factors"`
	Trend        Trend    `json:"trend"`
}

// TopPerformer describes a high-achieving student.
type TopPerformer struct {
	Student           Student  `json:"student"`
	AverageScore      float64  `json:"average_score"`
	StrongestSubjects []string `json:"strongest_subjects"`
	Trend             Trend    `json:"trend"`
}

// AnomalyType names the rule that produced an anomaly.
type AnomalyType string

const (
	AnomalySuddenDrop        AnomalyType = "sudden-drop"
	AnomalySuddenImprovement AnomalyType = "sudden-improvement"
	AnomalyInconsistent      AnomalyType = "inconsistent-performance"
)

// AnomalySeverity grades how strongly the rule fired.
type AnomalySeverity string

const (
	SeverityHigh   AnomalySeverity = "high"
	SeverityMedium AnomalySeverity = "medium"
)

// Anomaly is one detected irregularity in a student's per-subject history.
type Anomaly struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	Type        AnomalyType     `json:"type"`
	Severity    AnomalySeverity `json:"severity"`
	Description string          `json:"description"`
}

// SubjectAverage pairs a subject with its class-wide average score.
type SubjectAverage struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Average     float64 `json:"average"`
}

// PerformanceSummary is the natural-language class report plus its inputs.
type PerformanceSummary struct {
	Summary           string           `json:"summary"`
	ClassAverage      float64          `json:"class_average"`
	TopSubjects       []SubjectAverage `json:"top_subjects"`
	ImprovementAreas  []SubjectAverage `json:"improvement_areas"`
	StudentCount      int              `json:"student_count"`
	SubjectCount      int              `json:"subject_count"`
	AtRiskCount       int              `json:"at_risk_count"`
	TopPerformerCount int              `json:"top_performer_count"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// SystemMetrics is an instrumentation snapshot exposed on the analytics API.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
