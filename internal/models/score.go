package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssessmentComponent describes one weighted grading component (quiz, homework,
// project) belonging to a subject. Weights need not sum to any fixed total;
// the calculator normalizes by the weight sum.
type AssessmentComponent struct {
	ID        string    `db:"id" json:"id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	OrgID     string    `db:"org_id" json:"org_id"`
	Name      string    `db:"name" json:"name"`
	Weight    float64   `db:"weight" json:"weight"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ComponentScores maps component name to a 0-100 score. Stored as JSONB.
type ComponentScores map[string]float64

// Value implements driver.Valuer for JSONB persistence.
func (cs ComponentScores) Value() (driver.Value, error) {
	if cs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(cs)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (cs *ComponentScores) Scan(src interface{}) error {
	if src == nil {
		*cs = ComponentScores{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported component scores type %T", src)
	}
	return json.Unmarshal(raw, cs)
}

// StudentScore holds one student's results for a subject period. FinalScore and
// Rank are derived values: they must always be recomputable from ExamScore and
// ComponentScores.
type StudentScore struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	SubjectID       string          `db:"subject_id" json:"subject_id"`
	TeacherID       string          `db:"teacher_id" json:"teacher_id"`
	OrgID           string          `db:"org_id" json:"org_id"`
	ExamScore       float64         `db:"exam_score" json:"exam_score"`
	ComponentScores ComponentScores `db:"component_scores" json:"component_scores"`
	FinalScore      *float64        `db:"final_score" json:"final_score,omitempty"`
	Rank            *int            `db:"rank" json:"rank,omitempty"`
	RecordedAt      time.Time       `db:"recorded_at" json:"recorded_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ScoreFilter scopes score queries. TeacherID is always required.
type ScoreFilter struct {
	TeacherID string
	StudentID string
	SubjectID string
}

// RankedScore is a display row for a subject leaderboard.
type RankedScore struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	FinalScore  float64 `json:"final_score"`
	Rank        int     `json:"rank"`
	RankLabel   string  `json:"rank_label"`
}
