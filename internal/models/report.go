package models

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// AverageMode selects how the overall subject average is computed.
type AverageMode string

const (
	// AverageModeSimple averages every qualifying score regardless of type.
	AverageModeSimple AverageMode = "simple"
	// AverageModeWeighted combines per-type averages using the grading scale.
	AverageModeWeighted AverageMode = "weighted"
)

// ParseAverageMode falls back to simple for unknown values.
func ParseAverageMode(raw string) AverageMode {
	if AverageMode(strings.ToLower(strings.TrimSpace(raw))) == AverageModeWeighted {
		return AverageModeWeighted
	}
	return AverageModeSimple
}

// GradeStatus is the reconciliation state of a roster row.
type GradeStatus string

const (
	GradeStatusPending      GradeStatus = "pending"
	GradeStatusGraded       GradeStatus = "graded"
	GradeStatusNotSubmitted GradeStatus = "not_submitted"
)

// Performance level labels.
const (
	PerformanceSuperior     = "Superior"
	PerformanceHigh         = "Alto"
	PerformanceBasic        = "Básico"
	PerformanceLow          = "Bajo"
	PerformanceInsufficient = "Insuficiente"
)

// Attendance classes.
const (
	AttendanceClassExcellent = "excellent"
	AttendanceClassGood      = "good"
	AttendanceClassRegular   = "regular"
	AttendanceClassPoor      = "poor"
)

// PerformanceThresholds holds subject specific minimums per level. Nil
// entries fall back to the default cutoffs.
type PerformanceThresholds struct {
	SuperiorMin *float64 `json:"superior_min,omitempty"`
	HighMin     *float64 `json:"high_min,omitempty"`
	BasicMin    *float64 `json:"basic_min,omitempty"`
	LowMin      *float64 `json:"low_min,omitempty"`
}

// Defined reports whether any threshold is set.
func (t PerformanceThresholds) Defined() bool {
	return t.SuperiorMin != nil || t.HighMin != nil || t.BasicMin != nil || t.LowMin != nil
}

// ScaleValidation is the outcome of validating a grading scale.
type ScaleValidation struct {
	Valid bool    `json:"valid"`
	Total float64 `json:"total"`
}

// StudentGradeSummary aggregates one student's grades in a subject.
type StudentGradeSummary struct {
	AssignmentID      identity.ID         `json:"assignment_id"`
	StudentID         identity.ID         `json:"student_id"`
	StudentName       string              `json:"student_name"`
	TasksAverage      *float64            `json:"tasks_average"`
	ExamsAverage      *float64            `json:"exams_average"`
	ProjectsAverage   *float64            `json:"projects_average"`
	AttendanceAverage *float64            `json:"attendance_average"`
	TypeAverages      map[string]*float64 `json:"type_averages,omitempty"`
	Average           *float64            `json:"average"`
	PerformanceLevel  string              `json:"performance_level,omitempty"`
	Status            GradeStatus         `json:"status"`
	GradedCount       int                 `json:"graded_count"`
	NotSubmittedCount int                 `json:"not_submitted_count"`
	PendingCount      int                 `json:"pending_count"`
	Rank              *int                `json:"rank,omitempty"`
}

// SubjectGradeReport is the grade aggregation output for one subject.
type SubjectGradeReport struct {
	SubjectID      identity.ID           `json:"subject_id"`
	GroupID        identity.ID           `json:"group_id"`
	Mode           AverageMode           `json:"mode"`
	Scale          ScaleValidation       `json:"scale"`
	ScaleFallback  bool                  `json:"scale_fallback"`
	Thresholds     PerformanceThresholds `json:"thresholds"`
	Students       []StudentGradeSummary `json:"students"`
	ClassAverage   *float64              `json:"class_average"`
	HighestAverage *float64              `json:"highest_average"`
	LowestAverage  *float64              `json:"lowest_average"`
	LevelCounts    map[string]int        `json:"level_counts"`
	PendingCount   int                   `json:"pending_count"`
	OrphanGrades   []Grade               `json:"orphan_grades,omitempty"`
	// Degraded is set when a collection could not be loaded and was
	// aggregated as empty.
	Degraded    bool      `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GradeRow is one roster entry of a grading sheet.
type GradeRow struct {
	StudentID   identity.ID `json:"student_id"`
	JoinKey     identity.ID `json:"join_key"`
	StudentName string      `json:"student_name"`
	GradeID     identity.ID `json:"grade_id"`
	Score       *float64    `json:"score"`
	Feedback    string      `json:"feedback"`
	Status      GradeStatus `json:"status"`
}

// GradeSheetStats summarises a grading sheet.
type GradeSheetStats struct {
	Total        int      `json:"total"`
	Graded       int      `json:"graded"`
	Pending      int      `json:"pending"`
	NotSubmitted int      `json:"not_submitted"`
	Average      *float64 `json:"average"`
	Highest      *float64 `json:"highest"`
}

// GradeReconciliation merges an evaluation item's roster with its grades.
type GradeReconciliation struct {
	EvaluationItemID identity.ID     `json:"evaluation_item_id"`
	Rows             []GradeRow      `json:"rows"`
	Orphans          []Grade         `json:"orphans,omitempty"`
	Stats            GradeSheetStats `json:"stats"`
}

// AttendanceSummary aggregates attendance for one student.
type AttendanceSummary struct {
	StudentID            identity.ID `json:"student_id"`
	StudentName          string      `json:"student_name,omitempty"`
	TotalRecords         int         `json:"total_records"`
	PresentCount         int         `json:"present_count"`
	AbsentCount          int         `json:"absent_count"`
	LateCount            int         `json:"late_count"`
	ExcusedCount         int         `json:"excused_count"`
	AttendancePercentage int         `json:"attendance_percentage"`
	Class                string      `json:"class"`
}

// AttendanceTotals sums counts across an overview.
type AttendanceTotals struct {
	Students int `json:"students"`
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Late     int `json:"late"`
	Excused  int `json:"excused"`
}

// AttendanceOverview lists per-student summaries for a roster.
type AttendanceOverview struct {
	Students []AttendanceSummary `json:"students"`
	Totals   AttendanceTotals    `json:"totals"`
}

// AttendanceRow is one roster entry of an attendance sheet.
type AttendanceRow struct {
	StudentID   identity.ID      `json:"student_id"`
	JoinKey     identity.ID      `json:"join_key"`
	StudentName string           `json:"student_name"`
	RecordID    identity.ID      `json:"record_id"`
	Status      AttendanceStatus `json:"status"`
	Recorded    bool             `json:"recorded"`
	Notes       string           `json:"notes"`
}

// AttendanceSheetStats counts statuses on an attendance sheet.
type AttendanceSheetStats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Pending int `json:"pending"`
}

// AttendanceReconciliation merges a subject roster with one day of records.
type AttendanceReconciliation struct {
	SubjectID identity.ID          `json:"subject_id"`
	Date      string               `json:"date"`
	Rows      []AttendanceRow      `json:"rows"`
	Orphans   []AttendanceRecord   `json:"orphans,omitempty"`
	Stats     AttendanceSheetStats `json:"stats"`
}
