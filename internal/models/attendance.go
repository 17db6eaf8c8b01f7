package models

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
	// AttendanceStatusPending marks roster rows without a record for the day.
	AttendanceStatusPending AttendanceStatus = "pending"
)

// Valid returns true when the status is a recordable value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// ParseAttendanceStatus normalises case and whitespace.
func ParseAttendanceStatus(raw string) AttendanceStatus {
	return AttendanceStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// AttendanceRecord is the canonical attendance row consumed by aggregation.
type AttendanceRecord struct {
	ID        identity.ID      `json:"id"`
	SubjectID identity.ID      `json:"subject_id"`
	StudentID identity.ID      `json:"student_id"`
	Date      time.Time        `json:"date"`
	Status    AttendanceStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
}

// AttendanceStudentRef is the nested student relation some payloads embed.
type AttendanceStudentRef struct {
	ID identity.ID `json:"id"`
}

// AttendanceAssignmentRef is the nested assignment relation some payloads embed.
type AttendanceAssignmentRef struct {
	ID        identity.ID           `json:"id"`
	StudentID identity.ID           `json:"studentId"`
	Student   *AttendanceStudentRef `json:"student,omitempty"`
}

// AttendancePayload is the raw attendance shape as delivered by the data
// source. The owning student may be carried directly or only through the
// embedded assignment relation.
type AttendancePayload struct {
	ID                identity.ID              `json:"id"`
	SubjectID         identity.ID              `json:"subjectId"`
	StudentID         identity.ID              `json:"studentId"`
	Date              time.Time                `json:"date"`
	Status            string                   `json:"status"`
	Notes             *string                  `json:"notes,omitempty"`
	StudentAssignment *AttendanceAssignmentRef `json:"studentAssignment,omitempty"`
}

// ResolveStudentID checks the direct field, then the assignment's student
// id, then the assignment's embedded student.
func (p AttendancePayload) ResolveStudentID() identity.ID {
	if p.StudentID.Valid {
		return p.StudentID
	}
	if p.StudentAssignment == nil {
		return identity.Null
	}
	if p.StudentAssignment.StudentID.Valid {
		return p.StudentAssignment.StudentID
	}
	if p.StudentAssignment.Student != nil {
		return p.StudentAssignment.Student.ID
	}
	return identity.Null
}

// Normalize converts the payload into the canonical record.
func (p AttendancePayload) Normalize() AttendanceRecord {
	record := AttendanceRecord{
		ID:        p.ID,
		SubjectID: p.SubjectID,
		StudentID: p.ResolveStudentID(),
		Date:      p.Date,
		Status:    ParseAttendanceStatus(p.Status),
	}
	if p.Notes != nil {
		record.Notes = *p.Notes
	}
	return record
}

// NormalizeAttendance converts a batch of payloads.
func NormalizeAttendance(payloads []AttendancePayload) []AttendanceRecord {
	records := make([]AttendanceRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, p.Normalize())
	}
	return records
}

// AttendanceFilter scopes attendance aggregation. Dates are inclusive and
// compared by calendar day.
type AttendanceFilter struct {
	SubjectID identity.ID `json:"subject_id"`
	StartDate *time.Time  `json:"start_date,omitempty"`
	EndDate   *time.Time  `json:"end_date,omitempty"`
}
