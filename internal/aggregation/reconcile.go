package aggregation

import (
	"time"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// DateLayout is the calendar date format used by attendance sheets.
const DateLayout = "2006-01-02"

// ReconcileGrades merges the active roster with the grades of one evaluation
// item. Exactly one row is produced per active roster entry, in roster order.
// Grades for assignments outside the roster are returned as orphans and do
// not count toward the stats.
func ReconcileGrades(roster []models.StudentAssignment, students []models.Student, results []models.Grade, evaluationItemID identity.ID) models.GradeReconciliation {
	active := activeEntries(roster)
	inRoster := make(map[int64]bool, len(active))
	for _, entry := range active {
		inRoster[entry.ID.Int64] = true
	}

	out := models.GradeReconciliation{
		EvaluationItemID: evaluationItemID,
		Rows:             make([]models.GradeRow, 0, len(active)),
	}

	byAssignment := make(map[int64]models.Grade)
	for _, grade := range latestGrades(results, func(g models.Grade) bool {
		return g.EvaluationItemID.Matches(evaluationItemID)
	}) {
		if !grade.StudentAssignmentID.Valid || !inRoster[grade.StudentAssignmentID.Int64] {
			out.Orphans = append(out.Orphans, grade)
			continue
		}
		byAssignment[grade.StudentAssignmentID.Int64] = grade
	}

	names := studentNames(students)
	var scores []float64
	for _, entry := range active {
		row := models.GradeRow{
			StudentID:   entry.StudentID,
			JoinKey:     entry.ID,
			StudentName: nameFor(names, entry.StudentID),
			Status:      models.GradeStatusPending,
		}
		if grade, ok := byAssignment[entry.ID.Int64]; ok {
			row.GradeID = grade.ID
			row.Score = grade.Score
			row.Feedback = grade.Feedback
			row.Status = models.GradeStatusFor(grade.Score)
		}
		switch row.Status {
		case models.GradeStatusGraded:
			out.Stats.Graded++
			scores = append(scores, *row.Score)
		case models.GradeStatusNotSubmitted:
			out.Stats.NotSubmitted++
		default:
			out.Stats.Pending++
		}
		out.Rows = append(out.Rows, row)
	}
	out.Stats.Total = len(out.Rows)

	if avg, ok := mean(scores); ok {
		out.Stats.Average = floatPtr(round1(avg))
		highest := scores[0]
		for _, score := range scores[1:] {
			if score > highest {
				highest = score
			}
		}
		out.Stats.Highest = floatPtr(highest)
	}
	return out
}

// ReconcileAttendance merges the active roster with the records of one
// subject on one calendar day. Roster entries without a record are pending
// and flagged as not recorded.
func ReconcileAttendance(roster []models.StudentAssignment, students []models.Student, records []models.AttendanceRecord, subjectID identity.ID, date time.Time) models.AttendanceReconciliation {
	active := activeEntries(roster)
	inRoster := make(map[int64]bool, len(active))
	for _, entry := range active {
		if entry.StudentID.Valid {
			inRoster[entry.StudentID.Int64] = true
		}
	}

	out := models.AttendanceReconciliation{
		SubjectID: subjectID,
		Date:      CalendarDay(date).Format(DateLayout),
		Rows:      make([]models.AttendanceRow, 0, len(active)),
	}

	byStudent := make(map[int64]models.AttendanceRecord)
	for _, record := range records {
		if !record.SubjectID.Matches(subjectID) || !SameDay(record.Date, date) {
			continue
		}
		if !record.StudentID.Valid || !inRoster[record.StudentID.Int64] {
			out.Orphans = append(out.Orphans, record)
			continue
		}
		byStudent[record.StudentID.Int64] = record
	}

	names := studentNames(students)
	for _, entry := range active {
		row := models.AttendanceRow{
			StudentID:   entry.StudentID,
			JoinKey:     entry.ID,
			StudentName: nameFor(names, entry.StudentID),
			Status:      models.AttendanceStatusPending,
		}
		if record, ok := byStudent[entry.StudentID.Int64]; ok && entry.StudentID.Valid {
			row.RecordID = record.ID
			row.Notes = record.Notes
			// A stored record with an unknown status stays pending and
			// unrecorded but keeps its id so it can be overwritten.
			if status := models.ParseAttendanceStatus(string(record.Status)); status.Valid() {
				row.Status = status
				row.Recorded = true
			}
		}
		switch row.Status {
		case models.AttendanceStatusPresent:
			out.Stats.Present++
		case models.AttendanceStatusAbsent:
			out.Stats.Absent++
		case models.AttendanceStatusLate:
			out.Stats.Late++
		case models.AttendanceStatusExcused:
			out.Stats.Excused++
		default:
			out.Stats.Pending++
		}
		out.Rows = append(out.Rows, row)
	}
	out.Stats.Total = len(out.Rows)
	return out
}

// activeEntries keeps active roster entries with a usable id, dropping
// repeats.
func activeEntries(roster []models.StudentAssignment) []models.StudentAssignment {
	out := make([]models.StudentAssignment, 0, len(roster))
	seen := make(map[int64]bool, len(roster))
	for _, entry := range roster {
		if !entry.ID.Valid || !entry.Active() || seen[entry.ID.Int64] {
			continue
		}
		seen[entry.ID.Int64] = true
		out = append(out, entry)
	}
	return out
}
