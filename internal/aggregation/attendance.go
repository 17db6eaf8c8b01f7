package aggregation

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// Attendance class cutoffs in percent.
const (
	ExcellentAttendanceMin = 90
	GoodAttendanceMin      = 75
	RegularAttendanceMin   = 60
)

// RosterOptions tunes SummarizeRosterAttendance.
type RosterOptions struct {
	// IncludeEmpty keeps students that have no records in range.
	IncludeEmpty bool
}

// SummarizeAttendance counts the records of one student that pass filter.
func SummarizeAttendance(studentID identity.ID, records []models.AttendanceRecord, filter models.AttendanceFilter) models.AttendanceSummary {
	summary := models.AttendanceSummary{StudentID: studentID}
	for _, record := range records {
		if !record.StudentID.Matches(studentID) || !inFilter(record, filter) {
			continue
		}
		count(&summary, record.Status)
	}
	finish(&summary)
	return summary
}

// SummarizeRosterAttendance returns one summary per student, sorted by name.
// Students with no records in range are omitted unless opts.IncludeEmpty.
func SummarizeRosterAttendance(students []models.Student, records []models.AttendanceRecord, filter models.AttendanceFilter, opts RosterOptions) models.AttendanceOverview {
	byStudent := make(map[int64][]models.AttendanceStatus)
	for _, record := range records {
		if !record.StudentID.Valid || !inFilter(record, filter) {
			continue
		}
		byStudent[record.StudentID.Int64] = append(byStudent[record.StudentID.Int64], record.Status)
	}

	overview := models.AttendanceOverview{Students: []models.AttendanceSummary{}}
	seen := make(map[int64]bool, len(students))
	for _, student := range students {
		if !student.ID.Valid || seen[student.ID.Int64] {
			continue
		}
		seen[student.ID.Int64] = true
		statuses := byStudent[student.ID.Int64]
		if len(statuses) == 0 && !opts.IncludeEmpty {
			continue
		}
		summary := models.AttendanceSummary{StudentID: student.ID, StudentName: student.DisplayName()}
		for _, status := range statuses {
			count(&summary, status)
		}
		finish(&summary)
		overview.Students = append(overview.Students, summary)

		overview.Totals.Present += summary.PresentCount
		overview.Totals.Absent += summary.AbsentCount
		overview.Totals.Late += summary.LateCount
		overview.Totals.Excused += summary.ExcusedCount
	}
	overview.Totals.Students = len(overview.Students)

	sort.SliceStable(overview.Students, func(i, j int) bool {
		a, b := overview.Students[i], overview.Students[j]
		if a.StudentName != b.StudentName {
			return a.StudentName < b.StudentName
		}
		return a.StudentID.Int64 < b.StudentID.Int64
	})
	return overview
}

// AttendancePercentage returns round(100*(present+late)/total), or 0 when
// there are no records.
func AttendancePercentage(present, late, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(present+late) / float64(total)))
}

// ClassifyAttendance maps a percentage to its qualitative class.
func ClassifyAttendance(percentage int) string {
	switch {
	case percentage >= ExcellentAttendanceMin:
		return models.AttendanceClassExcellent
	case percentage >= GoodAttendanceMin:
		return models.AttendanceClassGood
	case percentage >= RegularAttendanceMin:
		return models.AttendanceClassRegular
	default:
		return models.AttendanceClassPoor
	}
}

// CalendarDay truncates t to midnight UTC.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return CalendarDay(a).Equal(CalendarDay(b))
}

func inFilter(record models.AttendanceRecord, filter models.AttendanceFilter) bool {
	if filter.SubjectID.Valid && !record.SubjectID.Matches(filter.SubjectID) {
		return false
	}
	day := CalendarDay(record.Date)
	if filter.StartDate != nil && day.Before(CalendarDay(*filter.StartDate)) {
		return false
	}
	if filter.EndDate != nil && day.After(CalendarDay(*filter.EndDate)) {
		return false
	}
	return true
}

// count tallies a status. Unknown statuses only add to the total.
func count(summary *models.AttendanceSummary, status models.AttendanceStatus) {
	summary.TotalRecords++
	switch status {
	case models.AttendanceStatusPresent:
		summary.PresentCount++
	case models.AttendanceStatusAbsent:
		summary.AbsentCount++
	case models.AttendanceStatusLate:
		summary.LateCount++
	case models.AttendanceStatusExcused:
		summary.ExcusedCount++
	}
}

func finish(summary *models.AttendanceSummary) {
	summary.AttendancePercentage = AttendancePercentage(summary.PresentCount, summary.LateCount, summary.TotalRecords)
	summary.Class = ClassifyAttendance(summary.AttendancePercentage)
}
