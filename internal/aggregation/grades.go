package aggregation

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// SubjectGradeInput is the snapshot needed to aggregate one subject.
type SubjectGradeInput struct {
	Subject         models.Subject
	Students        []models.Student
	Assignments     []models.StudentAssignment
	EvaluationItems []models.EvaluationItem
	Grades          []models.Grade
	Mode            models.AverageMode
	GeneratedAt     time.Time
}

type gradeKey struct {
	item       int64
	assignment int64
}

// AggregateSubjectGrades produces one summary per active roster assignment of
// the subject's group. Students without qualifying grades stay in the output
// with a pending status.
func AggregateSubjectGrades(in SubjectGradeInput) models.SubjectGradeReport {
	weights, thresholds := NormalizeScale(in.Subject.GradingScale)
	validation := ValidateScale(weights)

	report := models.SubjectGradeReport{
		SubjectID:   in.Subject.ID,
		GroupID:     in.Subject.GroupID,
		Mode:        models.ParseAverageMode(string(in.Mode)),
		Scale:       validation,
		Thresholds:  thresholds,
		Students:    []models.StudentGradeSummary{},
		LevelCounts: make(map[string]int, len(PerformanceLevels)),
		GeneratedAt: in.GeneratedAt,
	}
	for _, level := range PerformanceLevels {
		report.LevelCounts[level] = 0
	}
	if report.Mode == models.AverageModeWeighted && !validation.Valid {
		report.Mode = models.AverageModeSimple
		report.ScaleFallback = true
	}

	itemTypes := make(map[int64]string)
	var itemOrder []int64
	var buckets []string
	seenBucket := make(map[string]bool)
	for _, item := range in.EvaluationItems {
		if !item.ID.Valid || !item.SubjectID.Matches(in.Subject.ID) {
			continue
		}
		bucket := CanonicalType(item.Type)
		if _, dup := itemTypes[item.ID.Int64]; !dup {
			itemOrder = append(itemOrder, item.ID.Int64)
		}
		itemTypes[item.ID.Int64] = bucket
		if !seenBucket[bucket] {
			seenBucket[bucket] = true
			buckets = append(buckets, bucket)
		}
	}

	roster := ActiveRoster(in.Assignments, in.Subject.GroupID)
	inRoster := make(map[int64]bool, len(roster))
	for _, assignment := range roster {
		inRoster[assignment.ID.Int64] = true
	}

	grades := latestGrades(in.Grades, func(g models.Grade) bool {
		_, ok := itemTypes[g.EvaluationItemID.Int64]
		return g.EvaluationItemID.Valid && ok
	})
	byKey := make(map[gradeKey]models.Grade, len(grades))
	for _, grade := range grades {
		if !grade.StudentAssignmentID.Valid || !inRoster[grade.StudentAssignmentID.Int64] {
			report.OrphanGrades = append(report.OrphanGrades, grade)
			continue
		}
		byKey[gradeKey{item: grade.EvaluationItemID.Int64, assignment: grade.StudentAssignmentID.Int64}] = grade
	}

	names := studentNames(in.Students)
	for _, assignment := range roster {
		summary := summarizeAssignment(assignment, itemOrder, itemTypes, buckets, byKey, weights, report.Mode)
		summary.StudentName = nameFor(names, assignment.StudentID)
		if summary.Average != nil {
			summary.PerformanceLevel = PerformanceLevel(*summary.Average, thresholds)
			summary.Status = models.GradeStatusGraded
			report.LevelCounts[summary.PerformanceLevel]++
		} else {
			summary.Status = models.GradeStatusPending
			report.PendingCount++
		}
		report.Students = append(report.Students, summary)
	}

	rankStudents(&report)
	return report
}

func summarizeAssignment(
	assignment models.StudentAssignment,
	itemOrder []int64,
	itemTypes map[int64]string,
	buckets []string,
	byKey map[gradeKey]models.Grade,
	weights map[string]float64,
	mode models.AverageMode,
) models.StudentGradeSummary {
	summary := models.StudentGradeSummary{
		AssignmentID: assignment.ID,
		StudentID:    assignment.StudentID,
		TypeAverages: make(map[string]*float64, len(buckets)),
	}

	scoresByType := make(map[string][]float64, len(buckets))
	var all []float64
	for _, itemID := range itemOrder {
		grade, ok := byKey[gradeKey{item: itemID, assignment: assignment.ID.Int64}]
		switch {
		case ok && qualifying(grade.Score):
			summary.GradedCount++
			scoresByType[itemTypes[itemID]] = append(scoresByType[itemTypes[itemID]], *grade.Score)
			all = append(all, *grade.Score)
		case ok && grade.Score != nil && *grade.Score == 0:
			summary.NotSubmittedCount++
		default:
			summary.PendingCount++
		}
	}

	rawAverages := make(map[string]float64, len(buckets))
	for _, bucket := range buckets {
		avg, ok := mean(scoresByType[bucket])
		if !ok {
			summary.TypeAverages[bucket] = nil
			continue
		}
		rawAverages[bucket] = avg
		summary.TypeAverages[bucket] = floatPtr(round1(avg))
	}
	summary.TasksAverage = summary.TypeAverages[models.EvaluationTypeHomework]
	summary.ExamsAverage = summary.TypeAverages[models.EvaluationTypeExam]
	summary.ProjectsAverage = summary.TypeAverages[models.EvaluationTypeProject]
	summary.AttendanceAverage = summary.TypeAverages[models.EvaluationTypeAttendance]

	if mode == models.AverageModeWeighted {
		summary.Average = weightedAverage(buckets, rawAverages, weights)
	} else if avg, ok := mean(all); ok {
		summary.Average = floatPtr(round1(avg))
	}
	return summary
}

// weightedAverage combines bucket averages that carry a positive weight,
// summing in bucket order. Buckets without qualifying grades are left out
// and the remaining weights renormalised.
func weightedAverage(buckets []string, averages map[string]float64, weights map[string]float64) *float64 {
	var sum, totalWeight float64
	for _, bucket := range buckets {
		avg, ok := averages[bucket]
		if !ok {
			continue
		}
		weight := weights[bucket]
		if weight <= 0 {
			continue
		}
		sum += avg * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return nil
	}
	return floatPtr(round1(sum / totalWeight))
}

// rankStudents assigns standard competition ranks by descending average and
// fills the class statistics. Students without an average are not ranked.
func rankStudents(report *models.SubjectGradeReport) {
	var ranked []int
	for i := range report.Students {
		if report.Students[i].Average != nil {
			ranked = append(ranked, i)
		}
	}
	if len(ranked) == 0 {
		return
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return *report.Students[ranked[a]].Average > *report.Students[ranked[b]].Average
	})

	var sum float64
	for pos, idx := range ranked {
		avg := *report.Students[idx].Average
		sum += avg
		rank := pos + 1
		if pos > 0 {
			prev := report.Students[ranked[pos-1]]
			if *prev.Average == avg {
				rank = *prev.Rank
			}
		}
		report.Students[idx].Rank = &rank
	}
	report.ClassAverage = floatPtr(round1(sum / float64(len(ranked))))
	report.HighestAverage = floatPtr(*report.Students[ranked[0]].Average)
	report.LowestAverage = floatPtr(*report.Students[ranked[len(ranked)-1]].Average)
}

// ActiveRoster returns the active assignments of a group in input order.
// Assignments repeated with the same id are kept once.
func ActiveRoster(assignments []models.StudentAssignment, groupID identity.ID) []models.StudentAssignment {
	inGroup := make([]models.StudentAssignment, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.GroupID.Matches(groupID) {
			inGroup = append(inGroup, assignment)
		}
	}
	return activeEntries(inGroup)
}

// latestGrades drops grades rejected by keep and collapses duplicates of the
// same (evaluation item, assignment) pair. The last occurrence wins and takes
// the position of the first.
func latestGrades(grades []models.Grade, keep func(models.Grade) bool) []models.Grade {
	out := make([]models.Grade, 0, len(grades))
	index := make(map[gradeKey]int, len(grades))
	for _, grade := range grades {
		if !keep(grade) {
			continue
		}
		if !grade.StudentAssignmentID.Valid {
			out = append(out, grade)
			continue
		}
		key := gradeKey{item: grade.EvaluationItemID.Int64, assignment: grade.StudentAssignmentID.Int64}
		if pos, ok := index[key]; ok {
			out[pos] = grade
			continue
		}
		index[key] = len(out)
		out = append(out, grade)
	}
	return out
}

func studentNames(students []models.Student) map[int64]string {
	names := make(map[int64]string, len(students))
	for _, student := range students {
		if !student.ID.Valid {
			continue
		}
		names[student.ID.Int64] = student.DisplayName()
	}
	return names
}

func nameFor(names map[int64]string, studentID identity.ID) string {
	if studentID.Valid {
		if name, ok := names[studentID.Int64]; ok {
			return name
		}
	}
	return models.UnnamedStudent
}
