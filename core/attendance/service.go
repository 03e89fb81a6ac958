package attendance

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/student"
)

type Service struct {
	logger       core.Logger
	repo         Repository
	courseRepo   course.Repository
	studentRepo  student.Repository
	sessionHours int
}

func NewService(logger core.Logger, repo Repository, crsRepo course.Repository, stdRepo student.Repository) *Service {
	return &Service{
		logger:       logger,
		repo:         repo,
		courseRepo:   crsRepo,
		studentRepo:  stdRepo,
		sessionHours: core.Conf.Attendance.SessionHours,
	}
}

// Mark records a course's attendance for one date: it upserts the roll-up,
// rewrites the legacy global date record and walks every enrolled student's
// denormalized summary, all in one atomic multi-record write.
func (svc *Service) Mark(ctx context.Context, ma MarkAttendance) (RollUp, error) {
	return svc.markOrUpdate(ctx, ma)
}

// Update corrects a previously marked date. Same shape as Mark; re-marking
// with an identical present set is a no-op observably (idempotent).
func (svc *Service) Update(ctx context.Context, ma MarkAttendance) (RollUp, error) {
	return svc.markOrUpdate(ctx, ma)
}

func (svc *Service) markOrUpdate(ctx context.Context, ma MarkAttendance) (RollUp, error) {
	// reject before any write
	if err := ma.Validate(); err != nil {
		return RollUp{}, err
	}

	crs, err := svc.courseRepo.GetCourseByID(ctx, ma.CourseID)
	if err != nil {
		return RollUp{}, err
	}

	var isNewDate bool
	if _, err = svc.repo.GetRollUp(ctx, ma.CourseID, ma.Date); err != nil {
		if !errors.Is(err, ErrRollUpNotFound) {
			return RollUp{}, core.NewUpstreamError("attendance.get", err)
		}
		isNewDate = true
	}

	totalClasses, err := svc.totalClasses(ctx, crs, isNewDate)
	if err != nil {
		return RollUp{}, err
	}

	// Reference behavior: scan every student and select enrollees by their
	// course list. An incremental courseId -> studentIds index would avoid
	// the full scan once enrollment counts grow.
	students, err := svc.studentRepo.QueryAllStudents(ctx)
	if err != nil {
		return RollUp{}, core.NewUpstreamError("students.query", err)
	}

	now := NowFunc().UTC()
	ru := RollUp{
		CourseID:          ma.CourseID,
		Date:              ma.Date,
		PresentStudentIDs: ma.PresentStudentIDs,
		TotalStudents:     len(ma.PresentStudentIDs),
		MarkedBy:          ma.MarkedBy,
		MarkedByRole:      ma.MarkedByRole,
		MarkedAt:          now,
	}

	hours := crs.HoursPerSession
	if hours <= 0 {
		hours = svc.sessionHours
	}
	rec := DateRecord{
		Date:            ma.Date,
		PresentStudents: ma.PresentStudentIDs,
		Hours:           hours,
		MarkedAt:        now,
	}

	var writes []SummaryWrite
	for _, std := range students {
		if !std.EnrolledIn(ma.CourseID) {
			continue
		}
		subject := Subject{ID: std.ID, RegNo: std.RegNo}
		sum := std.Summary(ma.CourseID)
		dates := addOrRemoveDate(sum.DatesPresent, ma.Date, subject.presentIn(ma.PresentStudentIDs))
		attended := len(dates)
		writes = append(writes, SummaryWrite{
			StudentID: std.ID,
			CourseID:  std.SummaryKey(ma.CourseID),
			Summary: student.CourseSummary{
				DatesPresent: dates,
				TotalClasses: totalClasses,
				Attended:     attended,
				Percentage:   percentage(attended, totalClasses),
			},
		})
	}

	if err := svc.repo.CommitMark(ctx, CommitMark{RollUp: ru, DateRecord: rec, Summaries: writes}); err != nil {
		return RollUp{}, core.NewUpstreamError("attendance.commit", err)
	}
	return ru, nil
}

// totalClasses computes the expected-classes denominator: weekdays since the
// course's creation date, or, for legacy courses without one, the count of
// marked sessions (degraded mode, availability over strictness).
func (svc *Service) totalClasses(ctx context.Context, crs course.Course, isNewDate bool) (int, error) {
	if crs.HasCreationDate() {
		return WeekdaysBetween(crs.CreatedAt, NowFunc()), nil
	}
	n, err := svc.repo.CountRollUps(ctx, crs.ID)
	if err != nil {
		return 0, core.NewUpstreamError("attendance.count", err)
	}
	if isNewDate {
		n++ // the commit below adds one more session
	}
	svc.logger.Warn("attendance: course has no creation date, using marked-session count as total classes",
		map[string]interface{}{"course_id": crs.ID, "total": n})
	return n, nil
}

// GetByDate returns the roll-up for one (course, date).
func (svc *Service) GetByDate(ctx context.Context, courseID, date string) (RollUp, error) {
	courseID = core.CleanString(courseID)
	date = core.CleanString(date)
	if courseID == "" {
		return RollUp{}, core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "this field is required"})
	}
	if !validDay(date) {
		return RollUp{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must be in YYYY-MM-DD format"})
	}
	return svc.repo.GetRollUp(ctx, courseID, date)
}

// GetCourseAttendance returns a course's roll-ups, optionally restricted to
// a date range, date-ascending.
func (svc *Service) GetCourseAttendance(ctx context.Context, courseID string, rng *DateRange) ([]RollUp, error) {
	courseID = core.CleanString(courseID)
	if courseID == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "this field is required"})
	}
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
	}
	return svc.repo.FilterRollUps(ctx, courseID, rng)
}

// GetStudentSummary returns a student's per-course summaries, keyed by
// course id. With a range, DatesPresent is restricted to the window and the
// attended/percentage counters recomputed over it; TotalClasses keeps its
// stored value.
func (svc *Service) GetStudentSummary(ctx context.Context, studentID string, rng *DateRange) (map[string]student.CourseSummary, error) {
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
	}

	std, err := svc.studentRepo.GetStudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]student.CourseSummary, len(std.AttendanceByCourse))
	for courseID, sum := range std.AttendanceByCourse {
		if rng != nil {
			dates := make([]string, 0, len(sum.DatesPresent))
			for _, d := range sum.DatesPresent {
				if rng.Contains(d) {
					dates = append(dates, d)
				}
			}
			sum.DatesPresent = dates
			sum.Attended = len(dates)
			sum.Percentage = percentage(sum.Attended, sum.TotalClasses)
		}
		out[courseID] = sum
	}
	return out, nil
}

// addOrRemoveDate keeps the dates-present list sorted and unique while
// adding or removing one calendar day. Removal supports correcting a
// previous mark.
func addOrRemoveDate(dates []string, date string, present bool) []string {
	out := make([]string, 0, len(dates)+1)
	var kept bool
	for _, d := range dates {
		if d == date {
			kept = true
			if !present {
				continue
			}
		}
		out = append(out, d)
	}
	if present && !kept {
		out = append(out, date)
		sort.Strings(out)
	}
	return out
}

// percentage is attendance as a 0-100 figure, 0 when no classes are
// expected, rounded to 2 decimals.
func percentage(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(attended) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return math.Round(p*100) / 100
}

func validDay(s string) bool {
	if len(s) != len(DayLayout) {
		return false
	}
	_, err := time.Parse(DayLayout, s)
	return err == nil
}
