package student

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		QueryAllStudents(ctx context.Context) ([]Student, error)
	}

	// CourseSummary is the per-student per-course attendance summary kept
	// denormalized on the student document. It is a materialized view: every
	// update recomputes it wholesale, nothing is appended.
	CourseSummary struct {
		DatesPresent []string `json:"dates_present"` // calendar days, sorted ascending, unique
		TotalClasses int      `json:"total_classes"`
		Attended     int      `json:"attended"`
		Percentage   float64  `json:"percentage"`
	}

	Student struct {
		ID string `json:"id"`
		// RegNo is the human-readable enrollment identifier; roll-up records
		// may reference a student by either ID or RegNo.
		RegNo              string                   `json:"reg_no"`
		Name               string                   `json:"name"`
		CourseIDs          []string                 `json:"course_ids"`
		AttendanceByCourse map[string]CourseSummary `json:"attendance_by_course,omitempty"`
		CreatedAt          time.Time                `json:"created_at"` // UTC
		UpdatedAt          time.Time                `json:"updated_at"` // UTC
	}
)

// SameID compares two identifiers numerically when both parse as integers,
// falling back to an exact string match. Course ids drift between string and
// number representations across documents.
func SameID(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if ai, err := strconv.ParseInt(a, 10, 64); err == nil {
		if bi, err := strconv.ParseInt(b, 10, 64); err == nil {
			return ai == bi
		}
		return false
	}
	return a == b
}

// EnrolledIn reports whether the student's course list contains courseID.
func (s Student) EnrolledIn(courseID string) bool {
	for _, id := range s.CourseIDs {
		if SameID(id, courseID) {
			return true
		}
	}
	return false
}

// MatchesID reports whether id references this student through either
// identifier space.
func (s Student) MatchesID(id string) bool {
	return (s.ID != "" && s.ID == id) || (s.RegNo != "" && s.RegNo == id)
}

// Summary returns the stored summary for a course, zero-valued if the
// student has no attendance events for it yet.
func (s Student) Summary(courseID string) CourseSummary {
	for id, sum := range s.AttendanceByCourse {
		if SameID(id, courseID) {
			return sum
		}
	}
	return CourseSummary{}
}

// SummaryKey returns the key the student's summary map already holds for
// this course, or courseID itself when no entry exists yet. Writes must go
// through it so a document carrying a drifted id variant keeps a single
// summary per course.
func (s Student) SummaryKey(courseID string) string {
	for id := range s.AttendanceByCourse {
		if SameID(id, courseID) {
			return id
		}
	}
	return courseID
}
