package attendance

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/student"
)

// DayLayout is the calendar-day format used everywhere a date is persisted.
// ISO days sort lexicographically in chronological order.
const DayLayout = "2006-01-02"

var (
	// errors
	ErrRollUpNotFound = errors.New("attendance record not found")
)

type (
	// Repository is the document-store surface the engine depends on.
	// CommitMark must be an atomic multi-record write: either every record
	// in the commit lands or none does.
	Repository interface {
		GetRollUp(ctx context.Context, courseID, date string) (RollUp, error)
		// FilterRollUps returns a course's roll-ups, date-ascending,
		// restricted to rng when given.
		FilterRollUps(ctx context.Context, courseID string, rng *DateRange) ([]RollUp, error)
		CountRollUps(ctx context.Context, courseID string) (int, error)
		CommitMark(ctx context.Context, cm CommitMark) error
	}

	// RollUp is the per-course per-date record listing every student present
	// for that session. Identity key = (CourseID, Date); PresentStudentIDs
	// is replaced wholesale on re-marking.
	RollUp struct {
		CourseID          string    `json:"course_id"`
		Date              string    `json:"date"` // calendar day, no time component
		PresentStudentIDs []string  `json:"present_student_ids"`
		TotalStudents     int       `json:"total_students"`
		MarkedBy          string    `json:"marked_by"`
		MarkedByRole      string    `json:"marked_by_role"`
		MarkedAt          time.Time `json:"marked_at"` // UTC
	}

	// DateRecord is the legacy-compatible global per-date roll-up consumed by
	// the read path. Present ids may come from either identifier space.
	DateRecord struct {
		Date            string    `json:"date"`
		PresentStudents []string  `json:"present_students"`
		Hours           int       `json:"hours,omitempty"`
		MarkedAt        time.Time `json:"marked_at"` // UTC
	}

	// CommitMark is the full set of records one mark/update command writes.
	CommitMark struct {
		RollUp     RollUp
		DateRecord DateRecord
		Summaries  []SummaryWrite
	}

	// SummaryWrite updates one enrolled student's denormalized course summary.
	SummaryWrite struct {
		StudentID string
		CourseID  string
		Summary   student.CourseSummary
	}

	// Subject identifies whose attendance is being reconciled. ID is the
	// primary system identifier; RegNo the optional human-readable
	// enrollment identifier. Presence via either counts, exactly once.
	Subject struct {
		ID    string
		RegNo string
	}

	DateRange struct {
		From string `json:"from" validate:"omitempty,dateymd"`
		To   string `json:"to" validate:"omitempty,dateymd"`
	}
)

func (s Subject) presentIn(ids []string) bool {
	for _, id := range ids {
		if (s.ID != "" && id == s.ID) || (s.RegNo != "" && id == s.RegNo) {
			return true
		}
	}
	return false
}

func (rng DateRange) Validate() error { return core.Validate.Struct(rng) }

// Contains reports whether day falls inside the (inclusive) range; open
// bounds match everything on their side.
func (rng DateRange) Contains(day string) bool {
	if rng.From != "" && day < rng.From {
		return false
	}
	if rng.To != "" && day > rng.To {
		return false
	}
	return true
}

// Fact statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusHoliday = "holiday"
)

type (
	// DailyFact is one derived per-subject per-day presence fact. Never
	// stored; rebuilt from the date records on every reconciliation pass.
	DailyFact struct {
		Date     string    `json:"date"`
		Status   string    `json:"status"`
		Hours    int       `json:"hours"`
		MarkedAt time.Time `json:"marked_at,omitempty"` // UTC
	}

	// MonthlySummary aggregates a month of daily facts for one subject.
	// Holiday and future-dated facts are excluded from the counters.
	MonthlySummary struct {
		Month        string      `json:"month"` // "2006-01"
		TotalDays    int         `json:"total_days"`
		PresentDays  int         `json:"present_days"`
		AbsentDays   int         `json:"absent_days"`
		Percentage   int         `json:"percentage"` // whole number
		TotalHours   int         `json:"total_hours"`
		AverageHours float64     `json:"average_hours"`
		Days         []DailyFact `json:"days"`
	}

	// Views holds the two independently cacheable reconciliation results.
	Views struct {
		Monthly *MonthlySummary
		Weekly  []DailyFact
	}
)

// MarkAttendance contains information needed to mark or correct a course's
// attendance for one date.
type MarkAttendance struct {
	CourseID          string   `json:"course_id" validate:"required"`
	Date              string   `json:"date" validate:"required,dateymd"`
	PresentStudentIDs []string `json:"present_student_ids"`
	MarkedBy          string   `json:"marked_by" validate:"required"`
	MarkedByRole      string   `json:"marked_by_role" validate:"required"`
}

func (ma *MarkAttendance) Validate() error {
	ma.CourseID = core.CleanString(ma.CourseID)
	ma.Date = core.CleanString(ma.Date)
	ma.MarkedBy = core.CleanString(ma.MarkedBy)
	ma.MarkedByRole = core.CleanString(ma.MarkedByRole)
	ma.PresentStudentIDs = dedupe(ma.PresentStudentIDs)
	return core.Validate.Struct(ma)
}

// dedupe trims, drops empties and duplicates, and sorts.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
