package attendance_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/student"
	inmemdoc "github.com/darasahq/darasa/storage/document/inmem"
	"github.com/darasahq/darasa/tests"
)

type testEnv struct {
	svc         *attendance.Service
	courseRepo  course.Repository
	studentRepo student.Repository
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	db, err := inmemdoc.Open()
	if err != nil {
		t.Fatalf("inmemdoc.Open() failed: %v", err)
	}
	logger := core.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	crsRepo := inmemdoc.NewCourseRepository(db)
	stdRepo := inmemdoc.NewStudentRepository(db)
	svc := attendance.NewService(logger, inmemdoc.NewAttendanceRepository(db), crsRepo, stdRepo)
	return testEnv{svc: svc, courseRepo: crsRepo, studentRepo: stdRepo}
}

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	attendance.NowFunc = func() time.Time { return at }
	t.Cleanup(func() { attendance.NowFunc = time.Now })
}

func mark(courseID, day string, present ...string) attendance.MarkAttendance {
	return attendance.MarkAttendance{
		CourseID:          courseID,
		Date:              day,
		PresentStudentIDs: present,
		MarkedBy:          "tch-1",
		MarkedByRole:      "teacher",
	}
}

func TestMarkAttendance(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC)) // Friday
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "c-1", "Physics", 2, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"c-1"})
	testutil.CreateStudent(t, env.studentRepo, "std-2", "DRS-002", "Binti", []string{"c-1"})
	testutil.CreateStudent(t, env.studentRepo, "std-3", "DRS-003", "Chui", []string{"c-9"})

	ru, err := env.svc.Mark(ctx, mark("c-1", "2024-06-03", "std-1"))
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if ru.TotalStudents != 1 || ru.MarkedBy != "tch-1" {
		t.Errorf("roll-up = %+v, want 1 present marked by tch-1", ru)
	}

	// second date references the student by registration number
	if _, err = env.svc.Mark(ctx, mark("c-1", "2024-06-04", "DRS-001")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	got, err := env.svc.GetByDate(ctx, "c-1", "2024-06-03")
	if err != nil {
		t.Fatalf("GetByDate() error = %v", err)
	}
	if got.MarkedAt != attendance.NowFunc().UTC() {
		t.Errorf("MarkedAt = %v, want pinned now", got.MarkedAt)
	}

	sums, err := env.svc.GetStudentSummary(ctx, "std-1", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	sum := sums["c-1"]
	wantDates := []string{"2024-06-03", "2024-06-04"}
	if len(sum.DatesPresent) != 2 || sum.DatesPresent[0] != wantDates[0] || sum.DatesPresent[1] != wantDates[1] {
		t.Errorf("DatesPresent = %v, want %v", sum.DatesPresent, wantDates)
	}
	// Monday creation through Friday today: 5 expected classes
	if sum.TotalClasses != 5 || sum.Attended != 2 || sum.Percentage != 40 {
		t.Errorf("summary = %+v, want total=5 attended=2 percentage=40", sum)
	}

	// an enrolled but absent student still gets the new denominator
	sums, err = env.svc.GetStudentSummary(ctx, "std-2", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	if sum := sums["c-1"]; sum.TotalClasses != 5 || sum.Attended != 0 || sum.Percentage != 0 {
		t.Errorf("absent student summary = %+v, want total=5 attended=0 percentage=0", sum)
	}

	// a student outside the course is never touched
	sums, err = env.svc.GetStudentSummary(ctx, "std-3", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	if _, ok := sums["c-1"]; ok {
		t.Error("unenrolled student acquired a summary for the course")
	}
}

func TestUpdateCorrectsPreviousMark(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "c-1", "Physics", 2, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"c-1"})

	if _, err := env.svc.Mark(ctx, mark("c-1", "2024-06-03", "std-1")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if _, err := env.svc.Mark(ctx, mark("c-1", "2024-06-04", "std-1")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	// correction: the student was in fact absent on the 4th
	if _, err := env.svc.Update(ctx, mark("c-1", "2024-06-04")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sums, err := env.svc.GetStudentSummary(ctx, "std-1", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	sum := sums["c-1"]
	if sum.Attended != 1 || sum.Percentage != 20 {
		t.Errorf("summary after correction = %+v, want attended=1 percentage=20", sum)
	}

	// re-marking with the identical present set changes nothing
	if _, err := env.svc.Update(ctx, mark("c-1", "2024-06-03", "std-1")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	sums, _ = env.svc.GetStudentSummary(ctx, "std-1", nil)
	if again := sums["c-1"]; again.Attended != 1 || again.Percentage != 20 || len(again.DatesPresent) != 1 {
		t.Errorf("summary after idempotent re-mark = %+v, want unchanged", again)
	}
}

func TestMarkDegradedModeWithoutCreationDate(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	// legacy course document with no creation date
	testutil.CreateCourse(t, env.courseRepo, "c-old", "History", 0)
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"c-old"})

	if _, err := env.svc.Mark(ctx, mark("c-old", "2024-06-03", "std-1")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	sums, _ := env.svc.GetStudentSummary(ctx, "std-1", nil)
	if sum := sums["c-old"]; sum.TotalClasses != 1 || sum.Percentage != 100 {
		t.Errorf("summary = %+v, want total=1 percentage=100 (marked sessions as denominator)", sum)
	}

	if _, err := env.svc.Mark(ctx, mark("c-old", "2024-06-04")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	sums, _ = env.svc.GetStudentSummary(ctx, "std-1", nil)
	if sum := sums["c-old"]; sum.TotalClasses != 2 || sum.Attended != 1 || sum.Percentage != 50 {
		t.Errorf("summary = %+v, want total=2 attended=1 percentage=50", sum)
	}
}

func TestMarkNumericCourseIDTolerance(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "42", "Maths", 1, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))
	// the enrollment list carries the zero-padded form of the same id
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"042"})

	if _, err := env.svc.Mark(ctx, mark("42", "2024-06-03", "std-1")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	sums, err := env.svc.GetStudentSummary(ctx, "std-1", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	if sum := sums["42"]; sum.Attended != 1 {
		t.Errorf("summary = %+v, want the numerically equal enrollment matched", sum)
	}
}

func TestMarkKeepsSingleSummaryPerCourse(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "42", "Maths", 1, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))

	// legacy document: the summary map carries a drifted variant of the id
	_, err := env.studentRepo.CreateStudent(ctx, student.Student{
		ID:        "std-1",
		RegNo:     "DRS-001",
		CourseIDs: []string{"42"},
		AttendanceByCourse: map[string]student.CourseSummary{
			"042": {DatesPresent: []string{"2024-06-03"}, TotalClasses: 4, Attended: 1, Percentage: 25},
		},
	})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}

	if _, err := env.svc.Mark(ctx, mark("42", "2024-06-04", "std-1")); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	sums, err := env.svc.GetStudentSummary(ctx, "std-1", nil)
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("summaries = %+v, want exactly one entry for the course", sums)
	}
	sum, ok := sums["042"]
	if !ok {
		t.Fatalf("summaries = %+v, want the write folded into the existing 042 key", sums)
	}
	if len(sum.DatesPresent) != 2 || sum.Attended != 2 {
		t.Errorf("summary = %+v, want both dates merged under one entry", sum)
	}
}

func TestMarkRejectsInvalidInput(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 7, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "c-1", "Physics", 2, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))

	tt := []struct {
		name string
		ma   attendance.MarkAttendance
	}{
		{"missing course", mark("", "2024-06-03")},
		{"missing date", mark("c-1", "")},
		{"malformed date", mark("c-1", "03/06/2024")},
		{"missing marker", attendance.MarkAttendance{CourseID: "c-1", Date: "2024-06-03"}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Mark(ctx, tc.ma); err == nil {
				t.Error("Mark() accepted invalid input")
			}
		})
	}

	// nothing was written
	if _, err := env.svc.GetByDate(ctx, "c-1", "2024-06-03"); !errors.Is(err, attendance.ErrRollUpNotFound) {
		t.Errorf("GetByDate() error = %v, want ErrRollUpNotFound", err)
	}

	if _, err := env.svc.Mark(ctx, mark("c-missing", "2024-06-03")); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("Mark() with unknown course error = %v, want course.ErrNotFound", err)
	}
}

func TestGetCourseAttendanceRange(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 14, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "c-1", "Physics", 2, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"c-1"})

	for _, d := range []string{"2024-06-03", "2024-06-05", "2024-06-10"} {
		if _, err := env.svc.Mark(ctx, mark("c-1", d, "std-1")); err != nil {
			t.Fatalf("Mark(%s) error = %v", d, err)
		}
	}

	all, err := env.svc.GetCourseAttendance(ctx, "c-1", nil)
	if err != nil {
		t.Fatalf("GetCourseAttendance() error = %v", err)
	}
	if len(all) != 3 || all[0].Date != "2024-06-03" || all[2].Date != "2024-06-10" {
		t.Errorf("roll-ups = %+v, want 3 entries date-ascending", all)
	}

	rng := &attendance.DateRange{From: "2024-06-04", To: "2024-06-09"}
	got, err := env.svc.GetCourseAttendance(ctx, "c-1", rng)
	if err != nil {
		t.Fatalf("GetCourseAttendance() error = %v", err)
	}
	if len(got) != 1 || got[0].Date != "2024-06-05" {
		t.Errorf("ranged roll-ups = %+v, want the single 2024-06-05 entry", got)
	}

	if _, err = env.svc.GetCourseAttendance(ctx, "c-1", &attendance.DateRange{From: "junk"}); err == nil {
		t.Error("GetCourseAttendance() accepted a malformed range")
	}
}

func TestGetStudentSummaryRange(t *testing.T) {
	pinNow(t, time.Date(2024, time.June, 14, 10, 0, 0, 0, time.UTC))
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateCourse(t, env.courseRepo, "c-1", "Physics", 2, time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC))
	testutil.CreateStudent(t, env.studentRepo, "std-1", "DRS-001", "Asha", []string{"c-1"})

	for _, d := range []string{"2024-06-03", "2024-06-05", "2024-06-10"} {
		if _, err := env.svc.Mark(ctx, mark("c-1", d, "std-1")); err != nil {
			t.Fatalf("Mark(%s) error = %v", d, err)
		}
	}

	// students are addressable by registration number on the read path too
	sums, err := env.svc.GetStudentSummary(ctx, "DRS-001", &attendance.DateRange{From: "2024-06-04", To: "2024-06-09"})
	if err != nil {
		t.Fatalf("GetStudentSummary() error = %v", err)
	}
	sum := sums["c-1"]
	if len(sum.DatesPresent) != 1 || sum.DatesPresent[0] != "2024-06-05" {
		t.Errorf("DatesPresent = %v, want [2024-06-05]", sum.DatesPresent)
	}
	if sum.Attended != 1 {
		t.Errorf("Attended = %d, want 1 (recomputed over the window)", sum.Attended)
	}
	// ten weekdays Jun 3 - Jun 14; the stored denominator survives the range filter
	if sum.TotalClasses != 10 {
		t.Errorf("TotalClasses = %d, want the stored 10", sum.TotalClasses)
	}

	if _, err = env.svc.GetStudentSummary(ctx, "std-missing", nil); !errors.Is(err, student.ErrNotFound) {
		t.Errorf("GetStudentSummary() error = %v, want student.ErrNotFound", err)
	}
}
