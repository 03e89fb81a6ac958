package inmemdoc

import (
	"context"
	"sort"

	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/student"
)

type attendanceRepository struct {
	db *DB
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) GetRollUp(ctx context.Context, courseID, date string) (attendance.RollUp, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if dates, ok := r.db.rollUps[courseID]; ok {
		if ru, ok := dates[date]; ok {
			return *ru, nil
		}
	}
	return attendance.RollUp{}, attendance.ErrRollUpNotFound
}

func (r *attendanceRepository) FilterRollUps(ctx context.Context, courseID string, rng *attendance.DateRange) ([]attendance.RollUp, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	res := make([]attendance.RollUp, 0, len(r.db.rollUps[courseID]))
	for _, ru := range r.db.rollUps[courseID] {
		if rng != nil && !rng.Contains(ru.Date) {
			continue
		}
		res = append(res, *ru)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

func (r *attendanceRepository) CountRollUps(ctx context.Context, courseID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.rollUps[courseID]), nil
}

// CommitMark applies every record of the commit under one write lock, so
// readers and the change feed only ever observe all of it or none of it.
func (r *attendanceRepository) CommitMark(ctx context.Context, cm attendance.CommitMark) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	// verify every summary target before touching any table; a failing
	// commit must leave no record updated
	for _, sw := range cm.Summaries {
		if _, ok := r.db.students[sw.StudentID]; !ok {
			return student.ErrNotFound
		}
	}

	ru := cm.RollUp
	dates, ok := r.db.rollUps[ru.CourseID]
	if !ok {
		dates = make(map[string]*attendance.RollUp)
		r.db.rollUps[ru.CourseID] = dates
	}
	dates[ru.Date] = &ru

	rec := cm.DateRecord
	r.db.dateRecs[rec.Date] = &rec

	for _, sw := range cm.Summaries {
		std := r.db.students[sw.StudentID]
		if std.AttendanceByCourse == nil {
			std.AttendanceByCourse = make(map[string]student.CourseSummary)
		}
		std.AttendanceByCourse[sw.CourseID] = sw.Summary
	}

	r.db.notifyLocked()
	return nil
}
