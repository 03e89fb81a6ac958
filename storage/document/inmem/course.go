package inmemdoc

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/course"
)

type courseRepository struct {
	db *DB
}

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (r *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}
	r.db.courses[crs.ID] = &crs
	return crs, nil
}

func (r *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if crs, ok := r.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (r *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	res := make([]course.Course, 0, len(r.db.courses))
	for _, crs := range r.db.courses {
		res = append(res, *crs)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
