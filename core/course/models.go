package course

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		QueryAllCourses(ctx context.Context) ([]Course, error)
	}

	Course struct {
		ID              string    `json:"id"`
		Name            string    `json:"name"`
		Code            string    `json:"code"`
		HoursPerSession int       `json:"hours_per_session"`
		CreatedAt       time.Time `json:"created_at"` // UTC
		UpdatedAt       time.Time `json:"updated_at"` // UTC
	}
)

// HasCreationDate reports whether the course's creation date is resolvable.
// Legacy imports may carry no creation date; attendance totals then degrade
// to counting existing roll-up records.
func (c Course) HasCreationDate() bool {
	return !c.CreatedAt.IsZero()
}
