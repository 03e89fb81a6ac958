package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/student"
)

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	id, name string,
	hoursPerSession int,
	createdAt ...time.Time,
) course.Course {
	t.Helper()

	var tstamp time.Time
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		ID:              id,
		Name:            name,
		HoursPerSession: hoursPerSession,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	return crs
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	id, regNo, name string,
	courseIDs []string,
) student.Student {
	t.Helper()

	tstamp := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		ID:        id,
		RegNo:     regNo,
		Name:      name,
		CourseIDs: courseIDs,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return std
}
