package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (r *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}
	doc, err := json.Marshal(crs)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "encoding course")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO courses (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		crs.ID, doc,
	)
	return crs, errors.Wrap(err, "creating course")
}

func (r *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM courses WHERE id = $1`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return course.Course{}, course.ErrNotFound
	}
	if err != nil {
		return course.Course{}, errors.Wrap(err, "getting course")
	}

	var crs course.Course
	if err = json.Unmarshal(doc, &crs); err != nil {
		return course.Course{}, errors.Wrap(err, "decoding course document")
	}
	return crs, nil
}

func (r *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM courses ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	defer func() { _ = rows.Close() }()

	var res []course.Course
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "querying courses")
		}
		var crs course.Course
		if err = json.Unmarshal(doc, &crs); err != nil {
			return nil, errors.Wrap(err, "decoding course document")
		}
		res = append(res, crs)
	}
	return res, errors.Wrap(rows.Err(), "querying courses")
}
