package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (r *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	doc, err := json.Marshal(std)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "encoding student")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO students (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		std.ID, doc,
	)
	return std, errors.Wrap(err, "creating student")
}

func (r *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	// legacy callers address students by registration number too
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT doc FROM students WHERE id = $1 OR doc ->> 'reg_no' = $1 LIMIT 1`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return student.Student{}, student.ErrNotFound
	}
	if err != nil {
		return student.Student{}, errors.Wrap(err, "getting student")
	}

	var std student.Student
	if err = json.Unmarshal(doc, &std); err != nil {
		return student.Student{}, errors.Wrap(err, "decoding student document")
	}
	return std, nil
}

func (r *studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM students ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	defer func() { _ = rows.Close() }()

	var res []student.Student
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		var std student.Student
		if err = json.Unmarshal(doc, &std); err != nil {
			return nil, errors.Wrap(err, "decoding student document")
		}
		res = append(res, std)
	}
	return res, errors.Wrap(rows.Err(), "querying students")
}
