package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/student"
)

// feedChannel is the LISTEN/NOTIFY channel commits announce themselves on.
const feedChannel = "attendance_changes"

type attendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) GetRollUp(ctx context.Context, courseID, date string) (attendance.RollUp, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT doc FROM attendance_rollups WHERE course_id = $1 AND date = $2`,
		courseID, date,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return attendance.RollUp{}, attendance.ErrRollUpNotFound
	}
	if err != nil {
		return attendance.RollUp{}, errors.Wrap(err, "getting roll-up")
	}

	var ru attendance.RollUp
	if err = json.Unmarshal(doc, &ru); err != nil {
		return attendance.RollUp{}, errors.Wrap(err, "decoding roll-up document")
	}
	return ru, nil
}

func (r *attendanceRepository) FilterRollUps(ctx context.Context, courseID string, rng *attendance.DateRange) ([]attendance.RollUp, error) {
	q := `SELECT doc FROM attendance_rollups WHERE course_id = $1`
	args := []interface{}{courseID}
	if rng != nil && rng.From != "" {
		args = append(args, rng.From)
		q += ` AND date >= $2`
	}
	if rng != nil && rng.To != "" {
		args = append(args, rng.To)
		if len(args) == 3 {
			q += ` AND date <= $3`
		} else {
			q += ` AND date <= $2`
		}
	}
	q += ` ORDER BY date`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering roll-ups")
	}
	defer func() { _ = rows.Close() }()

	var res []attendance.RollUp
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "filtering roll-ups")
		}
		var ru attendance.RollUp
		if err = json.Unmarshal(doc, &ru); err != nil {
			return nil, errors.Wrap(err, "decoding roll-up document")
		}
		res = append(res, ru)
	}
	return res, errors.Wrap(rows.Err(), "filtering roll-ups")
}

func (r *attendanceRepository) CountRollUps(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_rollups WHERE course_id = $1`, courseID,
	).Scan(&n)
	return n, errors.Wrap(err, "counting roll-ups")
}

// CommitMark writes the roll-up, the legacy date record and every student
// summary in one transaction, then announces the change on the feed channel
// from inside that transaction so listeners only ever see committed state.
func (r *attendanceRepository) CommitMark(ctx context.Context, cm attendance.CommitMark) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning commit")
	}
	defer func() { _ = tx.Rollback() }()

	ruDoc, err := json.Marshal(cm.RollUp)
	if err != nil {
		return errors.Wrap(err, "encoding roll-up")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO attendance_rollups (course_id, date, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (course_id, date) DO UPDATE SET doc = EXCLUDED.doc`,
		cm.RollUp.CourseID, cm.RollUp.Date, ruDoc,
	); err != nil {
		return errors.Wrap(err, "upserting roll-up")
	}

	recDoc, err := json.Marshal(cm.DateRecord)
	if err != nil {
		return errors.Wrap(err, "encoding date record")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO attendance_dates (date, doc) VALUES ($1, $2)
		 ON CONFLICT (date) DO UPDATE SET doc = EXCLUDED.doc`,
		cm.DateRecord.Date, recDoc,
	); err != nil {
		return errors.Wrap(err, "upserting date record")
	}

	for _, sw := range cm.Summaries {
		sumDoc, err := json.Marshal(sw.Summary)
		if err != nil {
			return errors.Wrap(err, "encoding student summary")
		}
		// ensure the summary map exists before setting the course key
		res, err := tx.ExecContext(ctx,
			`UPDATE students SET doc = jsonb_set(
				CASE WHEN jsonb_typeof(doc -> 'attendance_by_course') = 'object'
					THEN doc
					ELSE jsonb_set(doc, '{attendance_by_course}', '{}'::jsonb, true)
				END,
				ARRAY['attendance_by_course', $2::text], $3::jsonb, true
			) WHERE id = $1`,
			sw.StudentID, sw.CourseID, sumDoc,
		)
		if err != nil {
			return errors.Wrap(err, "updating student summary")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return student.ErrNotFound
		}
	}

	if _, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, feedChannel, cm.DateRecord.Date); err != nil {
		return errors.Wrap(err, "notifying feed")
	}
	return errors.Wrap(tx.Commit(), "committing mark")
}
