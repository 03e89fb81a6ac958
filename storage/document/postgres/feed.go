package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
)

// Feed implements the change-feed contract over LISTEN/NOTIFY: commits
// notify the feed channel and every subscription re-queries its full match
// set, so consumers always receive authoritative-at-a-point-in-time
// snapshots and never diffs.
type Feed struct {
	db       *sqlx.DB
	conninfo string
	logger   core.Logger
}

var _ attendance.Feed = (*Feed)(nil)

func NewFeed(db *sqlx.DB, conninfo string, logger core.Logger) *Feed {
	return &Feed{db: db, conninfo: conninfo, logger: logger}
}

func (f *Feed) Subscribe(ctx context.Context, q attendance.Query) (attendance.Subscription, error) {
	listener := pq.NewListener(f.conninfo, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				f.logger.Warn("pgdoc: feed listener event", err)
			}
		})
	if err := listener.Listen(feedChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening on feed channel")
	}

	sub := &pgSubscription{
		feed:     f,
		q:        q,
		listener: listener,
		ch:       make(chan attendance.Snapshot, 1),
		done:     make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type pgSubscription struct {
	feed     *Feed
	q        attendance.Query
	listener *pq.Listener
	ch       chan attendance.Snapshot
	done     chan struct{}
	once     sync.Once
}

func (s *pgSubscription) Snapshots() <-chan attendance.Snapshot { return s.ch }

func (s *pgSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// run owns the snapshot channel: it is the only sender and closes it on exit.
func (s *pgSubscription) run(ctx context.Context) {
	defer close(s.ch)
	defer func() { _ = s.listener.Close() }()

	s.deliver(ctx) // current match set right away

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil means the listener reconnected and may have missed
			// notifications; re-query regardless
			if n != nil && n.Extra != "" && !s.q.Matches(n.Extra) {
				continue
			}
			s.deliver(ctx)
		case <-ping.C:
			go func() { _ = s.listener.Ping() }()
		}
	}
}

func (s *pgSubscription) deliver(ctx context.Context) {
	snap, err := s.feed.snapshot(ctx, s.q)
	if err != nil {
		s.feed.logger.Error("pgdoc: computing feed snapshot", err)
		return
	}
	// latest-wins: replace an unread older snapshot instead of blocking
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

func (f *Feed) snapshot(ctx context.Context, q attendance.Query) (attendance.Snapshot, error) {
	if q.CourseID != "" {
		return f.courseSnapshot(ctx, q)
	}
	return f.globalSnapshot(ctx, q)
}

func (f *Feed) globalSnapshot(ctx context.Context, q attendance.Query) (attendance.Snapshot, error) {
	query := `SELECT doc FROM attendance_dates`
	query, args := appendDateBounds(query, nil, q, "date")
	query += ` ORDER BY date`

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying date records")
	}
	defer func() { _ = rows.Close() }()

	var snap attendance.Snapshot
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "querying date records")
		}
		var rec attendance.DateRecord
		if err = json.Unmarshal(doc, &rec); err != nil {
			return nil, errors.Wrap(err, "decoding date record")
		}
		snap = append(snap, rec)
	}
	return snap, errors.Wrap(rows.Err(), "querying date records")
}

func (f *Feed) courseSnapshot(ctx context.Context, q attendance.Query) (attendance.Snapshot, error) {
	var hours int
	err := f.db.QueryRowContext(ctx,
		`SELECT COALESCE((doc ->> 'hours_per_session')::int, 0) FROM courses WHERE id = $1`,
		q.CourseID,
	).Scan(&hours)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "getting course hours")
	}

	query := `SELECT doc FROM attendance_rollups WHERE course_id = $1`
	query, args := appendDateBounds(query, []interface{}{q.CourseID}, q, "date")
	query += ` ORDER BY date`

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying roll-ups")
	}
	defer func() { _ = rows.Close() }()

	var snap attendance.Snapshot
	for rows.Next() {
		var doc []byte
		if err = rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "querying roll-ups")
		}
		var ru attendance.RollUp
		if err = json.Unmarshal(doc, &ru); err != nil {
			return nil, errors.Wrap(err, "decoding roll-up document")
		}
		snap = append(snap, attendance.DateRecord{
			Date:            ru.Date,
			PresentStudents: ru.PresentStudentIDs,
			Hours:           hours,
			MarkedAt:        ru.MarkedAt,
		})
	}
	return snap, errors.Wrap(rows.Err(), "querying roll-ups")
}

// appendDateBounds adds the query's inclusive date bounds to a WHERE clause.
func appendDateBounds(query string, args []interface{}, q attendance.Query, col string) (string, []interface{}) {
	join := " WHERE "
	if len(args) > 0 {
		join = " AND "
	}
	if q.From != "" {
		args = append(args, q.From)
		query += join + col + ` >= $` + strconv.Itoa(len(args))
		join = " AND "
	}
	if q.To != "" {
		args = append(args, q.To)
		query += join + col + ` <= $` + strconv.Itoa(len(args))
	}
	return query, args
}
