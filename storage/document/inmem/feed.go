package inmemdoc

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/attendance"
)

type feed struct {
	db *DB
}

func NewFeed(db *DB) attendance.Feed {
	return &feed{db: db}
}

func (f *feed) Subscribe(ctx context.Context, q attendance.Query) (attendance.Subscription, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	sub := &subscription{
		db: f.db,
		id: uuid.New().String(),
		q:  q,
		ch: make(chan attendance.Snapshot, 1),
	}
	f.db.subs[sub.id] = sub
	sub.push(f.db.snapshotLocked(q)) // deliver the current match set right away
	return sub, nil
}

type subscription struct {
	db     *DB
	id     string
	q      attendance.Query
	ch     chan attendance.Snapshot
	closed bool
}

func (s *subscription) Snapshots() <-chan attendance.Snapshot { return s.ch }

func (s *subscription) Close() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.db.subs, s.id)
	close(s.ch)
	return nil
}

// push is latest-wins: an unread older snapshot is replaced rather than
// blocking the committing writer. Each snapshot is the full current state,
// so skipping an unread one loses nothing. Caller must hold db.mu.
func (s *subscription) push(snap attendance.Snapshot) {
	if s.closed {
		return
	}
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

func (db *DB) notifyLocked() {
	for _, sub := range db.subs {
		sub.push(db.snapshotLocked(sub.q))
	}
}

// snapshotLocked computes the complete current match set for a query: a
// course's roll-ups projected to date records, or the legacy global per-date
// records. Caller must hold db.mu (read or write).
func (db *DB) snapshotLocked(q attendance.Query) attendance.Snapshot {
	var snap attendance.Snapshot
	if q.CourseID != "" {
		var hours int
		if crs, ok := db.courses[q.CourseID]; ok {
			hours = crs.HoursPerSession
		}
		for _, ru := range db.rollUps[q.CourseID] {
			if !q.Matches(ru.Date) {
				continue
			}
			snap = append(snap, attendance.DateRecord{
				Date:            ru.Date,
				PresentStudents: ru.PresentStudentIDs,
				Hours:           hours,
				MarkedAt:        ru.MarkedAt,
			})
		}
	} else {
		for _, rec := range db.dateRecs {
			if !q.Matches(rec.Date) {
				continue
			}
			snap = append(snap, *rec)
		}
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].Date < snap[j].Date })
	return snap
}
