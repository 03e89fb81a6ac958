package inmemdoc

import (
	"sync"

	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/student"
)

// DB is an in-process document store with the same contract as the hosted
// one: keyed collections, atomic multi-record commit and a change feed.
// Used in DEV|TEST mode.
type DB struct {
	mu sync.RWMutex

	courses  map[string]*course.Course
	students map[string]*student.Student
	rollUps  map[string]map[string]*attendance.RollUp // courseID -> date -> roll-up
	dateRecs map[string]*attendance.DateRecord        // date -> legacy global record
	subs     map[string]*subscription
}

func Open() (*DB, error) {
	db := &DB{
		courses:  make(map[string]*course.Course),
		students: make(map[string]*student.Student),
		rollUps:  make(map[string]map[string]*attendance.RollUp),
		dateRecs: make(map[string]*attendance.DateRecord),
		subs:     make(map[string]*subscription),
	}
	return db, nil
}
