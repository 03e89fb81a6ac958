package inmemdoc

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/student"
)

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (r *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	r.db.students[std.ID] = &std
	return std, nil
}

func (r *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if std, ok := r.db.students[id]; ok {
		return *std, nil
	}
	// legacy callers address students by registration number too
	for _, std := range r.db.students {
		if std.RegNo != "" && std.RegNo == id {
			return *std, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (r *studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	res := make([]student.Student, 0, len(r.db.students))
	for _, std := range r.db.students {
		res = append(res, *std)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
