package inmemdb

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func copyStudent(s student.Student) student.Student {
	extra := make(map[string]json.RawMessage, len(s.Extra))
	for k, v := range s.Extra {
		extra[k] = v
	}
	s.Extra = extra
	return s
}

func (repo *studentRepository) upsert(s student.Student) {
	if old, ok := repo.db.students[s.SchoolNo]; ok && old.Equal(s) {
		return
	}
	repo.db.students[s.SchoolNo] = copyStudent(s)
}

func (repo *studentRepository) UpsertStudents(_ context.Context, students []student.Student, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range students {
		repo.upsert(s)
	}
	return nil
}

func (repo *studentRepository) ReplaceStudents(_ context.Context, students []student.Student, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	keep := make(map[string]bool, len(students))
	for _, s := range students {
		keep[s.SchoolNo] = true
	}
	for no := range repo.db.students {
		if !keep[no] {
			delete(repo.db.students, no)
		}
	}
	for _, s := range students {
		repo.upsert(s)
	}
	return nil
}

func (repo *studentRepository) EnsureStudents(_ context.Context, students []student.Student, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var created int
	for _, s := range students {
		if _, ok := repo.db.students[s.SchoolNo]; !ok {
			repo.db.students[s.SchoolNo] = copyStudent(s)
			created++
		}
	}
	return created, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, schoolNo string, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[schoolNo]; ok {
		return copyStudent(s), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var nos map[string]bool
	if filter != nil && filter.SchoolNos != nil {
		nos = make(map[string]bool, len(filter.SchoolNos))
		for _, no := range filter.SchoolNos {
			nos[no] = true
		}
	}

	students := make([]student.Student, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		if filter != nil {
			if filter.ClassName != "" && s.ClassName != filter.ClassName {
				continue
			}
			if nos != nil && !nos[s.SchoolNo] {
				continue
			}
		}
		students = append(students, copyStudent(s))
	}

	ord := append(append([]core.DBOrdering(nil), ordering...), core.DBOrdering{Field: "school_no", Ascending: true})
	sort.Slice(students, func(i, j int) bool {
		return lessBy(ord, func(field string) (string, string) {
			switch field {
			case "name":
				return students[i].Name, students[j].Name
			case "class_name":
				return students[i].ClassName, students[j].ClassName
			default:
				return students[i].SchoolNo, students[j].SchoolNo
			}
		})
	})
	return students, nil
}
