package inmemdb

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/study"
)

type studyRepository struct {
	db *DB
}

var _ study.Repository = (*studyRepository)(nil) // interface compliance check

func NewStudyRepository(db *DB) *studyRepository {
	return &studyRepository{db: db}
}

func (repo *studyRepository) UpsertStudy(_ context.Context, s study.Study, _ ...core.DBExecutor) (study.Study, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := repo.db.now()
	if old, ok := repo.db.studies[s.Name]; ok {
		if core.JSONEqual(old.Content, s.Content) {
			return old, nil
		}
		old.Content = s.Content
		old.UpdatedAt = now
		repo.db.studies[s.Name] = old
		return old, nil
	}

	repo.db.studyPK++
	s.ID = repo.db.studyPK
	s.Archived = false
	s.CreatedAt = now
	s.UpdatedAt = now
	repo.db.studies[s.Name] = s
	return s, nil
}

func (repo *studyRepository) GetStudy(_ context.Context, name string, _ ...core.DBExecutor) (study.Study, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.studies[name]; ok {
		return s, nil
	}
	return study.Study{}, study.ErrNotFound
}

func (repo *studyRepository) QueryStudies(_ context.Context, filter *study.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]study.Study, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var names map[string]bool
	if filter != nil && filter.Names != nil {
		names = make(map[string]bool, len(filter.Names))
		for _, n := range filter.Names {
			names[n] = true
		}
	}

	studies := make([]study.Study, 0, len(repo.db.studies))
	for _, s := range repo.db.studies {
		if filter != nil {
			if filter.Archived != nil && s.Archived != *filter.Archived {
				continue
			}
			if names != nil && !names[s.Name] {
				continue
			}
		}
		studies = append(studies, s)
	}

	ord := append(append([]core.DBOrdering(nil), ordering...), core.DBOrdering{Field: "name", Ascending: true})
	sort.Slice(studies, func(i, j int) bool {
		return lessBy(ord, func(field string) (string, string) {
			switch field {
			case "created_at":
				return studies[i].CreatedAt.Format(timeKey), studies[j].CreatedAt.Format(timeKey)
			case "updated_at":
				return studies[i].UpdatedAt.Format(timeKey), studies[j].UpdatedAt.Format(timeKey)
			default:
				return studies[i].Name, studies[j].Name
			}
		})
	})
	return studies, nil
}

// sortable layout
const timeKey = "2006-01-02T15:04:05.000000000"

func (repo *studyRepository) SetArchived(_ context.Context, name string, archived bool, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.studies[name]
	if !ok {
		return study.ErrNotFound
	}
	s.Archived = archived
	repo.db.studies[name] = s
	return nil
}

func (repo *studyRepository) DeleteStudy(_ context.Context, name string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.studies[name]
	if !ok {
		return study.ErrNotFound
	}
	for pk := range repo.db.evaluations {
		if pk.studyID == s.ID {
			delete(repo.db.evaluations, pk)
		}
	}
	for pk := range repo.db.assignments {
		if pk.studyID == s.ID {
			delete(repo.db.assignments, pk)
		}
	}
	delete(repo.db.studies, name)
	return nil
}

func copyAssignment(a study.Assignment) study.Assignment {
	settings := make(map[string]json.RawMessage, len(a.Settings))
	for k, v := range a.Settings {
		settings[k] = v
	}
	a.Settings = settings
	return a
}

func settingsEqual(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || !core.JSONEqual(v, w) {
			return false
		}
	}
	return true
}

func (repo *studyRepository) UpsertAssignment(_ context.Context, a study.Assignment, _ ...core.DBExecutor) (study.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.studies[a.Study]
	if !ok {
		return study.Assignment{}, study.ErrNotFound
	}
	a.StudyID = s.ID
	pk := assignmentPK{studyID: s.ID, className: a.ClassName}

	if old, ok := repo.db.assignments[pk]; ok {
		if old.Method == a.Method && settingsEqual(old.Settings, a.Settings) {
			return copyAssignment(old), nil
		}
		a.ID = old.ID
	} else {
		repo.db.assignmentPK++
		a.ID = repo.db.assignmentPK
	}
	repo.db.assignments[pk] = copyAssignment(a)
	return a, nil
}

func (repo *studyRepository) GetAssignment(_ context.Context, studyName, className string, _ ...core.DBExecutor) (study.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s, ok := repo.db.studies[studyName]
	if !ok {
		return study.Assignment{}, study.ErrAssignmentNotFound
	}
	if a, ok := repo.db.assignments[assignmentPK{studyID: s.ID, className: className}]; ok {
		return copyAssignment(a), nil
	}
	return study.Assignment{}, study.ErrAssignmentNotFound
}

func (repo *studyRepository) QueryAssignments(_ context.Context, filter *study.AssignmentFilter, _ ...core.DBExecutor) ([]study.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	assignments := make([]study.Assignment, 0, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		if filter != nil {
			if filter.Study != "" && a.Study != filter.Study {
				continue
			}
			if filter.ClassName != "" && a.ClassName != filter.ClassName {
				continue
			}
		}
		assignments = append(assignments, copyAssignment(a))
	}
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Study != assignments[j].Study {
			return assignments[i].Study < assignments[j].Study
		}
		return assignments[i].ClassName < assignments[j].ClassName
	})
	return assignments, nil
}

func (repo *studyRepository) DeleteAssignment(_ context.Context, studyName, className string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.studies[studyName]
	if !ok {
		return study.ErrAssignmentNotFound
	}
	pk := assignmentPK{studyID: s.ID, className: className}
	if _, ok := repo.db.assignments[pk]; !ok {
		return study.ErrAssignmentNotFound
	}
	delete(repo.db.assignments, pk)
	return nil
}
