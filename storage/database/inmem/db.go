// Package inmemdb keeps every table in memory. It backs the tests and the API's -inmem mode.
package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

type (
	assignmentPK struct {
		studyID   int
		className string
	}

	evaluationPK struct {
		studyID  int
		schoolNo string
	}

	rosterPK struct {
		className string
		studyName string
	}

	// DB shares one lock between all tables so that cascades stay atomic.
	DB struct {
		mutex sync.RWMutex
		now   func() time.Time

		students    map[string]student.Student
		studies     map[string]study.Study
		assignments map[assignmentPK]study.Assignment
		evaluations map[evaluationPK]evaluation.Evaluation
		rosters     map[rosterPK]group.Roster

		studyPK      int
		assignmentPK int
	}
)

func Open() *DB {
	return &DB{
		now:         func() time.Time { return time.Now().UTC() },
		students:    make(map[string]student.Student),
		studies:     make(map[string]study.Study),
		assignments: make(map[assignmentPK]study.Assignment),
		evaluations: make(map[evaluationPK]evaluation.Evaluation),
		rosters:     make(map[rosterPK]group.Roster),
	}
}

// SetClock replaces the clock used for timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.now = now
}

// Snapshot is a copy of every table, for comparisons in tests.
type Snapshot struct {
	Students    []student.Student
	Studies     []study.Study
	Assignments []study.Assignment
	Evaluations []evaluation.Evaluation
	Rosters     []group.Roster
}

func (db *DB) Snapshot() Snapshot {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var snap Snapshot
	for _, s := range db.students {
		snap.Students = append(snap.Students, s)
	}
	for _, s := range db.studies {
		snap.Studies = append(snap.Studies, s)
	}
	for _, a := range db.assignments {
		snap.Assignments = append(snap.Assignments, a)
	}
	for _, e := range db.evaluations {
		snap.Evaluations = append(snap.Evaluations, e)
	}
	for _, r := range db.rosters {
		snap.Rosters = append(snap.Rosters, r)
	}
	sort.Slice(snap.Students, func(i, j int) bool { return snap.Students[i].SchoolNo < snap.Students[j].SchoolNo })
	sort.Slice(snap.Studies, func(i, j int) bool { return snap.Studies[i].Name < snap.Studies[j].Name })
	sort.Slice(snap.Assignments, func(i, j int) bool { return snap.Assignments[i].ID < snap.Assignments[j].ID })
	sortEvaluations(snap.Evaluations)
	sortRosters(snap.Rosters)
	return snap
}

func (db *DB) studyByID(id int) (study.Study, bool) {
	for _, s := range db.studies {
		if s.ID == id {
			return s, true
		}
	}
	return study.Study{}, false
}

// lessBy compares two rows on the ordering fields. get returns the values of a field for both rows.
func lessBy(ordering []core.DBOrdering, get func(field string) (string, string)) bool {
	for _, ord := range ordering {
		a, b := get(ord.Field)
		if a == b {
			continue
		}
		if ord.Ascending {
			return a < b
		}
		return a > b
	}
	return false
}

func sortEvaluations(evals []evaluation.Evaluation) {
	sort.Slice(evals, func(i, j int) bool {
		if evals[i].Study != evals[j].Study {
			return evals[i].Study < evals[j].Study
		}
		return evals[i].SchoolNo < evals[j].SchoolNo
	})
}

func sortRosters(rosters []group.Roster) {
	sort.Slice(rosters, func(i, j int) bool {
		if rosters[i].Study != rosters[j].Study {
			return rosters[i].Study < rosters[j].Study
		}
		return rosters[i].ClassName < rosters[j].ClassName
	})
}
