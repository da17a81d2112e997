package inmemdb

import (
	"context"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/group"
)

type groupRepository struct {
	db *DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db}
}

func (repo *groupRepository) UpsertRoster(_ context.Context, r group.Roster, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if r.Study == "" {
		r.Study = group.GeneralStudy
	}
	pk := rosterPK{className: r.ClassName, studyName: r.Study}
	if old, ok := repo.db.rosters[pk]; ok && core.JSONEqual(old.Groups, r.Groups) {
		return nil
	}
	repo.db.rosters[pk] = r
	return nil
}

func (repo *groupRepository) GetRoster(_ context.Context, className, studyName string, _ ...core.DBExecutor) (group.Roster, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.rosters[rosterPK{className: className, studyName: studyName}]; ok {
		return r, nil
	}
	return group.Roster{}, group.ErrNotFound
}

func (repo *groupRepository) QueryRosters(_ context.Context, filter *group.QueryFilter, _ ...core.DBExecutor) ([]group.Roster, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rosters := make([]group.Roster, 0, len(repo.db.rosters))
	for _, r := range repo.db.rosters {
		if filter != nil {
			if filter.Study != "" && r.Study != filter.Study {
				continue
			}
			if filter.ClassName != "" && r.ClassName != filter.ClassName {
				continue
			}
		}
		rosters = append(rosters, r)
	}
	sortRosters(rosters)
	return rosters, nil
}
