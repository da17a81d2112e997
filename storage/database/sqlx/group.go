package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/group"
)

type rosterRow struct {
	ClassName string         `db:"class_name"`
	Study     string         `db:"study_name"`
	Groups    types.JSONText `db:"groups_data"`
}

func (row rosterRow) roster() group.Roster {
	return group.Roster{ClassName: row.ClassName, Study: row.Study, Groups: json.RawMessage(row.Groups)}
}

type groupRepository struct {
	repository
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db core.DB) *groupRepository {
	return &groupRepository{repository{db: db}}
}

func (repo groupRepository) UpsertRoster(ctx context.Context, r group.Roster, exec ...core.DBExecutor) error {
	const q = `
INSERT INTO class_groups (class_name, study_name, groups_data) VALUES ($1, $2, $3)
ON CONFLICT (class_name, study_name) DO UPDATE SET groups_data = EXCLUDED.groups_data
WHERE class_groups.groups_data IS DISTINCT FROM EXCLUDED.groups_data`

	studyName := r.Study
	if studyName == "" {
		studyName = group.GeneralStudy
	}
	if _, err := repo.getExec(exec).ExecContext(ctx, q, r.ClassName, studyName, types.JSONText(r.Groups)); err != nil {
		return errors.Wrap(err, "upserting group roster")
	}
	return nil
}

func (repo groupRepository) GetRoster(ctx context.Context, className, studyName string, exec ...core.DBExecutor) (group.Roster, error) {
	var row rosterRow
	const q = `SELECT class_name, study_name, groups_data FROM class_groups WHERE class_name = $1 AND study_name = $2`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, className, studyName); err != nil {
		return group.Roster{}, trapNoRowsErr(err, group.ErrNotFound, "getting group roster")
	}
	return row.roster(), nil
}

func (repo groupRepository) QueryRosters(ctx context.Context, filter *group.QueryFilter, exec ...core.DBExecutor) ([]group.Roster, error) {
	var w where
	if filter != nil {
		if filter.Study != "" {
			w.add("study_name = $%d", filter.Study)
		}
		if filter.ClassName != "" {
			w.add("class_name = $%d", filter.ClassName)
		}
	}

	var rows []rosterRow
	q := `SELECT class_name, study_name, groups_data FROM class_groups` + w.String() + ` ORDER BY study_name, class_name`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying group rosters")
	}
	rosters := make([]group.Roster, 0, len(rows))
	for _, row := range rows {
		rosters = append(rosters, row.roster())
	}
	return rosters, nil
}
