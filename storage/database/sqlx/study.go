package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/study"
)

const studyColumns = `id, name, content, archived, created_at, updated_at`

type studyRow struct {
	ID        int            `db:"id"`
	Name      string         `db:"name"`
	Content   types.JSONText `db:"content"`
	Archived  bool           `db:"archived"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row studyRow) study() study.Study {
	return study.Study{
		ID:        row.ID,
		Name:      row.Name,
		Content:   json.RawMessage(row.Content),
		Archived:  row.Archived,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type assignmentRow struct {
	ID        int            `db:"id"`
	StudyID   int            `db:"study_id"`
	Study     string         `db:"study"`
	ClassName string         `db:"class_name"`
	Method    string         `db:"method"`
	Settings  types.JSONText `db:"settings"`
}

func (row assignmentRow) assignment() (study.Assignment, error) {
	settings := make(map[string]json.RawMessage)
	if len(row.Settings) > 0 {
		if err := row.Settings.Unmarshal(&settings); err != nil {
			return study.Assignment{}, errors.Wrap(err, "decoding assignment settings")
		}
	}
	return study.Assignment{
		ID:        row.ID,
		StudyID:   row.StudyID,
		Study:     row.Study,
		ClassName: row.ClassName,
		Method:    row.Method,
		Settings:  settings,
	}, nil
}

type studyRepository struct {
	repository
}

var _ study.Repository = (*studyRepository)(nil) // interface compliance check

func NewStudyRepository(db core.DB) *studyRepository {
	return &studyRepository{repository{db: db}}
}

func (repo studyRepository) UpsertStudy(ctx context.Context, s study.Study, exec ...core.DBExecutor) (study.Study, error) {
	const q = `
INSERT INTO studies (name, content) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET content = EXCLUDED.content, updated_at = now()
WHERE studies.content IS DISTINCT FROM EXCLUDED.content
RETURNING ` + studyColumns

	var row studyRow
	err := repo.getExec(exec).GetContext(ctx, &row, q, s.Name, types.JSONText(s.Content))
	if err == sql.ErrNoRows { // unchanged
		return repo.GetStudy(ctx, s.Name, exec...)
	}
	if err != nil {
		return study.Study{}, errors.Wrap(err, "upserting study")
	}
	return row.study(), nil
}

func (repo studyRepository) GetStudy(ctx context.Context, name string, exec ...core.DBExecutor) (study.Study, error) {
	var row studyRow
	q := `SELECT ` + studyColumns + ` FROM studies WHERE name = $1`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, name); err != nil {
		return study.Study{}, trapNoRowsErr(err, study.ErrNotFound, "getting study")
	}
	return row.study(), nil
}

func (repo studyRepository) QueryStudies(ctx context.Context, filter *study.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]study.Study, error) {
	var w where
	if filter != nil {
		if filter.Archived != nil {
			w.add("archived = $%d", *filter.Archived)
		}
		if filter.Names != nil {
			w.add("name = ANY($%d)", pq.Array(filter.Names))
		}
	}
	order, err := orderBy(append(append([]core.DBOrdering(nil), ordering...), core.DBOrdering{Field: "name", Ascending: true}),
		"name", "created_at", "updated_at")
	if err != nil {
		return nil, err
	}

	var rows []studyRow
	q := `SELECT ` + studyColumns + ` FROM studies` + w.String() + order
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying studies")
	}
	studies := make([]study.Study, 0, len(rows))
	for _, row := range rows {
		studies = append(studies, row.study())
	}
	return studies, nil
}

func (repo studyRepository) SetArchived(ctx context.Context, name string, archived bool, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `UPDATE studies SET archived = $2 WHERE name = $1`, name, archived)
	if err != nil {
		return errors.Wrap(err, "archiving study")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return study.ErrNotFound
	}
	return nil
}

// DeleteStudy removes the evaluations and assignments of the study, then the study, in one transaction.
func (repo studyRepository) DeleteStudy(ctx context.Context, name string, exec ...core.DBExecutor) error {
	return repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		s, err := repo.GetStudy(ctx, name, exec)
		if err != nil {
			return err
		}
		if _, err = exec.ExecContext(ctx, `DELETE FROM student_evaluations WHERE study_id = $1`, s.ID); err != nil {
			return errors.Wrap(err, "deleting study evaluations")
		}
		if _, err = exec.ExecContext(ctx, `DELETE FROM study_assignments WHERE study_id = $1`, s.ID); err != nil {
			return errors.Wrap(err, "deleting study assignments")
		}
		if _, err = exec.ExecContext(ctx, `DELETE FROM studies WHERE id = $1`, s.ID); err != nil {
			return errors.Wrap(err, "deleting study")
		}
		return nil
	})
}

const assignmentSelect = `
SELECT a.id, a.study_id, s.name AS study, a.class_name, a.method, a.settings
FROM study_assignments a JOIN studies s ON s.id = a.study_id`

func (repo studyRepository) UpsertAssignment(ctx context.Context, a study.Assignment, exec ...core.DBExecutor) (study.Assignment, error) {
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return study.Assignment{}, errors.Wrap(err, "encoding assignment settings")
	}

	var saved study.Assignment
	err = repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		s, err := repo.GetStudy(ctx, a.Study, exec)
		if err != nil {
			return err
		}
		const q = `
INSERT INTO study_assignments (study_id, class_name, method, settings) VALUES ($1, $2, $3, $4)
ON CONFLICT (study_id, class_name) DO UPDATE SET method = EXCLUDED.method, settings = EXCLUDED.settings
WHERE (study_assignments.method, study_assignments.settings) IS DISTINCT FROM (EXCLUDED.method, EXCLUDED.settings)`
		if _, err = exec.ExecContext(ctx, q, s.ID, a.ClassName, a.Method, types.JSONText(settings)); err != nil {
			return errors.Wrap(err, "upserting assignment")
		}
		saved, err = repo.GetAssignment(ctx, a.Study, a.ClassName, exec)
		return err
	})
	return saved, err
}

func (repo studyRepository) GetAssignment(ctx context.Context, studyName, className string, exec ...core.DBExecutor) (study.Assignment, error) {
	var row assignmentRow
	q := assignmentSelect + ` WHERE s.name = $1 AND a.class_name = $2`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, studyName, className); err != nil {
		return study.Assignment{}, trapNoRowsErr(err, study.ErrAssignmentNotFound, "getting assignment")
	}
	return row.assignment()
}

func (repo studyRepository) QueryAssignments(ctx context.Context, filter *study.AssignmentFilter, exec ...core.DBExecutor) ([]study.Assignment, error) {
	var w where
	if filter != nil {
		if filter.Study != "" {
			w.add("s.name = $%d", filter.Study)
		}
		if filter.ClassName != "" {
			w.add("a.class_name = $%d", filter.ClassName)
		}
	}

	var rows []assignmentRow
	q := assignmentSelect + w.String() + ` ORDER BY s.name, a.class_name`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]study.Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.assignment()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func (repo studyRepository) DeleteAssignment(ctx context.Context, studyName, className string, exec ...core.DBExecutor) error {
	const q = `DELETE FROM study_assignments a USING studies s WHERE s.id = a.study_id AND s.name = $1 AND a.class_name = $2`
	res, err := repo.getExec(exec).ExecContext(ctx, q, studyName, className)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return study.ErrAssignmentNotFound
	}
	return nil
}
