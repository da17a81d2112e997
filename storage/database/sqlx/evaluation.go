package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/evaluation"
)

const evaluationSelect = `
SELECT e.study_id, s.name AS study, e.student_school_no, e.class_name, e.answers, e.scores, e.entry_count,
	e.evaluation, e.last_updated
FROM student_evaluations e JOIN studies s ON s.id = e.study_id`

type evaluationRow struct {
	StudyID     int            `db:"study_id"`
	Study       string         `db:"study"`
	SchoolNo    string         `db:"student_school_no"`
	ClassName   string         `db:"class_name"`
	Answers     types.JSONText `db:"answers"`
	Scores      types.JSONText `db:"scores"`
	EntryCount  int            `db:"entry_count"`
	Summary     types.JSONText `db:"evaluation"`
	LastUpdated time.Time      `db:"last_updated"`
}

func (row evaluationRow) evaluation() evaluation.Evaluation {
	return evaluation.Evaluation{
		StudyID:     row.StudyID,
		Study:       row.Study,
		SchoolNo:    row.SchoolNo,
		ClassName:   row.ClassName,
		Answers:     json.RawMessage(row.Answers),
		Scores:      json.RawMessage(row.Scores),
		EntryCount:  row.EntryCount,
		Summary:     json.RawMessage(row.Summary),
		LastUpdated: row.LastUpdated.UTC(),
	}
}

type evaluationRepository struct {
	repository
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db core.DB) *evaluationRepository {
	return &evaluationRepository{repository{db: db}}
}

// absent sub-fields are NULL and keep the stored (or default) value
const applyUpdateQuery = `
INSERT INTO student_evaluations AS e
	(study_id, student_school_no, class_name, answers, scores, entry_count, evaluation, last_updated)
VALUES ($1, $2, COALESCE($3::text, ''), COALESCE($4::jsonb, '[]'), COALESCE($5::jsonb, '{}'), COALESCE($6::int, 0),
	COALESCE($7::jsonb, '{}'), now())
ON CONFLICT (study_id, student_school_no) DO UPDATE SET
	class_name = COALESCE($3::text, e.class_name),
	answers = COALESCE($4::jsonb, e.answers),
	scores = COALESCE($5::jsonb, e.scores),
	entry_count = COALESCE($6::int, e.entry_count),
	evaluation = COALESCE($7::jsonb, e.evaluation),
	last_updated = now()
WHERE (e.class_name, e.answers, e.scores, e.entry_count, e.evaluation) IS DISTINCT FROM
	(COALESCE($3::text, e.class_name), COALESCE($4::jsonb, e.answers), COALESCE($5::jsonb, e.scores),
	COALESCE($6::int, e.entry_count), COALESCE($7::jsonb, e.evaluation))`

func (repo evaluationRepository) ApplyUpdate(ctx context.Context, studyID int, u evaluation.Update, exec ...core.DBExecutor) (evaluation.Evaluation, error) {
	var saved evaluation.Evaluation
	err := repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		_, err := exec.ExecContext(ctx, applyUpdateQuery,
			studyID, u.SchoolNo, u.ClassName, nullJSON(u.Answers), nullJSON(u.Scores), u.EntryCount, nullJSON(u.Summary))
		if err != nil {
			if isFKViolation(err) {
				return evaluation.ErrNotFound
			}
			return errors.Wrap(err, "writing evaluation")
		}
		saved, err = repo.get(ctx, exec, studyID, u.SchoolNo)
		return err
	})
	return saved, err
}

func (repo evaluationRepository) get(ctx context.Context, exec core.DBExecutor, studyID int, schoolNo string) (evaluation.Evaluation, error) {
	var row evaluationRow
	q := evaluationSelect + ` WHERE e.study_id = $1 AND e.student_school_no = $2`
	if err := exec.GetContext(ctx, &row, q, studyID, schoolNo); err != nil {
		return evaluation.Evaluation{}, trapNoRowsErr(err, evaluation.ErrNotFound, "getting evaluation")
	}
	return row.evaluation(), nil
}

func (repo evaluationRepository) GetEvaluation(ctx context.Context, studyName, schoolNo string, exec ...core.DBExecutor) (evaluation.Evaluation, error) {
	var row evaluationRow
	q := evaluationSelect + ` WHERE s.name = $1 AND e.student_school_no = $2`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, studyName, schoolNo); err != nil {
		return evaluation.Evaluation{}, trapNoRowsErr(err, evaluation.ErrNotFound, "getting evaluation")
	}
	return row.evaluation(), nil
}

func (repo evaluationRepository) QueryEvaluations(ctx context.Context, filter *evaluation.QueryFilter, exec ...core.DBExecutor) ([]evaluation.Evaluation, error) {
	var w where
	if filter != nil {
		if filter.Study != "" {
			w.add("s.name = $%d", filter.Study)
		}
		if filter.ClassName != "" {
			w.add("e.class_name = $%d", filter.ClassName)
		}
		if !filter.WithSettings {
			w.add("e.student_school_no <> $%d", evaluation.SettingsSchoolNo)
		}
	}

	var rows []evaluationRow
	q := evaluationSelect + w.String() + ` ORDER BY s.name, e.student_school_no`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	evals := make([]evaluation.Evaluation, 0, len(rows))
	for _, row := range rows {
		evals = append(evals, row.evaluation())
	}
	return evals, nil
}

func (repo evaluationRepository) ResetEvaluations(ctx context.Context, studyID int, className string, summary json.RawMessage, exec ...core.DBExecutor) (int, error) {
	const q = `
UPDATE student_evaluations SET
	scores = '{}',
	evaluation = $3,
	last_updated = CASE WHEN scores IS DISTINCT FROM '{}'::jsonb OR evaluation IS DISTINCT FROM $3::jsonb
		THEN now() ELSE last_updated END
WHERE study_id = $1 AND class_name = $2 AND student_school_no <> $4`

	res, err := repo.getExec(exec).ExecContext(ctx, q, studyID, className, types.JSONText(summary), evaluation.SettingsSchoolNo)
	if err != nil {
		return 0, errors.Wrap(err, "resetting evaluations")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "resetting evaluations")
	}
	return int(n), nil
}
