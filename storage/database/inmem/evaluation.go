package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/evaluation"
)

type evaluationRepository struct {
	db *DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *DB) *evaluationRepository {
	return &evaluationRepository{db: db}
}

func sameEvaluation(a, b evaluation.Evaluation) bool {
	return a.ClassName == b.ClassName &&
		a.EntryCount == b.EntryCount &&
		core.JSONEqual(a.Answers, b.Answers) &&
		core.JSONEqual(a.Scores, b.Scores) &&
		core.JSONEqual(a.Summary, b.Summary)
}

func (repo *evaluationRepository) ApplyUpdate(_ context.Context, studyID int, u evaluation.Update, _ ...core.DBExecutor) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.studyByID(studyID)
	if !ok {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}

	pk := evaluationPK{studyID: studyID, schoolNo: u.SchoolNo}
	current, exists := repo.db.evaluations[pk]
	if !exists {
		current = evaluation.NewEvaluation(studyID, s.Name, u.SchoolNo)
	}
	next := u.Apply(current)
	if exists && sameEvaluation(current, next) {
		return current, nil
	}
	next.LastUpdated = repo.db.now()
	repo.db.evaluations[pk] = next
	return next, nil
}

func (repo *evaluationRepository) GetEvaluation(_ context.Context, studyName, schoolNo string, _ ...core.DBExecutor) (evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s, ok := repo.db.studies[studyName]
	if !ok {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	if e, ok := repo.db.evaluations[evaluationPK{studyID: s.ID, schoolNo: schoolNo}]; ok {
		return e, nil
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *evaluationRepository) QueryEvaluations(_ context.Context, filter *evaluation.QueryFilter, _ ...core.DBExecutor) ([]evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evals := make([]evaluation.Evaluation, 0)
	for _, e := range repo.db.evaluations {
		if filter != nil {
			if filter.Study != "" && e.Study != filter.Study {
				continue
			}
			if filter.ClassName != "" && e.ClassName != filter.ClassName {
				continue
			}
			if !filter.WithSettings && e.IsSettings() {
				continue
			}
		}
		evals = append(evals, e)
	}
	sortEvaluations(evals)
	return evals, nil
}

func (repo *evaluationRepository) ResetEvaluations(_ context.Context, studyID int, className string, summary json.RawMessage, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	now := repo.db.now()
	for pk, e := range repo.db.evaluations {
		if pk.studyID != studyID || e.ClassName != className || e.IsSettings() {
			continue
		}
		n++
		next := e
		next.Scores = json.RawMessage(`{}`)
		next.Summary = summary
		if !sameEvaluation(e, next) {
			next.LastUpdated = now
			repo.db.evaluations[pk] = next
		}
	}
	return n, nil
}
