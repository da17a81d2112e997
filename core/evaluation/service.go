package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

var (
	// errors
	ErrNotFound        = errors.New("evaluation not found")
	errInvalidDocument = errors.New("must be valid JSON")
	errNegativeIndex   = errors.New("indexes cannot be negative")
)

const (
	summaryTotal    = "toplam"
	summaryFinished = "bitti"
)

type (
	Repository interface {
		// ApplyUpdate creates the record when missing and writes only the sub-fields carried by u.
		// LastUpdated only moves when a stored value changed.
		ApplyUpdate(ctx context.Context, studyID int, u Update, exec ...core.DBExecutor) (Evaluation, error)
		GetEvaluation(ctx context.Context, studyName, schoolNo string, exec ...core.DBExecutor) (Evaluation, error)
		QueryEvaluations(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Evaluation, error)
		// ResetEvaluations clears scores and summary of every student record of the class.
		ResetEvaluations(ctx context.Context, studyID int, className string, summary json.RawMessage, exec ...core.DBExecutor) (int, error)
	}

	StudyGetter interface {
		Get(ctx context.Context, name string) (study.Study, error)
	}

	StudentEnsurer interface {
		Ensure(ctx context.Context, refs ...student.Student) (int, error)
	}

	Service struct {
		repo     Repository
		studies  StudyGetter
		students StudentEnsurer
	}
)

func NewService(repo Repository, studies StudyGetter, students StudentEnsurer) *Service {
	return &Service{repo: repo, studies: studies, students: students}
}

func validJSON(field string, raw json.RawMessage) error {
	if raw != nil && !json.Valid(raw) {
		return core.NewValidationError(errInvalidDocument, core.FieldError{Field: field, Error: errInvalidDocument.Error()})
	}
	return nil
}

// Write applies a partial update to one record. Sub-fields missing from u keep their stored value.
// Writing a student record creates the roster entry when it does not exist.
func (svc *Service) Write(ctx context.Context, u Update) (Evaluation, error) {
	u.SchoolNo = core.CleanString(u.SchoolNo)
	if u.SchoolNo == "" {
		return Evaluation{}, core.NewMissingFieldError("school_no")
	}
	for field, raw := range map[string]json.RawMessage{"answers": u.Answers, "scores": u.Scores, "summary": u.Summary} {
		if err := validJSON(field, raw); err != nil {
			return Evaluation{}, err
		}
	}

	s, err := svc.studies.Get(ctx, u.Study)
	if err != nil {
		return Evaluation{}, err
	}
	u.Study = s.Name

	if u.SchoolNo != SettingsSchoolNo {
		if u.Answers != nil {
			u.Answers = NormalizeAnswers(u.Answers)
		}
		if u.ClassName != nil {
			className := legacykey.SanitizeName(*u.ClassName)
			u.ClassName = &className
		}
		ref := student.Student{SchoolNo: u.SchoolNo}
		if u.ClassName != nil {
			ref.ClassName = *u.ClassName
		}
		if _, err = svc.students.Ensure(ctx, ref); err != nil {
			return Evaluation{}, pkgerrors.Wrap(err, "ensuring student")
		}
	}
	return svc.repo.ApplyUpdate(ctx, s.ID, u)
}

func (svc *Service) Get(ctx context.Context, studyName, schoolNo string) (Evaluation, error) {
	return svc.repo.GetEvaluation(ctx, legacykey.SanitizeName(studyName), core.CleanString(schoolNo))
}

// List returns the student records of a study, optionally restricted to a class.
func (svc *Service) List(ctx context.Context, studyName, className string, withSettings bool) ([]Evaluation, error) {
	return svc.repo.QueryEvaluations(ctx, &QueryFilter{
		Study:        legacykey.SanitizeName(studyName),
		ClassName:    legacykey.SanitizeName(className),
		WithSettings: withSettings,
	})
}

// All returns every record of every study, settings records included.
func (svc *Service) All(ctx context.Context) ([]Evaluation, error) {
	return svc.repo.QueryEvaluations(ctx, &QueryFilter{WithSettings: true})
}

// SetScore stores the points of one answer, growing the question's list with nulls when needed.
func (svc *Service) SetScore(ctx context.Context, entry ScoreEntry) (Evaluation, error) {
	if entry.Question < 0 || entry.Answer < 0 {
		return Evaluation{}, core.NewValidationError(errNegativeIndex)
	}

	scores := make(map[string][]interface{})
	current, err := svc.Get(ctx, entry.Study, entry.SchoolNo)
	switch {
	case err == nil:
		if err = json.Unmarshal(current.Scores, &scores); err != nil {
			// scores stored in another shape are replaced
			scores = make(map[string][]interface{})
		}
	case pkgerrors.Cause(err) != ErrNotFound:
		return Evaluation{}, err
	}

	q := strconv.Itoa(entry.Question)
	list := scores[q]
	for len(list) <= entry.Answer {
		list = append(list, nil)
	}
	list[entry.Answer] = entry.Points
	scores[q] = list

	raw, err := json.Marshal(scores)
	if err != nil {
		return Evaluation{}, pkgerrors.Wrap(err, "encoding scores")
	}
	u := Update{Study: entry.Study, SchoolNo: entry.SchoolNo, Scores: raw}
	if entry.ClassName != "" {
		u.ClassName = &entry.ClassName
	}
	return svc.Write(ctx, u)
}

// Finish totals the scores of a student and marks the evaluation finished. Other summary fields are kept.
func (svc *Service) Finish(ctx context.Context, studyName, schoolNo string) (float64, error) {
	current, err := svc.Get(ctx, studyName, schoolNo)
	if err != nil {
		return 0, err
	}
	total := SumScores(current.Scores)

	summary := make(map[string]interface{})
	_ = json.Unmarshal(current.Summary, &summary)
	if summary == nil {
		summary = make(map[string]interface{})
	}
	summary[summaryTotal] = total
	summary[summaryFinished] = true

	raw, err := json.Marshal(summary)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "encoding summary")
	}
	if _, err = svc.Write(ctx, Update{Study: studyName, SchoolNo: schoolNo, Summary: raw}); err != nil {
		return 0, err
	}
	return total, nil
}

// Reset clears the scores and summaries of a class. It returns the number of records reset.
func (svc *Service) Reset(ctx context.Context, studyName, className string) (int, error) {
	className = legacykey.SanitizeName(className)
	if className == "" {
		return 0, core.NewMissingFieldError("class")
	}
	s, err := svc.studies.Get(ctx, studyName)
	if err != nil {
		return 0, err
	}
	summary, _ := json.Marshal(map[string]interface{}{summaryTotal: 0, summaryFinished: false})
	return svc.repo.ResetEvaluations(ctx, s.ID, className, summary)
}
