package study

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/legacykey"
)

var (
	// errors
	ErrNotFound           = errors.New("study not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	errInvalidContent     = errors.New("study content must be valid JSON")
)

// EmptyContent is the content of studies created implicitly by an assignment.
var EmptyContent = json.RawMessage(`[]`)

// DefaultOrdering lists studies by name.
var DefaultOrdering = []core.DBOrdering{{Field: "name", Ascending: true}}

type (
	Repository interface {
		// UpsertStudy creates the study or updates its content. UpdatedAt only moves when the content changed.
		UpsertStudy(ctx context.Context, s Study, exec ...core.DBExecutor) (Study, error)
		GetStudy(ctx context.Context, name string, exec ...core.DBExecutor) (Study, error)
		QueryStudies(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Study, error)
		SetArchived(ctx context.Context, name string, archived bool, exec ...core.DBExecutor) error
		// DeleteStudy removes the study together with its assignments and evaluations.
		DeleteStudy(ctx context.Context, name string, exec ...core.DBExecutor) error

		UpsertAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, study, className string, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, filter *AssignmentFilter, exec ...core.DBExecutor) ([]Assignment, error)
		DeleteAssignment(ctx context.Context, study, className string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func cleanName(name string) (string, error) {
	name = legacykey.SanitizeName(name)
	if name == "" {
		return "", core.NewMissingFieldError("study")
	}
	return name, nil
}

// Save creates or updates a study by name.
func (svc *Service) Save(ctx context.Context, name string, content json.RawMessage) (Study, error) {
	name, err := cleanName(name)
	if err != nil {
		return Study{}, err
	}
	if len(content) == 0 {
		content = EmptyContent
	}
	if !json.Valid(content) {
		return Study{}, core.NewValidationError(errInvalidContent, core.FieldError{Field: "content", Error: errInvalidContent.Error()})
	}
	return svc.repo.UpsertStudy(ctx, Study{Name: name, Content: content})
}

func (svc *Service) Get(ctx context.Context, name string) (Study, error) {
	return svc.repo.GetStudy(ctx, legacykey.SanitizeName(name))
}

// Ensure returns the study, creating it with empty content when it does not exist.
func (svc *Service) Ensure(ctx context.Context, name string) (Study, bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return Study{}, false, err
	}
	s, err := svc.repo.GetStudy(ctx, name)
	if err == nil {
		return s, false, nil
	}
	if err != ErrNotFound {
		return Study{}, false, err
	}
	s, err = svc.repo.UpsertStudy(ctx, Study{Name: name, Content: EmptyContent})
	return s, err == nil, err
}

// List returns the studies, optionally filtered by their archived flag.
func (svc *Service) List(ctx context.Context, archived *bool) ([]Study, error) {
	var filter *QueryFilter
	if archived != nil {
		filter = &QueryFilter{Archived: archived}
	}
	return svc.repo.QueryStudies(ctx, filter, DefaultOrdering)
}

func (svc *Service) Archive(ctx context.Context, name string) error {
	return svc.repo.SetArchived(ctx, legacykey.SanitizeName(name), true)
}

func (svc *Service) Unarchive(ctx context.Context, name string) error {
	return svc.repo.SetArchived(ctx, legacykey.SanitizeName(name), false)
}

// Delete removes the study, its assignments and its evaluations.
func (svc *Service) Delete(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return svc.repo.DeleteStudy(ctx, name)
}

// SaveAssignment upserts an assignment by (study, class). The study must exist.
// Assignments without a legacy id keep their previous one or get a new uuid.
func (svc *Service) SaveAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	var err error
	if a.Study, err = cleanName(a.Study); err != nil {
		return Assignment{}, err
	}
	if a.ClassName = legacykey.SanitizeName(a.ClassName); a.ClassName == "" {
		return Assignment{}, core.NewMissingFieldError("class")
	}

	settings := make(map[string]json.RawMessage, len(a.Settings)+1)
	for k, v := range a.Settings {
		settings[k] = v
	}
	if _, ok := settings[AssignmentIDField]; !ok {
		if prev, err := svc.repo.GetAssignment(ctx, a.Study, a.ClassName); err == nil && prev.Settings[AssignmentIDField] != nil {
			settings[AssignmentIDField] = prev.Settings[AssignmentIDField]
		} else {
			id, _ := json.Marshal(uuid.New().String())
			settings[AssignmentIDField] = id
		}
	}
	a.Settings = settings
	return svc.repo.UpsertAssignment(ctx, a)
}

func (svc *Service) GetAssignment(ctx context.Context, studyName, className string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, legacykey.SanitizeName(studyName), legacykey.SanitizeName(className))
}

func (svc *Service) Assignments(ctx context.Context, filter *AssignmentFilter) ([]Assignment, error) {
	if filter != nil {
		filter = &AssignmentFilter{
			Study:     legacykey.SanitizeName(filter.Study),
			ClassName: legacykey.SanitizeName(filter.ClassName),
		}
	}
	return svc.repo.QueryAssignments(ctx, filter)
}

func (svc *Service) DeleteAssignment(ctx context.Context, studyName, className string) error {
	return svc.repo.DeleteAssignment(ctx, legacykey.SanitizeName(studyName), legacykey.SanitizeName(className))
}
