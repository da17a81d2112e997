package student

import (
	"context"
	"errors"
	"fmt"

	"github.com/trezcool/calisma/core"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")
)

// DefaultOrdering sorts students by class then school number.
var DefaultOrdering = []core.DBOrdering{{Field: "class_name", Ascending: true}, {Field: "school_no", Ascending: true}}

var orderingFields = map[string]bool{"school_no": true, "name": true, "class_name": true}

type (
	Repository interface {
		// UpsertStudents inserts new students and updates the ones whose fields changed.
		UpsertStudents(ctx context.Context, students []Student, exec ...core.DBExecutor) error
		// ReplaceStudents deletes every student missing from students, then upserts the rest.
		ReplaceStudents(ctx context.Context, students []Student, exec ...core.DBExecutor) error
		// EnsureStudents inserts the students that do not exist yet and leaves the others untouched.
		// It returns the number of inserted rows.
		EnsureStudents(ctx context.Context, students []Student, exec ...core.DBExecutor) (int, error)
		GetStudent(ctx context.Context, schoolNo string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func clean(students []Student) ([]Student, error) {
	cleaned := make([]Student, 0, len(students))
	for _, s := range students {
		s.SchoolNo = core.CleanString(s.SchoolNo)
		s.Name = core.CleanString(s.Name)
		s.ClassName = core.CleanString(s.ClassName)
		if s.SchoolNo == "" {
			return nil, core.NewMissingFieldError("school_no")
		}
		cleaned = append(cleaned, s)
	}
	return cleaned, nil
}

// Import upserts students by school number.
func (svc *Service) Import(ctx context.Context, students []Student) error {
	students, err := clean(students)
	if err != nil {
		return err
	}
	return svc.repo.UpsertStudents(ctx, students)
}

// Replace makes students the full roster.
func (svc *Service) Replace(ctx context.Context, students []Student) error {
	students, err := clean(students)
	if err != nil {
		return err
	}
	return svc.repo.ReplaceStudents(ctx, students)
}

// Ensure creates the referenced students that are missing. Missing names get PlaceholderName.
func (svc *Service) Ensure(ctx context.Context, refs ...Student) (int, error) {
	students, err := clean(refs)
	if err != nil {
		return 0, err
	}
	for i := range students {
		if students[i].Name == "" {
			students[i].Name = PlaceholderName
		}
	}
	return svc.repo.EnsureStudents(ctx, students)
}

func (svc *Service) Get(ctx context.Context, schoolNo string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanString(schoolNo))
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Student, error) {
	return svc.QueryOrdered(ctx, filter, nil)
}

// QueryOrdered sorts by ordering, then by DefaultOrdering. Only school_no, name and class_name may be used.
func (svc *Service) QueryOrdered(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	for _, o := range ordering {
		if !orderingFields[o.Field] {
			return nil, core.NewValidationError(
				fmt.Errorf("cannot order by %q", o.Field),
				core.FieldError{Field: "ordering", Error: "unknown field " + o.Field},
			)
		}
	}
	ord := make([]core.DBOrdering, 0, len(ordering)+len(DefaultOrdering))
	ord = append(ord, ordering...)
	ord = append(ord, DefaultOrdering...)
	return svc.repo.QueryStudents(ctx, filter, ord)
}
