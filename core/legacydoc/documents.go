package legacydoc

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

// Entry is one document held by the database.
type Entry struct {
	Key      legacykey.Key
	Name     string
	Archived bool
}

// Documents is the relational side of the dual-backend store: it renders each legacy document from the
// normalized tables and writes legacy documents back into them.
type Documents struct {
	students *student.Service
	studies  *study.Service
	evals    *evaluation.Service
	groups   group.Repository
}

var _ dualstore.Primary = (*Documents)(nil) // interface compliance check

func NewDocuments(students *student.Service, studies *study.Service, evals *evaluation.Service, groups group.Repository) *Documents {
	return &Documents{students: students, studies: studies, evals: evals, groups: groups}
}

// trapNotFoundErr maps the domain "not found" errors to dualstore.ErrNotFound
func trapNotFoundErr(err error) error {
	switch errors.Cause(err) {
	case student.ErrNotFound, study.ErrNotFound, study.ErrAssignmentNotFound, evaluation.ErrNotFound, group.ErrNotFound:
		return dualstore.ErrNotFound
	}
	return err
}

// Lookup renders the document addressed by key.
func (d *Documents) Lookup(ctx context.Context, key legacykey.Key) (json.RawMessage, error) {
	doc, err := d.lookup(ctx, key)
	if err != nil {
		return nil, trapNotFoundErr(err)
	}
	return doc, nil
}

func (d *Documents) lookup(ctx context.Context, key legacykey.Key) (json.RawMessage, error) {
	switch key.Kind {
	case legacykey.KindRoster:
		students, err := d.students.Query(ctx, nil)
		if err != nil {
			return nil, err
		}
		if len(students) == 0 {
			return nil, student.ErrNotFound
		}
		return EncodeRoster(students)

	case legacykey.KindStudy:
		s, err := d.studies.Get(ctx, key.Study)
		if err != nil {
			return nil, err
		}
		return s.Content, nil

	case legacykey.KindAssignment:
		a, err := d.assignment(ctx, key)
		if err != nil {
			return nil, err
		}
		return EncodeAssignment(a)

	case legacykey.KindEvaluationSet:
		if _, err := d.studies.Get(ctx, key.Study); err != nil {
			return nil, err
		}
		evals, err := d.evals.List(ctx, key.Study, "", true)
		if err != nil {
			return nil, err
		}
		if len(evals) == 0 {
			return nil, evaluation.ErrNotFound
		}
		names, err := d.studentNames(ctx, evals)
		if err != nil {
			return nil, err
		}
		return EncodeEvaluations(evals, names)

	case legacykey.KindClassGroups, legacykey.KindStudyGroups:
		r := group.FromKey(key, nil)
		stored, err := d.groups.GetRoster(ctx, r.ClassName, r.Study)
		if err != nil {
			return nil, err
		}
		return stored.Groups, nil

	default:
		return nil, dualstore.ErrNotFound
	}
}

// assignment finds the assignment of key. Rendered names drop the spaces of the class, so a class parsed from a
// name also matches the class it was rendered from.
func (d *Documents) assignment(ctx context.Context, key legacykey.Key) (study.Assignment, error) {
	a, err := d.studies.GetAssignment(ctx, key.Study, key.Class)
	if errors.Cause(err) != study.ErrAssignmentNotFound {
		return a, err
	}
	all, qErr := d.studies.Assignments(ctx, &study.AssignmentFilter{Study: key.Study})
	if qErr != nil {
		return study.Assignment{}, qErr
	}
	class := legacykey.StripSpaces(key.Class)
	for _, candidate := range all {
		if legacykey.StripSpaces(candidate.ClassName) == class {
			return candidate, nil
		}
	}
	return study.Assignment{}, err
}

func (d *Documents) studentNames(ctx context.Context, evals []evaluation.Evaluation) (map[string]string, error) {
	nos := make([]string, 0, len(evals))
	for _, e := range evals {
		if !e.IsSettings() {
			nos = append(nos, e.SchoolNo)
		}
	}
	names := make(map[string]string, len(nos))
	if len(nos) == 0 {
		return names, nil
	}
	students, err := d.students.Query(ctx, &student.QueryFilter{SchoolNos: nos})
	if err != nil {
		return nil, err
	}
	for _, s := range students {
		names[s.SchoolNo] = s.Name
	}
	return names, nil
}

// Store writes doc into the tables behind key.
func (d *Documents) Store(ctx context.Context, key legacykey.Key, doc json.RawMessage) error {
	_, err := d.StoreCounted(ctx, key, doc)
	return err
}

// StoreCounted writes doc and returns the number of rows it describes (students, evaluation records, ...).
// Missing parents are created: the study of an assignment or of an evaluation set (with empty content), the
// students of an evaluation set or of a group roster.
func (d *Documents) StoreCounted(ctx context.Context, key legacykey.Key, doc json.RawMessage) (int, error) {
	switch key.Kind {
	case legacykey.KindRoster:
		students, err := DecodeRoster(doc)
		if err != nil {
			return 0, core.NewValidationError(err)
		}
		if err = d.students.Import(ctx, students); err != nil {
			return 0, errors.Wrap(err, "importing roster")
		}
		return len(students), nil

	case legacykey.KindStudy:
		if _, err := d.studies.Save(ctx, key.Study, doc); err != nil {
			return 0, errors.Wrap(err, "saving study")
		}
		return 1, nil

	case legacykey.KindAssignment:
		a, err := DecodeAssignment(doc)
		if err != nil {
			return 0, core.NewValidationError(err)
		}
		if a.Study == "" {
			a.Study = key.Study
		}
		if a.ClassName == "" {
			a.ClassName = key.Class
		}
		if _, _, err = d.studies.Ensure(ctx, a.Study); err != nil {
			return 0, errors.Wrap(err, "ensuring study")
		}
		if _, err = d.studies.SaveAssignment(ctx, a); err != nil {
			return 0, errors.Wrap(err, "saving assignment")
		}
		return 1, nil

	case legacykey.KindEvaluationSet:
		return d.storeEvaluations(ctx, key.Study, doc)

	case legacykey.KindClassGroups, legacykey.KindStudyGroups:
		r := group.FromKey(key, doc)
		nos, err := group.MemberSchoolNos(doc)
		if err != nil {
			return 0, err
		}
		refs := make([]student.Student, 0, len(nos))
		for _, no := range nos {
			refs = append(refs, student.Student{SchoolNo: no, ClassName: r.ClassName})
		}
		if _, err = d.students.Ensure(ctx, refs...); err != nil {
			return 0, errors.Wrap(err, "ensuring group members")
		}
		if err = d.groups.UpsertRoster(ctx, r); err != nil {
			return 0, errors.Wrap(err, "saving group roster")
		}
		return 1, nil

	default:
		return 0, core.NewValidationError(errors.Errorf("cannot store a document of kind %q", key.Kind))
	}
}

func (d *Documents) storeEvaluations(ctx context.Context, studyName string, doc json.RawMessage) (int, error) {
	s, _, err := d.studies.Ensure(ctx, studyName)
	if err != nil {
		return 0, errors.Wrapf(err, "ensuring study %q", studyName)
	}
	updates, names, err := DecodeEvaluations(s.Name, doc)
	if err != nil {
		return 0, core.NewValidationError(err)
	}

	for _, u := range updates {
		if name, ok := names[u.SchoolNo]; ok {
			ref := student.Student{SchoolNo: u.SchoolNo, Name: name}
			if u.ClassName != nil {
				ref.ClassName = *u.ClassName
			}
			if _, err = d.students.Ensure(ctx, ref); err != nil {
				return 0, errors.Wrap(err, "ensuring student "+u.SchoolNo)
			}
		}
		if _, err = d.evals.Write(ctx, u); err != nil {
			return 0, errors.Wrap(err, "writing evaluation "+u.SchoolNo)
		}
	}
	return len(updates), nil
}

// StudyNames returns the names of every study, including the ones only referenced by a study group roster.
func (d *Documents) StudyNames(ctx context.Context) ([]string, error) {
	studies, err := d.studies.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	rosters, err := d.groups.QueryRosters(ctx, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(studies))
	names := make([]string, 0, len(studies))
	for _, s := range studies {
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	for _, r := range rosters {
		if !r.IsGeneric() && !seen[r.Study] {
			seen[r.Study] = true
			names = append(names, r.Study)
		}
	}
	return names, nil
}

// ClassNames returns every class named by a student, an assignment or a group roster.
func (d *Documents) ClassNames(ctx context.Context) ([]string, error) {
	students, err := d.students.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	assignments, err := d.studies.Assignments(ctx, nil)
	if err != nil {
		return nil, err
	}
	rosters, err := d.groups.QueryRosters(ctx, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	add := func(class string) {
		if class != "" && !seen[class] {
			seen[class] = true
			names = append(names, class)
		}
	}
	for _, s := range students {
		add(s.ClassName)
	}
	for _, a := range assignments {
		add(a.ClassName)
	}
	for _, r := range rosters {
		add(r.ClassName)
	}
	return names, nil
}

// Entries lists every document the database can render, sorted by name.
func (d *Documents) Entries(ctx context.Context) ([]Entry, error) {
	var (
		students    []student.Student
		studies     []study.Study
		assignments []study.Assignment
		rosters     []group.Roster
		evals       []evaluation.Evaluation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		students, err = d.students.Query(gctx, nil)
		return errors.Wrap(err, "querying students")
	})
	g.Go(func() (err error) {
		studies, err = d.studies.List(gctx, nil)
		return errors.Wrap(err, "querying studies")
	})
	g.Go(func() (err error) {
		assignments, err = d.studies.Assignments(gctx, nil)
		return errors.Wrap(err, "querying assignments")
	})
	g.Go(func() (err error) {
		rosters, err = d.groups.QueryRosters(gctx, nil)
		return errors.Wrap(err, "querying group rosters")
	})
	g.Go(func() (err error) {
		evals, err = d.evals.All(gctx)
		return errors.Wrap(err, "querying evaluations")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []Entry
	add := func(key legacykey.Key, archived bool) {
		name, err := legacykey.Render(key)
		if err != nil {
			return // rows that cannot be named cannot be exported either
		}
		entries = append(entries, Entry{Key: key, Name: name, Archived: archived})
	}

	if len(students) > 0 {
		add(legacykey.Roster(), false)
	}
	archived := make(map[string]bool, len(studies))
	for _, s := range studies {
		archived[s.Name] = s.Archived
		add(legacykey.Study(s.Name), s.Archived)
	}
	for _, a := range assignments {
		add(legacykey.Assignment(a.Study, a.ClassName), archived[a.Study])
	}
	withEvals := make(map[string]bool)
	for _, e := range evals {
		if !withEvals[e.Study] {
			withEvals[e.Study] = true
			add(legacykey.EvaluationSet(e.Study), archived[e.Study])
		}
	}
	for _, r := range rosters {
		add(r.Key(), !r.IsGeneric() && archived[r.Study])
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
