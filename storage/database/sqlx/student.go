package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/student"
)

const studentColumns = `school_no, name, class_name, phone, parent_phone, email, drive_link, extra_info`

type studentRow struct {
	SchoolNo    string         `db:"school_no"`
	Name        string         `db:"name"`
	ClassName   string         `db:"class_name"`
	Phone       null.String    `db:"phone"`
	ParentPhone null.String    `db:"parent_phone"`
	Email       null.String    `db:"email"`
	DriveLink   null.String    `db:"drive_link"`
	ExtraInfo   types.JSONText `db:"extra_info"`
}

func toStudentRow(s student.Student) (studentRow, error) {
	extra := s.Extra
	if extra == nil {
		extra = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return studentRow{}, errors.Wrap(err, "encoding extra info")
	}
	return studentRow{
		SchoolNo:    s.SchoolNo,
		Name:        s.Name,
		ClassName:   s.ClassName,
		Phone:       s.Phone,
		ParentPhone: s.ParentPhone,
		Email:       s.Email,
		DriveLink:   s.DriveLink,
		ExtraInfo:   types.JSONText(raw),
	}, nil
}

func (row studentRow) student() (student.Student, error) {
	extra := make(map[string]json.RawMessage)
	if len(row.ExtraInfo) > 0 {
		if err := row.ExtraInfo.Unmarshal(&extra); err != nil {
			return student.Student{}, errors.Wrap(err, "decoding extra info")
		}
	}
	return student.Student{
		SchoolNo:    row.SchoolNo,
		Name:        row.Name,
		ClassName:   row.ClassName,
		Phone:       row.Phone,
		ParentPhone: row.ParentPhone,
		Email:       row.Email,
		DriveLink:   row.DriveLink,
		Extra:       extra,
	}, nil
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db core.DB) *studentRepository {
	return &studentRepository{repository{db: db}}
}

const upsertStudentQuery = `
INSERT INTO students (` + studentColumns + `)
VALUES (:school_no, :name, :class_name, :phone, :parent_phone, :email, :drive_link, :extra_info)
ON CONFLICT (school_no) DO UPDATE SET
	name = EXCLUDED.name,
	class_name = EXCLUDED.class_name,
	phone = EXCLUDED.phone,
	parent_phone = EXCLUDED.parent_phone,
	email = EXCLUDED.email,
	drive_link = EXCLUDED.drive_link,
	extra_info = EXCLUDED.extra_info
WHERE (students.name, students.class_name, students.phone, students.parent_phone, students.email, students.drive_link, students.extra_info)
	IS DISTINCT FROM (EXCLUDED.name, EXCLUDED.class_name, EXCLUDED.phone, EXCLUDED.parent_phone, EXCLUDED.email, EXCLUDED.drive_link, EXCLUDED.extra_info)`

func (repo studentRepository) upsert(ctx context.Context, exec core.DBExecutor, students []student.Student) error {
	for _, s := range students {
		row, err := toStudentRow(s)
		if err != nil {
			return err
		}
		if _, err = sqlx.NamedExecContext(ctx, exec, upsertStudentQuery, row); err != nil {
			return errors.Wrapf(err, "upserting student %s", s.SchoolNo)
		}
	}
	return nil
}

func (repo studentRepository) UpsertStudents(ctx context.Context, students []student.Student, exec ...core.DBExecutor) error {
	return repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		return repo.upsert(ctx, exec, students)
	})
}

func (repo studentRepository) ReplaceStudents(ctx context.Context, students []student.Student, exec ...core.DBExecutor) error {
	nos := make([]string, 0, len(students))
	for _, s := range students {
		nos = append(nos, s.SchoolNo)
	}
	return repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		if _, err := exec.ExecContext(ctx, `DELETE FROM students WHERE NOT (school_no = ANY($1))`, pq.Array(nos)); err != nil {
			return errors.Wrap(err, "deleting students")
		}
		return repo.upsert(ctx, exec, students)
	})
}

func (repo studentRepository) EnsureStudents(ctx context.Context, students []student.Student, exec ...core.DBExecutor) (int, error) {
	const q = `INSERT INTO students (` + studentColumns + `)
VALUES (:school_no, :name, :class_name, :phone, :parent_phone, :email, :drive_link, :extra_info)
ON CONFLICT (school_no) DO NOTHING`

	var created int
	err := repo.inTx(ctx, exec, func(exec core.DBExecutor) error {
		for _, s := range students {
			row, err := toStudentRow(s)
			if err != nil {
				return err
			}
			res, err := sqlx.NamedExecContext(ctx, exec, q, row)
			if err != nil {
				return errors.Wrapf(err, "ensuring student %s", s.SchoolNo)
			}
			if n, err := res.RowsAffected(); err == nil {
				created += int(n)
			}
		}
		return nil
	})
	return created, err
}

func (repo studentRepository) GetStudent(ctx context.Context, schoolNo string, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	q := `SELECT ` + studentColumns + ` FROM students WHERE school_no = $1`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, schoolNo); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return row.student()
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	var w where
	if filter != nil {
		if filter.ClassName != "" {
			w.add("class_name = $%d", filter.ClassName)
		}
		if filter.SchoolNos != nil {
			w.add("school_no = ANY($%d)", pq.Array(filter.SchoolNos))
		}
	}
	order, err := orderBy(append(append([]core.DBOrdering(nil), ordering...), core.DBOrdering{Field: "school_no", Ascending: true}),
		"school_no", "name", "class_name")
	if err != nil {
		return nil, err
	}

	var rows []studentRow
	q := `SELECT ` + studentColumns + ` FROM students` + w.String() + order
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		s, err := row.student()
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}
