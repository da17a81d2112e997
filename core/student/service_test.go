package student_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/tests"
)

func schoolNos(students []student.Student) []string {
	nos := make([]string, 0, len(students))
	for _, s := range students {
		nos = append(nos, s.SchoolNo)
	}
	return nos
}

func TestService_Ensure(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudent(t, env.Students, "101", "Ali", "9A")

	n, err := env.Students.Ensure(ctx,
		student.Student{SchoolNo: " 101 ", ClassName: "9B"},
		student.Student{SchoolNo: "102", ClassName: "9A"},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ali, err := env.Students.Get(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "Ali", ali.Name, "existing students are left untouched")
	assert.Equal(t, "9A", ali.ClassName)

	created, err := env.Students.Get(ctx, "102")
	require.NoError(t, err)
	assert.Equal(t, student.PlaceholderName, created.Name)

	_, err = env.Students.Ensure(ctx, student.Student{SchoolNo: "  "})
	assert.True(t, core.IsValidationError(err))
}

func TestService_Replace(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudent(t, env.Students, "101", "Ali", "9A")
	testutil.CreateStudent(t, env.Students, "102", "Ayşe", "9A")

	require.NoError(t, env.Students.Replace(ctx, []student.Student{
		{SchoolNo: "102", Name: "Ayşe Yılmaz", ClassName: "9A", Phone: null.StringFrom("555")},
		{SchoolNo: "201", Name: "Can", ClassName: "9B", Extra: map[string]json.RawMessage{"Kulüp": json.RawMessage(`"satranç"`)}},
	}))

	all, err := env.Students.Query(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "201"}, schoolNos(all))
	assert.Equal(t, "Ayşe Yılmaz", all[0].Name)
	assert.Equal(t, null.StringFrom("555"), all[0].Phone)
	assert.False(t, all[0].Email.Valid)
	assert.JSONEq(t, `"satranç"`, string(all[1].Extra["Kulüp"]))

	_, err = env.Students.Get(ctx, "101")
	assert.Equal(t, student.ErrNotFound, err)
}

func TestService_QueryOrdered(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudent(t, env.Students, "103", "Burak", "9A")
	testutil.CreateStudent(t, env.Students, "101", "Zeynep", "9A")
	testutil.CreateStudent(t, env.Students, "201", "Ali", "9B")

	tests := []struct {
		name     string
		filter   *student.QueryFilter
		ordering []core.DBOrdering
		want     []string
		wantErr  bool
	}{
		{name: "default", want: []string{"101", "103", "201"}},
		{name: "by name", ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []string{"201", "103", "101"}},
		{name: "by school number descending", ordering: []core.DBOrdering{{Field: "school_no"}}, want: []string{"201", "103", "101"}},
		{name: "one class", filter: &student.QueryFilter{ClassName: "9A"}, want: []string{"101", "103"}},
		{name: "some students", filter: &student.QueryFilter{SchoolNos: []string{"201", "101"}}, want: []string{"101", "201"}},
		{name: "unknown field", ordering: []core.DBOrdering{{Field: "phone", Ascending: true}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Students.QueryOrdered(ctx, tt.filter, tt.ordering)
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err), "QueryOrdered() error = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, schoolNos(got))
		})
	}
}

func TestStudent_Equal(t *testing.T) {
	a := student.Student{SchoolNo: "101", Name: "Ali", Extra: map[string]json.RawMessage{"x": json.RawMessage(`{"a":1,"b":2}`)}}
	b := a
	b.Extra = map[string]json.RawMessage{"x": json.RawMessage(`{"b":2, "a":1}`)}
	assert.True(t, a.Equal(b))

	b.Phone = null.StringFrom("")
	assert.False(t, a.Equal(b), "an empty phone differs from a missing one")
}
