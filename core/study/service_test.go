package study_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/core/study"
	"github.com/trezcool/calisma/tests"
)

func TestService_Delete_cascades(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[{"soru":"1+1"}]`)
	testutil.CreateStudy(t, env.Studies, "Fen2", `[]`)

	_, err := env.Studies.SaveAssignment(ctx, study.Assignment{Study: "Fen1", ClassName: "9A", Method: "online"})
	require.NoError(t, err)
	_, err = env.Studies.SaveAssignment(ctx, study.Assignment{Study: "Fen2", ClassName: "9A", Method: "online"})
	require.NoError(t, err)
	for _, name := range []string{"Fen1", "Fen2"} {
		_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: name, SchoolNo: "100", Answers: json.RawMessage(`["A"]`)})
		require.NoError(t, err)
	}

	require.NoError(t, env.Studies.Delete(ctx, "Fen1"))

	for _, key := range []legacykey.Key{legacykey.Study("Fen1"), legacykey.Assignment("Fen1", "9A"), legacykey.EvaluationSet("Fen1")} {
		_, err = env.Store.Resolve(ctx, key)
		assert.True(t, dualstore.IsNotFound(err), "Resolve(%s) error = %v", key, err)
	}
	_, err = env.Evaluations.Get(ctx, "Fen2", "100")
	assert.NoError(t, err, "other studies untouched")
	_, err = env.Studies.GetAssignment(ctx, "Fen2", "9A")
	assert.NoError(t, err, "other studies untouched")

	assert.Equal(t, study.ErrNotFound, env.Studies.Delete(ctx, "Fen1"))
}

func TestService_Save(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	env.DB.SetClock(func() time.Time { return now })

	first, err := env.Studies.Save(ctx, "Fen1", json.RawMessage(`[1, 2]`))
	require.NoError(t, err)
	now = now.Add(time.Hour)
	same, err := env.Studies.Save(ctx, "Fen1", json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, same.UpdatedAt, "unchanged content keeps the timestamp")
	assert.Equal(t, first.ID, same.ID)
	changed, err := env.Studies.Save(ctx, "Fen1", json.RawMessage(`[1,2,3]`))
	require.NoError(t, err)
	assert.Equal(t, now, changed.UpdatedAt)
	assert.Equal(t, first.CreatedAt, changed.CreatedAt)

	_, err = env.Studies.Save(ctx, "  ", nil)
	assert.Error(t, err)
	_, err = env.Studies.Save(ctx, "Fen2", json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestService_Archive(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)
	testutil.CreateStudy(t, env.Studies, "Fen2", `[]`)

	require.NoError(t, env.Studies.Archive(ctx, "Fen1"))
	archived := true
	list, err := env.Studies.List(ctx, &archived)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Fen1", list[0].Name)

	require.NoError(t, env.Studies.Unarchive(ctx, "Fen1"))
	list, err = env.Studies.List(ctx, &archived)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, study.ErrNotFound, env.Studies.Archive(ctx, "Yok"))
}

func TestService_SaveAssignment(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Kimya", `[]`)

	_, err := env.Studies.SaveAssignment(ctx, study.Assignment{Study: "Yok", ClassName: "9A"})
	assert.Equal(t, study.ErrNotFound, err)

	first, err := env.Studies.SaveAssignment(ctx, study.Assignment{Study: "Kimya", ClassName: "9A", Method: "online"})
	require.NoError(t, err)
	id := first.Settings[study.AssignmentIDField]
	require.NotNil(t, id, "legacy id generated")

	second, err := env.Studies.SaveAssignment(ctx, study.Assignment{
		Study:     "Kimya",
		ClassName: "9A",
		Method:    "yuzyuze",
		Settings:  map[string]json.RawMessage{"gorunur": json.RawMessage(`true`)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(id), string(second.Settings[study.AssignmentIDField]), "legacy id kept")
	assert.Equal(t, first.ID, second.ID)

	list, err := env.Studies.Assignments(ctx, &study.AssignmentFilter{ClassName: "9A"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "yuzyuze", list[0].Method)

	require.NoError(t, env.Studies.DeleteAssignment(ctx, "Kimya", "9A"))
	assert.Equal(t, study.ErrAssignmentNotFound, env.Studies.DeleteAssignment(ctx, "Kimya", "9A"))
}
