package evaluation_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
	"github.com/trezcool/calisma/tests"
)

func strPtr(s string) *string { return &s }

func TestService_Write_keepsOmittedFields(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Answers: json.RawMessage(`["A","B"]`)})
	require.NoError(t, err)
	_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Scores: json.RawMessage(`{"0":[5]}`)})
	require.NoError(t, err)

	got, err := env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `["A","B"]`, string(got.Answers))
	assert.JSONEq(t, `{"0":[5]}`, string(got.Scores))
	assert.JSONEq(t, `{}`, string(got.Summary))
}

func TestService_Write_scoresOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.Write(ctx, evaluation.Update{
		Study:     "Fen1",
		SchoolNo:  "100",
		ClassName: strPtr("9A"),
		Answers:   json.RawMessage(`{"cevaplar":["A"]}`),
		Summary:   json.RawMessage(`{"not":"iyi"}`),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Scores: json.RawMessage(`{"0":[1]}`)})
		require.NoError(t, err)
	}

	got, err := env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `["A"]`, string(got.Answers), "answers normalized and kept")
	assert.JSONEq(t, `{"not":"iyi"}`, string(got.Summary))
	assert.Equal(t, "9A", got.ClassName)
}

func TestService_Write_explicitEmptyOverwrites(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Answers: json.RawMessage(`["A"]`)})
	require.NoError(t, err)
	_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Answers: json.RawMessage(`[]`)})
	require.NoError(t, err)

	got, err := env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got.Answers))
}

func TestService_Write_createsStudent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", ClassName: strPtr("9A")})
	require.NoError(t, err)

	s, err := env.Students.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, student.PlaceholderName, s.Name)
	assert.Equal(t, "9A", s.ClassName)
}

func TestService_Write_errors(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.Write(ctx, evaluation.Update{Study: "Yok", SchoolNo: "100"})
	assert.Equal(t, study.ErrNotFound, err)

	_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "  "})
	assert.True(t, core.IsValidationError(err), "Write() error = %v", err)

	_, err = env.Evaluations.Write(ctx, evaluation.Update{Study: "Fen1", SchoolNo: "100", Scores: json.RawMessage(`{`)})
	assert.True(t, core.IsValidationError(err), "Write() error = %v", err)
}

func TestService_SetScoreAndFinish(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	_, err := env.Evaluations.SetScore(ctx, evaluation.ScoreEntry{Study: "Fen1", SchoolNo: "100", Question: 0, Answer: 1, Points: 5})
	require.NoError(t, err)
	_, err = env.Evaluations.SetScore(ctx, evaluation.ScoreEntry{Study: "Fen1", SchoolNo: "100", Question: 2, Answer: 0, Points: 2.5})
	require.NoError(t, err)

	got, err := env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":[null,5],"2":[2.5]}`, string(got.Scores))

	total, err := env.Evaluations.Finish(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.Equal(t, 7.5, total)

	got, err = env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `{"toplam":7.5,"bitti":true}`, string(got.Summary))

	_, err = env.Evaluations.SetScore(ctx, evaluation.ScoreEntry{Study: "Fen1", SchoolNo: "100", Question: -1})
	assert.True(t, core.IsValidationError(err), "SetScore() error = %v", err)
}

func TestService_Reset(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateStudy(t, env.Studies, "Fen1", `[]`)

	for _, u := range []evaluation.Update{
		{Study: "Fen1", SchoolNo: "100", ClassName: strPtr("9A"), Scores: json.RawMessage(`{"0":[5]}`), Summary: json.RawMessage(`{"bitti":true}`)},
		{Study: "Fen1", SchoolNo: "101", ClassName: strPtr("9A"), Answers: json.RawMessage(`["B"]`)},
		{Study: "Fen1", SchoolNo: "200", ClassName: strPtr("9B"), Scores: json.RawMessage(`{"0":[3]}`)},
		{Study: "Fen1", SchoolNo: evaluation.SettingsSchoolNo, Answers: json.RawMessage(`{"ogrenciNo":"AYARLAR","sure":40}`)},
	} {
		_, err := env.Evaluations.Write(ctx, u)
		require.NoError(t, err)
	}

	n, err := env.Evaluations.Reset(ctx, "Fen1", "9A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := env.Evaluations.Get(ctx, "Fen1", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.Scores))
	assert.JSONEq(t, `{"toplam":0,"bitti":false}`, string(got.Summary))

	got, err = env.Evaluations.Get(ctx, "Fen1", "101")
	require.NoError(t, err)
	assert.JSONEq(t, `["B"]`, string(got.Answers), "answers survive a reset")

	got, err = env.Evaluations.Get(ctx, "Fen1", "200")
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":[3]}`, string(got.Scores), "other classes untouched")

	list, err := env.Evaluations.List(ctx, "Fen1", "", false)
	require.NoError(t, err)
	assert.Len(t, list, 3, "settings record excluded")
}

func TestNormalizeAnswers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: ``, want: `[]`},
		{in: `null`, want: `[]`},
		{in: `["A"]`, want: `["A"]`},
		{in: `{"cevaplar":["A","B"]}`, want: `["A","B"]`},
		{in: `{"x":1}`, want: `[{"x":1}]`},
		{in: `"A"`, want: `["A"]`},
	}
	for _, tt := range tests {
		got := evaluation.NormalizeAnswers(json.RawMessage(tt.in))
		if !core.JSONEqual(got, json.RawMessage(tt.want)) {
			t.Errorf("failed! NormalizeAnswers(%s) = %s; want %s", tt.in, got, tt.want)
		}
	}
}
