package dualstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/services/logger"
	"github.com/trezcool/calisma/storage/flatfile"
	"github.com/trezcool/calisma/tests"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// rollbar-go starts its async transport goroutine at package init.
		goleak.IgnoreTopFunction("github.com/rollbar/rollbar-go.NewAsyncTransport.func1"),
	)
}

func TestStore_Resolve_databaseFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Store.Write(ctx, legacykey.Study("Fen1"), json.RawMessage(`[{"soru":"1+1"}]`)))
	env.WriteFile(t, "qwxFen1.json", `[{"soru":"stale"}]`)

	doc, err := env.Store.Resolve(ctx, legacykey.Study("Fen1"))
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourcePrimary, doc.Source)
	assert.JSONEq(t, `[{"soru":"1+1"}]`, string(doc.Data))
	assert.Zero(t, env.Files.Reads(), "flat file read despite a database hit")
}

func TestStore_Resolve_lazyMigration(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.WriteFile(t, "qwxFen1.json", `[{"soru":"1+1"}]`)

	doc, err := env.Store.Resolve(ctx, legacykey.Study("Fen1"))
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourceFile, doc.Source)
	assert.JSONEq(t, `[{"soru":"1+1"}]`, string(doc.Data))

	env.Flush(t)
	reads := env.Files.Reads()

	doc, err = env.Store.Resolve(ctx, legacykey.Study("Fen1"))
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourcePrimary, doc.Source)
	assert.JSONEq(t, `[{"soru":"1+1"}]`, string(doc.Data))
	assert.Equal(t, reads, env.Files.Reads(), "flat file read after migration")
}

func TestStore_Resolve_studyGroupsFromFileOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	groups := `[["100","101"],["102"]]`
	env.WriteFile(t, "gggKimya9A.json", groups)

	doc, err := env.Groups.Get(ctx, "Kimya", "9A")
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourceFile, doc.Source)
	assert.JSONEq(t, groups, string(doc.Data))

	env.Flush(t)
	require.NoError(t, env.FS.Remove("/gggKimya9A.json"))

	doc, err = env.Groups.Get(ctx, "Kimya", "9A")
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourcePrimary, doc.Source)
	assert.JSONEq(t, groups, string(doc.Data))

	// members were created with a placeholder name
	s, err := env.Students.Get(ctx, "102")
	require.NoError(t, err)
	assert.Equal(t, "9A", s.ClassName)
}

func TestStore_Resolve_notFound(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := env.Store.Resolve(context.Background(), legacykey.EvaluationSet("Yok"))
	assert.True(t, dualstore.IsNotFound(err), "Resolve() error = %v", err)
}

func TestStore_Resolve_invalidFile(t *testing.T) {
	env := testutil.NewEnv(t)
	env.WriteFile(t, "qwxBozuk.json", `{"soru":`)

	_, err := env.Store.Resolve(context.Background(), legacykey.Study("Bozuk"))
	assert.True(t, dualstore.IsNotFound(err), "Resolve() error = %v", err)
}

func TestStore_Resolve_missingKeyPart(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := env.Store.Resolve(context.Background(), legacykey.Assignment("Kimya", ""))
	assert.True(t, core.IsValidationError(err), "Resolve() error = %v", err)
}

func TestStore_Write_mirrorsGroups(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Groups.Save(ctx, "", "9-A", json.RawMessage(`[["100"]]`)))
	require.NoError(t, env.Store.Write(ctx, legacykey.Study("Fen1"), json.RawMessage(`[]`)))

	data, err := afero.ReadFile(env.FS, "/9AGrupları.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[["100"]]`, string(data))

	ok, err := afero.Exists(env.FS, "/qwxFen1.json")
	require.NoError(t, err)
	assert.False(t, ok, "study mirrored to a flat file")
}

func TestStore_Write_mergesFileOnlyEvaluations(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.WriteFile(t, "www_Fen1.json", `[{"ogrenciNo":"101","sinif":"9A","cevaplar":["a"],"puanlar":{},"girisSayisi":1,"degerlendirme":{}}]`)

	require.NoError(t, env.Store.Write(ctx, legacykey.EvaluationSet("Fen1"), json.RawMessage(`[{"ogrenciNo":"102","sinif":"9A","cevaplar":["b"]}]`)))

	evals, err := env.Evaluations.List(ctx, "Fen1", "", false)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, "101", evals[0].SchoolNo)
	assert.JSONEq(t, `["a"]`, string(evals[0].Answers))
	assert.Equal(t, "102", evals[1].SchoolNo)
}

func TestStore_Write_invalidDocument(t *testing.T) {
	env := testutil.NewEnv(t)

	err := env.Store.Write(context.Background(), legacykey.Study("Fen1"), json.RawMessage(`{`))
	assert.True(t, core.IsValidationError(err), "Write() error = %v", err)
}

// downPrimary fails every call as an unreachable database would.
type downPrimary struct{}

var errDown = errors.New("connection refused")

func (downPrimary) Lookup(context.Context, legacykey.Key) (json.RawMessage, error) {
	return nil, errDown
}
func (downPrimary) Store(context.Context, legacykey.Key, json.RawMessage) error { return errDown }

func TestStore_Resolve_databaseDown(t *testing.T) {
	logger := logsvc.NewZapLogger(zaptest.NewLogger(t))
	files := flatfile.New(afero.NewMemMapFs())
	require.NoError(t, files.WriteFile("qwxFen1.json", []byte(`[]`)))

	queue := dualstore.NewMigrationQueue(downPrimary{}, logger, 1, time.Second)
	queue.Start()
	defer func() { require.NoError(t, queue.Close(context.Background())) }()
	store := dualstore.NewStore(downPrimary{}, files, queue, logger)

	doc, err := store.Resolve(context.Background(), legacykey.Study("Fen1"))
	require.NoError(t, err)
	assert.Equal(t, dualstore.SourceFile, doc.Source)

	_, err = store.Resolve(context.Background(), legacykey.Study("Fen2"))
	assert.True(t, errors.Is(err, dualstore.ErrBackendUnavailable), "Resolve() error = %v", err)
}
