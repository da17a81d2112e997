// Package testutil wires the services over the in-memory database and an in-memory data directory.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
	"github.com/trezcool/calisma/services/logger"
	"github.com/trezcool/calisma/storage/database"
	"github.com/trezcool/calisma/storage/database/inmem"
	"github.com/trezcool/calisma/storage/flatfile"
)

// CountingFiles counts the calls reaching a data directory.
type CountingFiles struct {
	dualstore.Files

	mu     sync.Mutex
	reads  int
	writes int
}

func (f *CountingFiles) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return f.Files.ReadFile(name)
}

func (f *CountingFiles) WriteFile(name string, data []byte) error {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return f.Files.WriteFile(name, data)
}

func (f *CountingFiles) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *CountingFiles) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Env is a fully wired application over in-memory backends.
type Env struct {
	DB          *inmemdb.DB
	Logger      core.Logger
	Students    *student.Service
	Studies     *study.Service
	Evaluations *evaluation.Service
	GroupRepo   group.Repository
	Groups      *group.Service
	Documents   *legacydoc.Documents
	FS          afero.Fs
	Files       *CountingFiles
	Queue       *dualstore.MigrationQueue
	Store       *dualstore.Store
}

// NewEnv builds an Env and closes its migration queue when the test ends.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := inmemdb.Open()
	logger := logsvc.NewZapLogger(zaptest.NewLogger(t))
	students := student.NewService(inmemdb.NewStudentRepository(db))
	studies := study.NewService(inmemdb.NewStudyRepository(db))
	evals := evaluation.NewService(inmemdb.NewEvaluationRepository(db), studies, students)
	groupRepo := inmemdb.NewGroupRepository(db)
	docs := legacydoc.NewDocuments(students, studies, evals, groupRepo)

	fs := afero.NewMemMapFs()
	files := &CountingFiles{Files: flatfile.New(fs)}
	queue := dualstore.NewMigrationQueue(docs, logger, 0, time.Second)
	queue.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queue.Close(ctx); err != nil {
			t.Errorf("closing migration queue: %v", err)
		}
	})
	store := dualstore.NewStore(docs, files, queue, logger)

	return &Env{
		DB:          db,
		Logger:      logger,
		Students:    students,
		Studies:     studies,
		Evaluations: evals,
		GroupRepo:   groupRepo,
		Groups:      group.NewService(store),
		Documents:   docs,
		FS:          fs,
		Files:       files,
		Queue:       queue,
		Store:       store,
	}
}

// WriteFile puts a legacy document in the data directory, bypassing the call counters.
func (env *Env) WriteFile(t *testing.T, name string, doc string) {
	t.Helper()
	if err := afero.WriteFile(env.FS, "/"+name, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", name, err)
	}
}

// Flush waits for the pending lazy migrations.
func (env *Env) Flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.Queue.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

func CreateStudy(t *testing.T, svc *study.Service, name, content string) study.Study {
	t.Helper()
	s, err := svc.Save(context.Background(), name, json.RawMessage(content))
	if err != nil {
		t.Fatalf("CreateStudy() failed: %v", err)
	}
	return s
}

func CreateStudent(t *testing.T, svc *student.Service, schoolNo, name, className string) student.Student {
	t.Helper()
	s := student.Student{SchoolNo: schoolNo, Name: name, ClassName: className}
	if err := svc.Import(context.Background(), []student.Student{s}); err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// PrepareDB opens the database named by TEST_DATABASE_URL, migrates it and empties its tables.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE students, studies, study_assignments, student_evaluations, class_groups RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
	return db
}
