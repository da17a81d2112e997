package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/calisma/apps/api/echo"
	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/backup"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
	logsvc "github.com/trezcool/calisma/services/logger"
	"github.com/trezcool/calisma/storage/database"
	inmemdb "github.com/trezcool/calisma/storage/database/inmem"
	sqlxrepos "github.com/trezcool/calisma/storage/database/sqlx"
	"github.com/trezcool/calisma/storage/flatfile"
)

// EngineMemory selects the in-memory repositories instead of Postgres.
const EngineMemory = "memory"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories are provided together since they share one backend.
type Repositories struct {
	dig.Out
	DB          *sqlx.DB // nil with the memory engine
	Students    student.Repository
	Studies     study.Repository
	Evaluations evaluation.Repository
	Groups      group.Repository
}

type ServerParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Students    *student.Service
	Studies     *study.Service
	Evaluations *evaluation.Service
	Groups      *group.Service
	Documents   *legacydoc.Documents
	Store       *dualstore.Store
	Backup      *backup.Codec
	Validate    *validator.Validate
	Translator  ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == EngineMemory {
		loggerParam.Logger.Info("using the in-memory database")
		db := inmemdb.Open()
		return Repositories{
			Students:    inmemdb.NewStudentRepository(db),
			Studies:     inmemdb.NewStudyRepository(db),
			Evaluations: inmemdb.NewEvaluationRepository(db),
			Groups:      inmemdb.NewGroupRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Repositories{
		DB:          db,
		Students:    sqlxrepos.NewStudentRepository(db),
		Studies:     sqlxrepos.NewStudyRepository(db),
		Evaluations: sqlxrepos.NewEvaluationRepository(db),
		Groups:      sqlxrepos.NewGroupRepository(db),
	}
}

func newEvaluationService(repo evaluation.Repository, studies *study.Service, students *student.Service) *evaluation.Service {
	return evaluation.NewService(repo, studies, students)
}

func newFiles(conf *core.Config, logger core.Logger) *flatfile.Dir {
	files, err := flatfile.Open(conf.Storage.DataDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening data directory %q: %v", conf.Storage.DataDir, err), err)
	}
	return files
}

// newMigrationQueue returns a started queue; it is closed on shutdown.
func newMigrationQueue(conf *core.Config, docs *legacydoc.Documents, loggerParam DBLoggerParam) *dualstore.MigrationQueue {
	queue := dualstore.NewMigrationQueue(docs, loggerParam.Logger, conf.Storage.QueueSize, conf.Storage.MigrationTimeout)
	queue.Start()
	return queue
}

func newStore(docs *legacydoc.Documents, files *flatfile.Dir, queue *dualstore.MigrationQueue, logger core.Logger) *dualstore.Store {
	return dualstore.NewStore(docs, files, queue, logger)
}

func newGroupService(store *dualstore.Store) *group.Service {
	return group.NewService(store)
}

func newBackupCodec(docs *legacydoc.Documents, logger core.Logger) *backup.Codec {
	return backup.NewCodec(docs, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Students:    p.Students,
		Studies:     p.Studies,
		Evaluations: p.Evaluations,
		Groups:      p.Groups,
		Documents:   p.Documents,
		Store:       p.Store,
		Backup:      p.Backup,
		Validate:    p.Validate,
		Translator:  p.Translator,
	})
}

type NewConfigFunc func() *core.Config

// New returns a new dependency injection dig.Container
func New(newConfig NewConfigFunc) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(student.NewService))
	must(c.Provide(study.NewService))
	must(c.Provide(newEvaluationService))
	must(c.Provide(legacydoc.NewDocuments))
	must(c.Provide(newFiles))
	must(c.Provide(newMigrationQueue))
	must(c.Provide(newStore))
	must(c.Provide(newGroupService))
	must(c.Provide(newBackupCodec))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
