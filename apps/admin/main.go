package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/backup"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
	logsvc "github.com/trezcool/calisma/services/logger"
	"github.com/trezcool/calisma/storage/database"
	sqlxrepos "github.com/trezcool/calisma/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger, err := logsvc.NewProductionZapLogger(conf)
	if err != nil {
		log.Fatalf("ADMIN : creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	students := student.NewService(sqlxrepos.NewStudentRepository(db))
	studies := study.NewService(sqlxrepos.NewStudyRepository(db))
	evals := evaluation.NewService(sqlxrepos.NewEvaluationRepository(db), studies, students)
	docs := legacydoc.NewDocuments(students, studies, evals, sqlxrepos.NewGroupRepository(db))

	// start CLI
	cli := commandLine{
		db:     db.DB,
		codec:  backup.NewCodec(docs, logger),
		logger: logger,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
