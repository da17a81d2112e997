package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/backup"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sql.DB
	codec  *backup.Codec
	logger core.Logger
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]   - run a goose command (up, down, status, ...) on the database")
	fmt.Println("  importfiles -dir DIR     - import every legacy JSON file of a data directory")
	fmt.Println("  export -o FILE           - write a ZIP archive of the database")
	fmt.Println("  restore -i FILE          - import a ZIP archive into the database")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importFilesCmd := flag.NewFlagSet("importfiles", flag.ContinueOnError)
	importFilesDir := importFilesCmd.String("dir", "", "The legacy data directory.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportFile := exportCmd.String("o", "", "The archive to write.")

	restoreCmd := flag.NewFlagSet("restore", flag.ContinueOnError)
	restoreFile := restoreCmd.String("i", "", "The archive to read.")

	ctx := context.Background()
	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "importfiles":
		if err := importFilesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFilesDir == "" {
			importFilesCmd.Usage()
			return errHelp
		}
		return cli.importFiles(ctx, *importFilesDir)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportFile == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(ctx, *exportFile)

	case "restore":
		if err := restoreCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *restoreFile == "" {
			restoreCmd.Usage()
			return errHelp
		}
		return cli.restore(ctx, *restoreFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
