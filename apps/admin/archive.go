package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core/backup"
	"github.com/trezcool/calisma/storage/flatfile"
)

var errRestoreIncomplete = errors.New("some documents could not be restored")

func (cli *commandLine) printReport(report backup.RestoreReport) {
	_, _ = fmt.Fprintf(cli.out,
		"students: %d, studies: %d, assignments: %d, evaluations: %d, class groups: %d, study groups: %d, skipped: %d\n",
		report.Students, report.Studies, report.Assignments, report.Evaluations,
		report.ClassGroups, report.StudyGroups, report.Skipped,
	)
	for _, line := range report.Errors {
		_, _ = fmt.Fprintf(cli.out, "error: %s\n", line)
	}
}

// importFiles moves a whole legacy data directory into the database. The files are left in place.
func (cli *commandLine) importFiles(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return errors.Wrap(err, "opening data directory")
	}
	files, err := flatfile.Open(dir)
	if err != nil {
		return err
	}

	report, err := cli.codec.ImportDir(ctx, files)
	if err != nil {
		return errors.Wrap(err, "importing data directory")
	}
	cli.printReport(report)
	if !report.OK() {
		return errRestoreIncomplete
	}
	cli.logger.Info("data directory imported", map[string]interface{}{"dir": dir})
	return nil
}

func (cli *commandLine) export(ctx context.Context, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = errors.Wrap(cerr, "closing archive")
		}
	}()

	manifest, err := cli.codec.Export(ctx, f)
	if err != nil {
		return err
	}
	for _, name := range manifest.Entries {
		_, _ = fmt.Fprintln(cli.out, name)
	}
	cli.logger.Info("archive exported", map[string]interface{}{"path": path, "entries": len(manifest.Entries)})
	return nil
}

func (cli *commandLine) restore(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening archive")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "reading archive size")
	}
	report, err := cli.codec.Import(ctx, f, info.Size())
	if err != nil {
		return err
	}
	cli.printReport(report)
	if !report.OK() {
		return errRestoreIncomplete
	}
	cli.logger.Info("archive restored", map[string]interface{}{"path": path})
	return nil
}
