package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/backup"
)

const (
	archiveField     = "dosya"
	archiveBodyLimit = "256M"
)

type backupApi struct {
	codec  *backup.Codec
	logger core.Logger
}

func registerBackupAPI(e *echo.Echo, deps ServerDeps) {
	api := backupApi{codec: deps.Backup, logger: deps.Logger}

	e.GET("/yedekIndir", api.export)
	e.POST("/yedekYukle", api.restore, middleware.BodyLimit(archiveBodyLimit))
}

// Handlers

func (api *backupApi) export(ctx echo.Context) error {
	var buf bytes.Buffer
	manifest, err := api.codec.Export(ctx.Request().Context(), &buf)
	if err != nil {
		return errors.Wrap(err, "exporting archive")
	}
	api.logger.Info("archive exported", map[string]interface{}{"entries": len(manifest.Entries)})

	name := fmt.Sprintf("yedek-%s.zip", time.Now().Format("2006-01-02"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

// restore imports an uploaded archive. Entries that fail are listed in the report; the request still succeeds.
func (api *backupApi) restore(ctx echo.Context) error {
	fh, err := ctx.FormFile(archiveField)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: archiveField, Error: "an archive file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded archive")
	}
	defer func() { _ = f.Close() }()

	report, err := api.codec.Import(ctx.Request().Context(), f, fh.Size)
	if err != nil {
		if errors.Cause(err) == backup.ErrInvalidArchive {
			return core.NewValidationError(err, core.FieldError{Field: archiveField, Error: err.Error()})
		}
		return errors.Wrap(err, "importing archive")
	}
	if !report.OK() {
		api.logger.Warn("archive restored with errors", map[string]interface{}{"errors": report.Errors})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": statusOK, "rapor": report})
}
