package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/core/study"
)

var errAssignmentKey = errors.New("calisma and sinif are required")

type studyApi struct {
	names    names
	store    *dualstore.Store
	svc      *study.Service
	validate *validator.Validate
}

func registerStudyAPI(e *echo.Echo, deps ServerDeps) {
	api := studyApi{
		names:    names{docs: deps.Documents, store: deps.Store},
		store:    deps.Store,
		svc:      deps.Studies,
		validate: deps.Validate,
	}

	e.POST("/calismaKaydet", api.save)
	e.POST("/calismaSil", api.destroy)
	e.POST("/arsivle", api.archive)
	e.POST("/arsivdenGeriYukle", api.unarchive)

	e.GET("/listeCalismalar", api.listActive)
	e.GET("/arsivListesi", api.listArchived)
	e.GET("/yonetimDosyaListesi", api.listAll)

	e.POST("/atamaKaydet", api.saveAssignment)
	e.POST("/atamaSil", api.destroyAssignment)
	e.GET("/atamalar", api.queryAssignments)
}

// studyFiles returns the keys of every flat file that belongs to the study.
func (api *studyApi) studyFiles(name string) ([]legacykey.Key, error) {
	keys := []legacykey.Key{legacykey.Study(name), legacykey.EvaluationSet(name)}
	files, err := api.store.FileNames()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		p := legacykey.Parse(f)
		if p.Kind != legacykey.KindAssignment {
			continue
		}
		for _, key := range legacykey.Candidates(p, []string{name}) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Handlers

func (api *studyApi) save(ctx echo.Context) error {
	var data StudyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudyRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if _, err := api.svc.Save(ctx.Request().Context(), data.Name, data.Content); err != nil {
		return errors.Wrap(err, "saving study")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

// destroy deletes the study from the database together with its flat files. Deleting a missing study is a no-op.
func (api *studyApi) destroy(ctx echo.Context) error {
	var data StudyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudyRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	name := studyName(data.Name)
	if err := api.svc.Delete(ctx.Request().Context(), name); err != nil && errors.Cause(err) != study.ErrNotFound {
		return errors.Wrap(err, "deleting study")
	}
	keys, err := api.studyFiles(name)
	if err != nil {
		return errors.Wrap(err, "listing study files")
	}
	if err = api.store.RemoveFiles(keys...); err != nil {
		return errors.Wrap(err, "removing study files")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

func (api *studyApi) setArchived(ctx echo.Context, archived bool) error {
	var data DocumentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DocumentRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	name := studyName(data.Name)
	if err := api.names.migrateStudy(reqCtx, name); err != nil {
		return errors.Wrap(err, "migrating study")
	}

	var err error
	if archived {
		err = api.svc.Archive(reqCtx, name)
	} else {
		err = api.svc.Unarchive(reqCtx, name)
	}
	if err != nil {
		return errors.Wrap(err, "setting archived flag")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

func (api *studyApi) archive(ctx echo.Context) error {
	return api.setArchived(ctx, true)
}

func (api *studyApi) unarchive(ctx echo.Context) error {
	return api.setArchived(ctx, false)
}

func (api *studyApi) list(ctx echo.Context, keep func(catalogEntry) bool) error {
	catalog, err := api.names.catalog(ctx.Request().Context())
	if err != nil {
		return err
	}
	out := make([]string, 0, len(catalog))
	for _, e := range catalog {
		if keep(e) {
			out = append(out, e.Name)
		}
	}
	return ctx.JSON(http.StatusOK, out)
}

// listActive lists the study, assignment and evaluation files that are not archived.
func (api *studyApi) listActive(ctx echo.Context) error {
	return api.list(ctx, func(e catalogEntry) bool {
		switch legacykey.Parse(e.Name).Kind {
		case legacykey.KindStudy, legacykey.KindAssignment, legacykey.KindEvaluationSet:
			return !e.Archived
		}
		return false
	})
}

func (api *studyApi) listArchived(ctx echo.Context) error {
	return api.list(ctx, func(e catalogEntry) bool { return e.Archived })
}

func (api *studyApi) listAll(ctx echo.Context) error {
	catalog, err := api.names.catalog(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, catalog)
}

// saveAssignment stores an assignment record; the record names its study and class.
func (api *studyApi) saveAssignment(ctx echo.Context) error {
	var record json.RawMessage
	if err := ctx.Bind(&record); err != nil {
		return errors.Wrap(err, "binding to assignment record")
	}
	a, err := legacydoc.DecodeAssignment(record)
	if err != nil {
		return core.NewValidationError(err)
	}
	if strings.TrimSpace(a.Study) == "" || strings.TrimSpace(a.ClassName) == "" {
		return core.NewValidationError(errAssignmentKey,
			core.FieldError{Field: legacydoc.FieldAssignmentStudy, Error: errAssignmentKey.Error()},
			core.FieldError{Field: legacydoc.FieldAssignmentClass, Error: errAssignmentKey.Error()},
		)
	}

	if err = api.store.Write(ctx.Request().Context(), legacykey.Assignment(a.Study, a.ClassName), record); err != nil {
		return errors.Wrap(err, "saving assignment")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

func (api *studyApi) destroyAssignment(ctx echo.Context) error {
	var data AssignmentDeleteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignmentDeleteRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	key := legacykey.Assignment(data.Study, data.ClassName)
	err := api.svc.DeleteAssignment(ctx.Request().Context(), data.Study, data.ClassName)
	if err != nil && errors.Cause(err) != study.ErrAssignmentNotFound {
		return errors.Wrap(err, "deleting assignment")
	}
	if err = api.store.RemoveFiles(key); err != nil {
		return errors.Wrap(err, "removing assignment file")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

func (api *studyApi) queryAssignments(ctx echo.Context) error {
	assignments, err := api.svc.Assignments(ctx.Request().Context(), &study.AssignmentFilter{
		Study:     ctx.QueryParam("calisma"),
		ClassName: ctx.QueryParam("sinif"),
	})
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}

	records := make([]json.RawMessage, 0, len(assignments))
	for _, a := range assignments {
		rec, err := legacydoc.EncodeAssignment(a)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return ctx.JSON(http.StatusOK, records)
}
