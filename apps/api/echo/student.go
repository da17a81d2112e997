package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/legacykey"
	"github.com/trezcool/calisma/core/student"
)

type studentApi struct {
	store *dualstore.Store
	svc   *student.Service
}

func registerStudentAPI(e *echo.Echo, deps ServerDeps) {
	api := studentApi{store: deps.Store, svc: deps.Students}

	e.POST("/ogrenciListesiKaydet", api.replace)
	e.GET("/ogrenciListesi", api.query)
}

// Handlers

// replace makes the posted roster dump the whole roster.
func (api *studentApi) replace(ctx echo.Context) error {
	var dump json.RawMessage
	if err := ctx.Bind(&dump); err != nil {
		return errors.Wrap(err, "binding to roster dump")
	}
	students, err := legacydoc.DecodeRoster(dump)
	if err != nil {
		return core.NewValidationError(err)
	}

	if err = api.svc.Replace(ctx.Request().Context(), students); err != nil {
		return errors.Wrap(err, "replacing roster")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": statusOK, "ogrenciSayisi": len(students)})
}

// query returns the roster dump, optionally restricted to one class.
func (api *studentApi) query(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	reqCtx := ctx.Request().Context()
	if err := api.store.Migrate(reqCtx, legacykey.Roster()); err != nil {
		return errors.Wrap(err, "migrating roster")
	}

	var filter *student.QueryFilter
	if class := core.CleanString(ctx.QueryParam("sinif")); class != "" {
		filter = &student.QueryFilter{ClassName: class}
	}
	students, err := api.svc.QueryOrdered(reqCtx, filter, ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	dump, err := legacydoc.EncodeRoster(students)
	if err != nil {
		return err
	}
	return ctx.JSONBlob(http.StatusOK, dump)
}
