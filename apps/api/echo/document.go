package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/legacykey"
)

var (
	emptyList       = json.RawMessage(`[]`)
	errSaveRequest  = errors.New("dosyaAdi and veri, or sinif and gruplar, are required")
	errNotAStudyKey = errors.New("not an evaluation file name")
)

type documentApi struct {
	names    names
	store    *dualstore.Store
	groups   *group.Service
	validate *validator.Validate
}

func registerDocumentAPI(e *echo.Echo, deps ServerDeps) {
	api := documentApi{
		names:    names{docs: deps.Documents, store: deps.Store},
		store:    deps.Store,
		groups:   deps.Groups,
		validate: deps.Validate,
	}

	e.GET("/calismaGetir", api.get)
	e.GET("/grupListesiGetir", api.getGroups)
	e.POST("/grupKaydet", api.saveGroups)
	e.POST("/kaydet", api.save)
}

// Handlers

// get serves any legacy document by file name. Missing documents are an empty list.
func (api *documentApi) get(ctx echo.Context) error {
	doc, err := api.names.resolve(ctx.Request().Context(), ctx.QueryParam("isim"))
	if err != nil {
		if dualstore.IsNotFound(err) {
			return ctx.JSONBlob(http.StatusOK, emptyList)
		}
		return errors.Wrap(err, "resolving document")
	}
	return ctx.JSONBlob(http.StatusOK, doc.Data)
}

func (api *documentApi) getGroups(ctx echo.Context) error {
	doc, err := api.groups.Get(ctx.Request().Context(), ctx.QueryParam("calisma"), ctx.QueryParam("sinif"))
	if err != nil {
		if dualstore.IsNotFound(err) {
			return ctx.JSONBlob(http.StatusOK, emptyList)
		}
		return errors.Wrap(err, "resolving group roster")
	}
	return ctx.JSONBlob(http.StatusOK, doc.Data)
}

func (api *documentApi) saveGroups(ctx echo.Context) error {
	var data GroupSaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GroupSaveRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if err := api.groups.Save(ctx.Request().Context(), data.Study, data.ClassName, data.Groups); err != nil {
		return errors.Wrap(err, "saving group roster")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

// save merges submitted evaluation records into their study, or saves class groups.
func (api *documentApi) save(ctx echo.Context) error {
	var data SaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveRequest")
	}

	reqCtx := ctx.Request().Context()
	switch {
	case data.ClassName != "" && isPresent(data.Groups):
		if err := api.groups.Save(reqCtx, "", data.ClassName, data.Groups); err != nil {
			return errors.Wrap(err, "saving group roster")
		}

	case data.FileName != "" && isPresent(data.Data):
		p := legacykey.Parse(legacyName(data.FileName))
		if p.Kind != legacykey.KindEvaluationSet {
			return core.NewValidationError(errNotAStudyKey, core.FieldError{Field: "dosyaAdi", Error: errNotAStudyKey.Error()})
		}
		records := bytes.TrimSpace(data.Data)
		if records[0] == '{' {
			records = append(append([]byte{'['}, records...), ']')
		}
		if err := api.store.Write(reqCtx, legacykey.EvaluationSet(p.Remainder), records); err != nil {
			return errors.Wrap(err, "saving evaluations")
		}

	default:
		return core.NewValidationError(errSaveRequest)
	}
	return ctx.JSON(http.StatusOK, okResponse)
}
