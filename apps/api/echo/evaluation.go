package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core/evaluation"
)

type evaluationApi struct {
	names    names
	svc      *evaluation.Service
	validate *validator.Validate
}

func registerEvaluationAPI(e *echo.Echo, deps ServerDeps) {
	api := evaluationApi{
		names:    names{docs: deps.Documents, store: deps.Store},
		svc:      deps.Evaluations,
		validate: deps.Validate,
	}

	e.POST("/puanKaydet", api.score)
	e.POST("/degerlendirmeBitir", api.finish)
	e.POST("/degerlendirmeSifirla", api.reset)
}

// Handlers

func (api *evaluationApi) score(ctx echo.Context) error {
	var data ScoreRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoreRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	name := studyName(data.FileName)
	if err := api.names.migrateStudy(reqCtx, name); err != nil {
		return errors.Wrap(err, "migrating evaluations")
	}
	_, err := api.svc.SetScore(reqCtx, evaluation.ScoreEntry{
		Study:     name,
		SchoolNo:  string(data.SchoolNo),
		ClassName: data.ClassName,
		Question:  int(data.Question),
		Answer:    int(data.Answer),
		Points:    float64(data.Points),
	})
	if err != nil {
		return errors.Wrap(err, "setting score")
	}
	return ctx.JSON(http.StatusOK, okResponse)
}

func (api *evaluationApi) finish(ctx echo.Context) error {
	var data FinishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FinishRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	name := studyName(data.FileName)
	if err := api.names.migrateStudy(reqCtx, name); err != nil {
		return errors.Wrap(err, "migrating evaluations")
	}
	total, err := api.svc.Finish(reqCtx, name, string(data.SchoolNo))
	if err != nil {
		return errors.Wrap(err, "finishing evaluation")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": statusOK, "toplam": total})
}

func (api *evaluationApi) reset(ctx echo.Context) error {
	var data ResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	name := studyName(data.FileName)
	if err := api.names.migrateStudy(reqCtx, name); err != nil {
		return errors.Wrap(err, "migrating evaluations")
	}
	n, err := api.svc.Reset(reqCtx, name, data.ClassName)
	if err != nil {
		return errors.Wrap(err, "resetting evaluations")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": statusOK, "sifirlanan": n})
}
