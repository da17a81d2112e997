package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

// response statuses understood by the legacy front-end
const (
	statusOK         = "ok"
	statusMissing    = "eksik"
	statusNotFound   = "dosya_yok"
	statusError      = "error"
	statusFieldsKey  = "alanlar"
	statusMessageKey = "mesaj"
)

var okResponse = echo.Map{"status": statusOK}

func isNotFound(err error) bool {
	switch errors.Cause(err) {
	case dualstore.ErrNotFound, student.ErrNotFound, study.ErrNotFound, study.ErrAssignmentNotFound,
		evaluation.ErrNotFound, group.ErrNotFound:
		return true
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		message := echo.Map{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			switch {
			case code == http.StatusNotFound:
				message["status"] = statusNotFound
			case code < http.StatusInternalServerError:
				message["status"] = statusMissing
				message[statusMessageKey] = origErr.Message
			default:
				message["status"] = statusError
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message["status"] = statusMissing
			message[statusFieldsKey] = fldErrs
		case *core.ValidationError:
			code = http.StatusBadRequest
			message["status"] = statusMissing
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message[statusFieldsKey] = fldErrs
			} else {
				message[statusMessageKey] = origErr.Error()
			}
		default:
			if isNotFound(err) {
				code = http.StatusNotFound
				message["status"] = statusNotFound
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			message["status"] = statusError
			msg := http.StatusText(http.StatusInternalServerError)
			logger.Error(msg, errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Request().URL.Path,
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message[statusMessageKey] = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
