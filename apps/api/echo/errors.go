package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

var (
	errHttpNotFound   = echo.NewHTTPError(http.StatusNotFound, "not found")
	errInvalidID      = echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	errNoTelemetry    = echo.NewHTTPError(http.StatusUnprocessableEntity, session.ErrNoTelemetryData.Error())
	errNoMeetingLink  = echo.NewHTTPError(http.StatusUnprocessableEntity, session.ErrNoMeetingLink.Error())
	errBadMeetingLink = echo.NewHTTPError(http.StatusUnprocessableEntity, session.ErrInvalidMeetingID.Error())
)

// domainHTTPError maps the engine's sentinel errors to their HTTP responses.
func domainHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return errHttpNotFound
	case errors.Is(err, session.ErrNoTelemetryData):
		return errNoTelemetry
	case errors.Is(err, session.ErrNoMeetingLink):
		return errNoMeetingLink
	case errors.Is(err, session.ErrInvalidMeetingID):
		return errBadMeetingLink
	}
	return nil
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		if herr := domainHTTPError(err); herr != nil {
			err = herr
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			logger.Error(msg, errors.Wrap(err, msg), core.Fields{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
				"id":     ctx.Param("id"),
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
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
