package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
)

type cliffApi struct {
	svc  *session.Service
	orch *session.Orchestrator
}

func registerCliffAPI(g *echo.Group, svc *session.Service, orch *session.Orchestrator) {
	api := cliffApi{svc: svc, orch: orch}

	sg := g.Group("/sessions/:id")
	sg.GET("/attendance", api.attendance)

	cg := sg.Group("/cliff")
	cg.POST("/detect", api.detect)
	cg.POST("/apply", api.apply)
	cg.POST("/dismiss", api.dismiss)
	cg.POST("/reopen", api.reopen)

	g.POST("/cliff/batch", api.batch)
}

type (
	detectResponse struct {
		cliff.Result
		Persisted bool `json:"persisted"`
	}

	attendanceResponse struct {
		session.AttendanceResult
		Persisted bool `json:"persisted"`
	}

	reopenResponse struct {
		SessionID int               `json:"session_id"`
		Detection session.Detection `json:"cliff_detection"`
		Persisted bool              `json:"persisted"`
	}
)

func sessionID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// persisted turns a failed write into `"persisted": false`: the computed result is still served.
func persisted(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case session.IsPersistenceError(err):
		return false, nil
	}
	return false, err
}

// Handlers

func (api *cliffApi) detect(ctx echo.Context) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Detect(ctx.Request().Context(), id)
	ok, err := persisted(err)
	if err != nil {
		return errors.Wrap(err, "detecting cliff")
	}
	return ctx.JSON(http.StatusOK, detectResponse{Result: res, Persisted: ok})
}

func (api *cliffApi) apply(ctx echo.Context) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}
	var data session.ApplyFormalEnd
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApplyFormalEnd")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	out, err := api.svc.Apply(ctx.Request().Context(), id, data.FormalEndMinutes)
	ok, err := persisted(err)
	if err != nil {
		return errors.Wrap(err, "applying formal end")
	}
	return ctx.JSON(http.StatusOK, attendanceResponse{AttendanceResult: out, Persisted: ok})
}

func (api *cliffApi) dismiss(ctx echo.Context) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}
	out, err := api.svc.Dismiss(ctx.Request().Context(), id)
	ok, err := persisted(err)
	if err != nil {
		return errors.Wrap(err, "dismissing cliff")
	}
	return ctx.JSON(http.StatusOK, attendanceResponse{AttendanceResult: out, Persisted: ok})
}

func (api *cliffApi) reopen(ctx echo.Context) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}
	det, err := api.svc.Reopen(ctx.Request().Context(), id)
	ok, err := persisted(err)
	if err != nil {
		return errors.Wrap(err, "reopening cliff")
	}
	return ctx.JSON(http.StatusOK, reopenResponse{SessionID: id, Detection: det, Persisted: ok})
}

func (api *cliffApi) attendance(ctx echo.Context) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}
	out, err := api.svc.Attendance(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *cliffApi) batch(ctx echo.Context) error {
	summary, err := api.orch.RunBatch(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "running cliff detection batch")
	}
	return ctx.JSON(http.StatusOK, summary)
}
